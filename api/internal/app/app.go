// Package app assembles the pieces both processes share: the sample store,
// the AI engines and the orchestrator dependencies.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strings"

	"truewater/api/internal/ai"
	"truewater/api/internal/ai/deepseek"
	"truewater/api/internal/ai/gemini"
	"truewater/api/internal/ai/openai"
	"truewater/api/internal/ai/yolo"
	"truewater/api/internal/config"
	"truewater/api/internal/imagestore"
	"truewater/api/internal/orchestrator"
	"truewater/api/internal/store"
)

type Store struct {
	DB      *sql.DB
	Dialect store.Dialect
	Samples *store.SampleRepo
}

// OpenStore connects, migrates and, for Postgres, starts the LISTEN feed.
// The feed lives as long as ctx.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	d, err := store.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.SQLitePath
	if d == store.Postgres {
		dsn = cfg.DatabaseURL
		if dsn == "" {
			dsn = ResolveDSN()
		}
	}

	db, err := store.Open(ctx, d, dsn)
	if err != nil {
		return nil, err
	}
	if d == store.Postgres {
		log.Printf("db connected: %s", SafeDSNSummary(dsn))
	} else {
		log.Printf("db connected: sqlite %s", dsn)
	}
	if err := store.MigrateUp(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	repo := store.NewSampleRepo(db, d)
	repo.PollInterval = cfg.StorePollInterval
	if d == store.Postgres {
		repo.Wake = store.Listen(ctx, dsn)
	}
	return &Store{DB: db, Dialect: d, Samples: repo}, nil
}

// BuildEngines configures every engine that has credentials (or a URL, for YOLO).
func BuildEngines(cfg *config.Config) *ai.Engines {
	e := &ai.Engines{}
	if cfg.GeminiAPIKey != "" {
		e.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	if cfg.OpenAIAPIKey != "" {
		e.OpenAI = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	if cfg.DeepseekAPIKey != "" {
		e.Deepseek = deepseek.New(cfg.DeepseekAPIKey, cfg.DeepseekModel)
	}
	if cfg.YOLOURL != "" || cfg.ClassifierEngine == "yolo" {
		e.YOLO = yolo.New(cfg.YOLOURL)
	}
	return e
}

// NewDeps resolves the configured classifier, text engine and image store.
// Notifier is left for the caller.
func NewDeps(ctx context.Context, cfg *config.Config, engines *ai.Engines, st orchestrator.Store) (orchestrator.Deps, error) {
	cls, err := engines.GetClassifier(cfg.ClassifierEngine)
	if err != nil {
		return orchestrator.Deps{}, err
	}
	txt, err := engines.GetTextEngine(cfg.TextEngine)
	if err != nil {
		return orchestrator.Deps{}, err
	}
	images, err := NewImageStore(ctx, cfg)
	if err != nil {
		return orchestrator.Deps{}, err
	}
	log.Printf("engines: classifier=%s text=%s (%s) images=%s", cls.Name(), txt.Name(), txt.GetModel(), images.Name())
	return orchestrator.Deps{
		Classifier: cls,
		Explainer:  txt,
		Summarizer: txt,
		Store:      st,
		Images:     images,
	}, nil
}

func NewImageStore(ctx context.Context, cfg *config.Config) (imagestore.Store, error) {
	switch cfg.ImageStore {
	case "", "inline":
		return imagestore.Inline{}, nil
	case "s3":
		return imagestore.NewS3(ctx, imagestore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown image store %q; use inline | s3", cfg.ImageStore)
	}
}

// ResolveDSN builds a Postgres DSN from POSTGRES_* / PG* env vars.
func ResolveDSN() string {
	user := getenvDefault("POSTGRES_USER", "truewater")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getenvDefault("PGHOST", "db")
	port := getenvDefault("PGPORT", "5432")
	db := getenvDefault("POSTGRES_DB", "truewater")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// SafeDSNSummary drops the password for logging.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
