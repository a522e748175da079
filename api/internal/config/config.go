package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DBDriver          string // pgx | sqlite
	DatabaseURL       string // empty: built from POSTGRES_* by the caller
	SQLitePath        string
	StorePollInterval time.Duration

	ClassifierEngine string // yolo | gemini | gpt
	TextEngine       string // gemini | gpt | deepseek
	YOLOURL          string
	GeminiAPIKey     string
	GeminiModel      string
	OpenAIAPIKey     string
	OpenAIModel      string
	DeepseekAPIKey   string
	DeepseekModel    string

	ImageStore  string // inline | s3
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	S3PublicURL string

	PipelineTimeout time.Duration
	CORSOrigins     []string

	TelegramBotToken string
	WebhookURL       string
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: bad %s=%q, using %v", k, v, def)
		return def
	}
	return d
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: bad %s=%q, using %v", k, v, def)
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the environment, after an optional .env in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}
	return &Config{
		Port: getEnv("PORT", "8000"),

		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "pgx")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:        getEnv("SQLITE_PATH", "truewater.db"),
		StorePollInterval: getDuration("STORE_POLL_INTERVAL", 5*time.Second),

		ClassifierEngine: strings.ToLower(getEnv("CLASSIFIER_ENGINE", "gemini")),
		TextEngine:       strings.ToLower(getEnv("TEXT_ENGINE", "gemini")),
		YOLOURL:          os.Getenv("YOLO_URL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		DeepseekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
		DeepseekModel:    getEnv("DEEPSEEK_MODEL", "deepseek-chat"),

		ImageStore:  strings.ToLower(getEnv("IMAGE_STORE", "inline")),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3PathStyle: getBool("S3_PATH_STYLE", false),
		S3PublicURL: os.Getenv("S3_PUBLIC_URL"),

		PipelineTimeout: getDuration("PIPELINE_TIMEOUT", 2*time.Minute),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebhookURL:       strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
	}
}

// LoadBot is Load for the Telegram process, which cannot start without a token.
func LoadBot() *Config {
	cfg := Load()
	cfg.TelegramBotToken = mustEnv("TELEGRAM_BOT_TOKEN")
	return cfg
}
