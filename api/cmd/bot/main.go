package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"truewater/api/internal/app"
	"truewater/api/internal/config"
	"truewater/api/internal/metrics"
	"truewater/api/internal/orchestrator"
	"truewater/api/internal/telegram"
)

func main() {
	cfg := config.LoadBot()
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.DB.Close()

	engines := app.BuildEngines(cfg)
	deps, err := app.NewDeps(ctx, cfg, engines, st.Samples)
	if err != nil {
		log.Fatalf("deps: %v", err)
	}

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal(err)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:     bot,
		Engines: engines.Describe(),
		NewOrchestrator: func(chatID int64, n orchestrator.Notifier) *orchestrator.Orchestrator {
			d := deps
			d.Notifier = n
			return orchestrator.New(d,
				orchestrator.WithTimeout(cfg.PipelineTimeout),
				orchestrator.WithName(fmt.Sprintf("chat %d", chatID)))
		},
	}

	// ListenForWebhook registers on DefaultServeMux, so health and metrics go there too.
	http.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		pctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := st.DB.PingContext(pctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	http.Handle("/metrics", metrics.Handler())

	addr := "0.0.0.0:" + cfg.Port
	hs := &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.Samples.Subscribe(gctx, r.ApplySnapshot)
	})
	g.Go(func() error {
		log.Printf("health server listening on %s/healthz", addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	})

	// --- Choose mode: Webhook vs Polling ---
	if cfg.WebhookURL != "" {
		g.Go(func() error { return runWebhook(gctx, bot, r, cfg.WebhookURL) })
	} else {
		g.Go(func() error {
			runPolling(gctx, bot, r.HandleUpdate)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("bot: %v", err)
	}
	log.Printf("bot stopped")
}

// ---------------- Modes -----------------

func runWebhook(ctx context.Context, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) error {
	// secret webhook path
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	updates := bot.ListenForWebhook(path)
	log.Printf("webhook listening on %s", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				log.Printf("webhook updates channel closed")
				return nil
			}
			go r.HandleUpdate(upd)
		}
	}
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 from Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return 2 * time.Second
		}
	}
	return 1 * time.Second
}

type updatesGetter interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

func runPolling(ctx context.Context, bot updatesGetter, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Printf("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			log.Printf("polling error: %v; retry in %v", err, d)
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ---------------- Helpers -----------------

func shortHash(s string) string {
	// FNV-1a, stable per token
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
