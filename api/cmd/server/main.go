package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"truewater/api/internal/app"
	"truewater/api/internal/config"
	"truewater/api/internal/httpserver"
	"truewater/api/internal/orchestrator"
	"truewater/api/internal/sample"
)

func main() {
	cfg := config.Load()
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8000"
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
	inbox := httpserver.NewInbox(100)
	deps.Notifier = inbox
	orch := orchestrator.New(deps, orchestrator.WithTimeout(cfg.PipelineTimeout), orchestrator.WithName("http"))

	srv := httpserver.New(orch, httpserver.Options{
		CORSOrigins: cfg.CORSOrigins,
		Ping:        st.DB.PingContext,
		Inbox:       inbox,
		Engines:     engines.Describe(),
	})
	hs := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.Samples.Subscribe(gctx, func(recs []sample.Record) {
			orch.ApplySnapshot(recs)
		})
	})
	g.Go(func() error {
		log.Printf("truewater listening on %s", hs.Addr)
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

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("server stopped")
}
