// Package httpserver exposes one orchestrator over a small JSON API.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"truewater/api/internal/metrics"
	"truewater/api/internal/orchestrator"
	"truewater/api/internal/sample"
)

// Orchestrator is the part of *orchestrator.Orchestrator the API drives.
type Orchestrator interface {
	SubmitAnalysis(ctx context.Context, req orchestrator.SubmitRequest) (*orchestrator.Run, error)
	SelectSample(ctx context.Context, id string) error
	CurrentView() orchestrator.View
	Watch() (<-chan orchestrator.View, func())
	Samples() []sample.Sample
}

type Options struct {
	CORSOrigins []string
	Ping        func(ctx context.Context) error // nil: always healthy
	Inbox       *Inbox                          // nil: /api/notifications is empty
	Engines     string                          // shown on /api/engines
	MaxUpload   int64                           // bytes; zero means 20 MiB
}

type Server struct {
	orch Orchestrator
	opts Options
}

func New(o Orchestrator, opts Options) *Server {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 20 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	return &Server{orch: o, opts: opts}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Timeout"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/samples", s.handleListSamples)
		api.Get("/samples/{testId}/history", s.handleHistory)
		api.Post("/selection", s.handleSelect)
		api.Post("/analyses", s.handleSubmit)
		api.Get("/view", s.handleView)
		api.Get("/notifications", s.handleNotifications)
		api.Get("/engines", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"engines": s.opts.Engines})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error(), "kind": sample.Kind(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sample.ErrSampleNotFound):
		return http.StatusNotFound
	case errors.Is(err, sample.ErrNoActiveSample), errors.Is(err, sample.ErrEmptyImage):
		return http.StatusBadRequest
	case errors.Is(err, sample.ErrPipelineBusy):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
