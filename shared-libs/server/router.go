package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sortit/sortit-services/shared-libs/dto"
)

// RouterOptions tunes the default router.
type RouterOptions struct {
	Version string
	Timeout time.Duration
	// Middleware runs after the defaults, before route handlers.
	Middleware []func(http.Handler) http.Handler
	// Metrics, when set, is mounted at /metrics outside of Middleware.
	Metrics http.Handler
}

// NewRouter returns a chi router pre-configured with default middleware and a health endpoint.
func NewRouter(service string, opts RouterOptions, register func(r chi.Router)) *chi.Mux {
	if opts.Version == "" {
		opts.Version = "v0.0.1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	startedAt := time.Now().UTC()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, dto.HealthResponse{
			Status:    "ok",
			Service:   service,
			Version:   opts.Version,
			StartedAt: startedAt,
		})
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		for _, mw := range opts.Middleware {
			r.Use(mw)
		}
		if register != nil {
			register(r)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
