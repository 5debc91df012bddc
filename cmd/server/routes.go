package main

import (
	"log/slog"
	"net/http"

	"livewatch/internal/platform/logger"
	"livewatch/internal/platform/metrics"
	"livewatch/internal/presence"
	"livewatch/internal/site"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func newRouter(log *slog.Logger, met *metrics.Metrics, sched *presence.Scheduler, ph *presence.Handler, page *site.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Use(middleware.Compress(5))

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			e := sched.Cache().Entry()
			met.SetPresence(e.State.Kind(), e.ComputedAt)
		}).ServeHTTP(w, r)
	})
	ph.Register(r)
	page.Register(r)

	return r
}
