package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the cached presence over HTTP using go-chi.
type Handler struct {
	sched    *Scheduler
	onDemand bool
	log      *slog.Logger
}

// NewHandler returns a Handler reading from sched's cache. With onDemand set,
// each presence request first refreshes the cache if it is stale.
func NewHandler(sched *Scheduler, onDemand bool, log *slog.Logger) *Handler {
	return &Handler{sched: sched, onDemand: onDemand, log: log}
}

// Register mounts the handler's routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api", h.GetPresence)
	r.Get("/healthz", h.Health)
}

// GetPresence handles GET /api.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	if h.onDemand {
		// The refresh is shared with other readers; a client going away must not cancel it.
		outcome, err := h.sched.RefreshIfStale(context.WithoutCancel(r.Context()))
		if err != nil {
			h.log.Debug("on-demand refresh failed, serving cached state",
				slog.String("outcome", outcome.String()),
				slog.String("error", err.Error()))
		}
	}

	body, err := MarshalState(h.sched.Cache().Read())
	if err != nil {
		h.log.Error("encode presence failed", slog.String("error", err.Error()))
		body = []byte(`"Unknown"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

type healthResponse struct {
	Status     string    `json:"status"`
	State      string    `json:"state"`
	ComputedAt time.Time `json:"computed_at"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	entry := h.sched.Cache().Entry()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{
		Status:     "ok",
		State:      entry.State.Kind(),
		ComputedAt: entry.ComputedAt.UTC(),
	})
}
