// Package ops exposes the observability side door: liveness and readiness
// probes, Prometheus metrics, and recent run history for dashboards and
// on-call tooling. It is read-only; runs are triggered by the sync binary,
// never over HTTP.
package ops

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scoresync/internal/platform/redis"
	"scoresync/internal/storage"
)

// Handler serves the ops endpoints.
type Handler struct {
	db     *sql.DB
	redis  *redis.Client
	runs   storage.RunStore
	logger *slog.Logger
}

// New constructs the ops handler. db and redis may be nil; readiness then
// only covers what is configured.
func New(db *sql.DB, rc *redis.Client, runs storage.RunStore, logger *slog.Logger) *Handler {
	return &Handler{db: db, redis: rc, runs: runs, logger: logger}
}

// Router mounts all ops endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/runs", h.handleRuns)
	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing runs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run history unavailable"})
		return
	}
	if runs == nil {
		runs = []storage.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
