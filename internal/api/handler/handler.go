// Package handler provides HTTP handlers for the service endpoints.
// Handlers read the pool and the loop counters directly — no service layer.
package handler

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/api/respond"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/hunter"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// staleCycleAge is how old the last cycle may be before the liveness probe
// reports unhealthy. Cycles are at most 12 minutes apart, so 20 minutes
// means at least one full cycle was skipped.
const staleCycleAge = 20 * time.Minute

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool   *pgxpool.Pool
	loop   *hunter.Hunter
	params *store.Params
}

// New creates a Handler with shared dependencies.
func New(pool *pgxpool.Pool, loop *hunter.Hunter, params *store.Params) *Handler {
	return &Handler{pool: pool, loop: loop, params: params}
}

// Root serves service info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":   "promodescuentos-notifications",
		"status": "running",
	})
}

// HealthCheck is the liveness probe: healthy only when the hunter loop
// produced a cycle recently.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	last := h.loop.LastCycle()
	age := time.Since(last)

	if last.IsZero() || age > staleCycleAge {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":     "unhealthy",
			"last_cycle": lastCycleString(last),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"last_cycle": lastCycleString(last),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n)
	if err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports loop counters and the currently tuned parameters.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	params, err := h.params.All(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "config_unavailable", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"loop":   h.loop.Stats(),
		"config": params,
	})
}

func lastCycleString(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
