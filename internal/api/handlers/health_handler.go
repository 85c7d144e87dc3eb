package handlers

import (
	"context"
	"net/http"
	"time"
)

// readyCheckTimeout bounds each readiness check
const readyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check for GET /ready
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	checks []ReadyCheck
}

// NewHealthHandler creates a health handler running checks on every /ready call
func NewHealthHandler(checks ...ReadyCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for _, check := range h.checks {
		if check.Check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := check.Check(ctx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not ready",
			"failures": failures,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
