package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"media_gateway/internal/utils"
)

// cronCleanup runs one expiry sweep for an external scheduler
func (h *handlers) cronCleanup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sweeper == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "sweep is not configured")
		return
	}
	result, err := h.deps.Sweeper.RunOnce(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithData(w, result)
}

// health pings every registered backing service
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps.Health))
	for name := range h.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.deps.Health[name](ctx); err != nil {
			h.logger.Warn("Health check failed", "service", name, "error", err)
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		utils.RespondWithJSON(w, http.StatusServiceUnavailable, utils.Envelope{
			Code:    utils.CodeError,
			Message: "unhealthy",
			Data:    checks,
		})
		return
	}
	utils.RespondWithData(w, map[string]any{"status": "ok", "checks": checks})
}
