package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/interfaces"
)

// APIHandler serves health, version and status endpoints.
type APIHandler struct {
	queue   interfaces.JobQueue
	monitor interfaces.MonitorService
	logger  arbor.ILogger
}

// NewAPIHandler creates the handler.
func NewAPIHandler(queue interfaces.JobQueue, monitor interfaces.MonitorService, logger arbor.ILogger) *APIHandler {
	return &APIHandler{queue: queue, monitor: monitor, logger: logger}
}

// HealthHandler handles GET /api/health.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// VersionHandler handles GET /api/version.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetFullVersion(),
	})
}

// StatusHandler handles GET /api/status with queue occupancy and the
// latest memory sample.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"queue":  h.queue.Stats(),
		"memory": h.monitor.Stats(),
	})
}
