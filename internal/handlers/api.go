package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/common"
)

// APIHandler serves the system endpoints: version, health and the JSON 404
type APIHandler struct {
	logger    arbor.ILogger
	startTime time.Time
}

func NewAPIHandler() *APIHandler {
	return &APIHandler{
		logger:    common.GetLogger(),
		startTime: time.Now(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"service":    "harvester",
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler reports liveness plus basic worker diagnostics
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"service":         "harvester",
		"uptime":          time.Since(h.startTime).Round(time.Second).String(),
		"workers_spawned": common.GetGoroutineCount(),
	})
}

// NotFoundHandler handles unknown paths with a JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "Unknown endpoint; see /api/scrape and /api/jobs",
	})
}
