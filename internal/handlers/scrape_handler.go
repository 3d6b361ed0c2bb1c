package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/campusworks/harvester/internal/interfaces"
	"github.com/campusworks/harvester/internal/jobs"
	"github.com/campusworks/harvester/internal/models"
)

// ScrapeHandler handles HTTP requests for scrape job submission and status
type ScrapeHandler struct {
	service *jobs.Service
	logger  arbor.ILogger
}

// NewScrapeHandler creates a new ScrapeHandler
func NewScrapeHandler(service *jobs.Service, logger arbor.ILogger) *ScrapeHandler {
	return &ScrapeHandler{
		service: service,
		logger:  logger,
	}
}

// StartScrapeHandler handles POST /api/scrape
func (h *ScrapeHandler) StartScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	// Decode over the defaults so absent toggle fields stay enabled
	req := models.DefaultScrapeRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	jobID, err := h.service.Submit(r.Context(), req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id":  jobID,
		"status":  string(models.JobStatusQueued),
		"message": "Job queued for processing",
	})
}

// GetJobStatusHandler handles GET /api/jobs/{id}
func (h *ScrapeHandler) GetJobStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.service.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// ListJobsHandler handles GET /api/jobs
func (h *ScrapeHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobList, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(jobList),
		"jobs":  jobList,
	})
}
