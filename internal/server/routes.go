package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Scrape jobs
	mux.HandleFunc("/api/scrape", s.app.ScrapeHandler.StartScrapeHandler) // POST - submit a job
	mux.HandleFunc("/api/jobs", s.app.ScrapeHandler.ListJobsHandler)      // GET - list all jobs
	mux.HandleFunc("/api/jobs/", s.app.ScrapeHandler.GetJobStatusHandler) // GET /{id} - job status

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)

	// Catch-all for unknown paths
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
