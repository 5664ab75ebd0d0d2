package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Blob store routes, addressed as /{namespace}/{key} suffixes.
	// Cancel takes a job id instead of a path.
	mux.HandleFunc("/store/put/", s.app.StoreHandler.UploadHandler)
	mux.HandleFunc("/store/get/", s.app.StoreHandler.DownloadHandler)
	mux.HandleFunc("/store/delete/", s.app.StoreHandler.DeleteHandler)
	mux.HandleFunc("/store/metadata/get/", s.app.StoreHandler.MetadataHandler)
	mux.HandleFunc("/store/cancel/", s.app.StoreHandler.CancelHandler)

	// User routes
	mux.HandleFunc("/users/login", s.app.UserHandler.LoginHandler)
	mux.HandleFunc("/users/create", s.app.UserHandler.CreateHandler)
	mux.HandleFunc("/users/", s.app.UserHandler.UserRoutes)

	// API routes - System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	return mux
}
