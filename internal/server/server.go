// Package server provides the HTTP server for the parallax viewer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/parallax/internal/log"
	"github.com/ayusman/parallax/internal/server/api"
	"github.com/ayusman/parallax/internal/store"
)

// Viewer is what the server needs from the running viewer.
type Viewer interface {
	api.Viewer
	PreviewSource
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Viewer    Viewer
	Hub       *CameraHub
}

// Server represents the HTTP server for the parallax viewer.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if v := s.config.Viewer; v != nil {
		devices := api.NewDevicesHandler(v)
		s.mux.Handle("/api/devices", devices)
		s.mux.Handle("/api/devices/", devices)
		s.mux.Handle("/api/camera", api.NewCameraHandler(v))
		s.mux.Handle("/api/follow", api.NewFollowHandler(v))
		s.mux.Handle("/api/stats", api.NewStatsHandler(v))
		s.mux.Handle("/api/stream", NewStreamHandler(v))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/camera/ws", s.config.Hub)
	}

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.http.Addr = addr
	log.Info(log.Fields{"component": "server", "addr": addr}, "[server.ListenAndServe] listening")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server. A later ListenAndServe returns nil
// immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
