// Package server serves the kaleidoscope over HTTP: the JSON control API,
// the MJPEG stream, the landmark websocket and the browser UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/kaleido/internal/app"
	"github.com/ayusman/kaleido/internal/controls"
	"github.com/ayusman/kaleido/web"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Pipeline is the part of the running kaleidoscope the server exposes.
type Pipeline interface {
	Status() app.Status
	Controls() *controls.Controls
	Video() *app.Hub[app.EncodedFrame]
	Overlays() *app.Hub[app.Overlay]
}

// Config holds the server configuration.
type Config struct {
	// StaticDir serves the UI from disk instead of the embedded copy.
	StaticDir string
	Pipeline  Pipeline
	// WSRate and WSBurst bound the control messages each websocket may send.
	WSRate  float64
	WSBurst int
	Logger  *logrus.Logger
}

// Server represents the HTTP server.
type Server struct {
	config     Config
	router     chi.Router
	start      time.Time
	log        *logrus.Entry
	httpServer *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.WSRate <= 0 {
		config.WSRate = 30
	}
	if config.WSBurst <= 0 {
		config.WSBurst = 10
	}

	s := &Server{
		config: config,
		router: chi.NewRouter(),
		start:  time.Now(),
		log:    config.Logger.WithField("component", "server"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if s.config.Pipeline == nil {
			return
		}
		p := s.config.Pipeline
		r.Get("/status", s.handleStatus)
		r.Get("/controls", s.handleGetControls)
		r.Put("/controls", s.handlePutControls)
		r.Put("/viewport", s.handlePutViewport)
		r.Method(http.MethodGet, "/stream", NewStreamHandler(p.Video(), s.log))
		r.Method(http.MethodGet, "/ws", NewControlSocket(p, s.config.WSRate, s.config.WSBurst, s.log))
	})

	r.Handle("/*", http.FileServer(s.staticFS()))
}

// staticFS returns the UI files: StaticDir if configured, otherwise the
// copy embedded in the binary.
func (s *Server) staticFS() http.FileSystem {
	if s.config.StaticDir != "" {
		return http.Dir(s.config.StaticDir)
	}
	sub, err := fs.Sub(web.Static, "static")
	if err != nil {
		// The embed pattern guarantees the directory exists
		panic(err)
	}
	return http.FS(sub)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// ListenAndServe starts the HTTP server on the given address. It returns
// nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.log.WithField("addr", addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. Long-lived streams end when
// the pipeline's hubs close; any still open at the deadline are cut.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
