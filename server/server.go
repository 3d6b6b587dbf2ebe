package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"

	"mdtransclude/config"
	"mdtransclude/renderer"
	"mdtransclude/transclude"
)

// Server serves expanded Markdown previews.
type Server struct {
	config     config.Config
	router     chi.Router
	httpServer *http.Server
	resolver   *transclude.Resolver
	renderer   *renderer.Renderer
	liveReload *LiveReload
	logger     glog.Logger
}

// NewServer creates a new server instance. RootDir must be absolute.
func NewServer(cfg config.Config, logger glog.Logger) *Server {
	s := &Server{
		config:   cfg,
		renderer: renderer.New(),
		logger:   logger,
	}
	s.resolver = newResolver(cfg, logger)

	// Initialize LiveReload if enabled
	if cfg.EnableLiveReload {
		lr, err := NewLiveReload(cfg.RootDir, logger)
		if err != nil {
			logger.Warn("live reload unavailable", "error", err)
		} else if err := lr.Start(); err != nil {
			logger.Warn("live reload failed to start", "error", err)
			lr.Stop()
		} else {
			s.liveReload = lr
		}
	}

	s.setupRoutes()
	return s
}

func newResolver(cfg config.Config, logger glog.Logger) *transclude.Resolver {
	tc := cfg.Transclusion
	opts := []transclude.Option{
		transclude.WithLogger(logger),
		transclude.WithStrict(tc.Strict),
		transclude.WithMaxDepth(tc.MaxDepth),
		transclude.WithMaxSize(tc.MaxSize),
		transclude.WithDedupe(tc.Dedupe),
		transclude.WithStripMetadata(tc.StripMetadata),
	}
	if tc.ConfineToRoot {
		opts = append(opts, transclude.WithRoot(cfg.RootDir))
	}
	return transclude.NewResolver(opts...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down and releases the watcher.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}
	if s.liveReload != nil {
		s.liveReload.Stop()
	}
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// The websocket needs the raw ResponseWriter, so it stays outside the
	// logging group.
	if s.liveReload != nil {
		r.Get("/livereload", s.liveReload.HandleWebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))

		r.Get("/assets/*", s.handleAssets)
		r.Get("/_raw/*", s.handleRaw)
		r.Get("/_manifest/*", s.handleManifest)
		r.Get("/*", s.handleRequest)
	})

	s.router = r
}

// handleRequest serves the directory index, rendered documents, and
// static files from the root directory.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	requestPath := strings.TrimPrefix(r.URL.Path, "/")
	if requestPath == "" {
		if s.config.File != "" {
			http.Redirect(w, r, "/"+filepath.ToSlash(s.config.File), http.StatusFound)
			return
		}
		s.handleIndex(w, r, s.config.RootDir)
		return
	}

	filePath := filepath.Join(s.config.RootDir, filepath.FromSlash(requestPath))
	if !s.isValidPath(filePath) {
		http.Error(w, "Invalid path", http.StatusForbidden)
		return
	}

	if isDir(filePath) {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		s.handleIndex(w, r, filePath)
		return
	}

	if isMarkdown(filePath) {
		s.handleMarkdown(w, r, filePath)
		return
	}
	if filepath.Ext(filePath) == "" && isFile(filePath+".md") {
		s.handleMarkdown(w, r, filePath+".md")
		return
	}

	s.handleStaticFile(w, r, filePath)
}

// isValidPath checks if a file path is within the root directory
func (s *Server) isValidPath(filePath string) bool {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(s.config.RootDir, absPath)
	if err != nil {
		return false
	}

	// Prevent directory traversal
	return rel != ".." && rel != "." && len(rel) > 0 && rel[0] != '.'
}

// relPath returns a path relative to the root directory, or the original path if it's outside the root
func (s *Server) relPath(path string) string {
	rel, err := filepath.Rel(s.config.RootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// requestLogger logs each request after it completes.
func requestLogger(logger glog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
