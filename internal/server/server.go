package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ScanCleanup/internal/dependencies"
	"ScanCleanup/internal/services"
	"ScanCleanup/pkg/uuidutil"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	readyCheckTimeout   = 3 * time.Second
)

type Server struct {
	router     *chi.Mux
	config     *Config
	container  *dependencies.Container
	httpServer *http.Server
	logger     *slog.Logger
}

type Config struct {
	Host    string
	Port    int
	Version string
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// New creates the status server on top of the dependency container.
func New(config *Config, container *dependencies.Container) *Server {
	logger := container.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{
		router:    chi.NewRouter(),
		config:    config,
		container: container,
		logger:    logger.With("component", "status_server"),
	}

	server.setupMiddlewares()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         config.Addr(),
		Handler:      server.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

func (s *Server) setupMiddlewares() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggerMiddleware)
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	if s.container.Registry != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.container.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)

		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", s.listCycles)
			r.Get("/{run_id}", s.getRunCycles)
		})
	})

	s.router.NotFound(s.notFoundHandler)
	s.router.MethodNotAllowed(s.methodNotAllowedHandler)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"status":    "ok",
		"service":   "scancleanup",
		"version":   s.config.Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	ready := true
	database := "disabled"
	if s.container.DB != nil {
		database = "connected"
		if err := s.container.DB.Ping(ctx); err != nil {
			database = "error: " + err.Error()
			ready = false
		}
	}

	cache := "disabled"
	if s.container.Redis != nil {
		cache = "connected"
		if err := s.container.Redis.Ping(ctx).Err(); err != nil {
			cache = "error: " + err.Error()
			ready = false
		}
	}

	console := "logged_out"
	if s.container.Console != nil && s.container.Console.LoggedIn() {
		console = "logged_in"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "error", http.StatusServiceUnavailable
	}

	writeJSON(w, code, envelope{
		"status":    status,
		"database":  database,
		"redis":     cache,
		"console":   console,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	state := "unknown"
	if s.container.Loop != nil {
		state = string(s.container.Loop.State())
	}

	latest, err := s.container.Reports.Latest(r.Context())
	if err != nil {
		s.logger.Error("failed to read latest cycle report", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse("status_unavailable", "Failed to read the latest cycle report"))
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse("Cleanup status", envelope{
		"state":  state,
		"latest": latest,
	}))
}

func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeJSON(w, http.StatusBadRequest, ErrorResponse("invalid_limit",
				fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)))
			return
		}
		limit = n
	}

	history, err := s.container.Reports.History(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read cycle history", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse("history_unavailable", "Failed to read cycle history"))
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse("Cycle history", history))
}

func (s *Server) getRunCycles(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if !uuidutil.IsValid(runID) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse("invalid_run_id", "Run ID must be a UUID"))
		return
	}

	history, err := s.container.Reports.RunHistory(r.Context(), runID)
	switch {
	case errors.Is(err, services.ErrHistoryUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse("history_unavailable", err.Error()))
		return
	case err != nil:
		s.logger.Error("failed to read run history", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse("history_unavailable", "Failed to read run history"))
		return
	case len(history) == 0:
		writeJSON(w, http.StatusNotFound, ErrorResponse("run_not_found", "No cycles recorded for this run"))
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse("Run history", history))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{
		"error":   "not_found",
		"message": "Endpoint not found",
		"path":    r.URL.Path,
	})
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse("method_not_allowed", "Method not allowed"))
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}

		statusCode := ww.Status()
		level := slog.LevelDebug
		if statusCode >= 400 {
			level = slog.LevelWarn
		}
		if statusCode >= 500 {
			level = slog.LevelError
		}

		s.logger.Log(r.Context(), level, "HTTP request",
			"status", statusCode,
			"method", r.Method,
			"path", path,
			"ip", r.RemoteAddr,
			"latency", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting status server", "address", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests. The container is closed by its owner.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
