// Package http exposes the service endpoints of the student directory:
// health probes, Prometheus metrics, bot statistics and the Telegram webhook.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jbcub/studentdir/internal/interface/http/handlers"
	"github.com/jbcub/studentdir/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// WebhookPath - path Telegram posts updates to. Empty disables the route.
	WebhookPath string

	// WebhookSecret - expected X-Telegram-Bot-Api-Secret-Token value.
	WebhookSecret string

	// MetricsPath - Prometheus exposition path.
	MetricsPath string

	// EnableMetrics - serve MetricsPath when a metrics handler is provided.
	EnableMetrics bool

	// Version is reported by / and the health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		WebhookPath:    "/telegram/webhook",
		MetricsPath:    "/metrics",
		EnableMetrics:  true,
		Version:        "dev",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RequestRecorder counts served requests per route.
type RequestRecorder interface {
	HTTPRequest(route string, code int)
}

// Dependencies contains everything the routes need. Only Logger has a default;
// routes whose dependency is missing are not registered.
type Dependencies struct {
	Logger *logger.Logger

	HealthChecker  handlers.HealthChecker
	WebhookHandler handlers.WebhookHandler

	// Metrics serves the Prometheus registry.
	Metrics  http.Handler
	Recorder RequestRecorder

	// Stats returns a JSON-serializable snapshot of the bot.
	Stats func() any
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:    config,
		deps:      deps,
		router:    http.NewServeMux(),
		logger:    deps.Logger,
		startedAt: time.Now(),
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.Handler(),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return handlers.ChainHandler(s.router,
		handlers.Recover(s.logger),
		handlers.RequestID,
		handlers.AccessLog(s.logger),
		handlers.SecurityHeaders,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status
	// ─────────────────────────────────────────────────────────────────────────
	s.handle("GET /{$}", "root", http.HandlerFunc(s.handleRoot))
	s.handle("GET /livez", "livez", http.HandlerFunc(s.handleLive))
	s.handle("GET /healthz", "healthz", http.HandlerFunc(s.handleHealth))
	s.handle("GET /readyz", "readyz", http.HandlerFunc(s.handleReady))

	if s.deps.Stats != nil {
		s.handle("GET /stats", "stats", http.HandlerFunc(s.handleStats))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Metrics
	// ─────────────────────────────────────────────────────────────────────────
	if s.config.EnableMetrics && s.deps.Metrics != nil && s.config.MetricsPath != "" {
		s.router.Handle("GET "+s.config.MetricsPath, s.deps.Metrics)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Telegram Webhook
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.WebhookHandler != nil && s.config.WebhookPath != "" {
		s.handle("POST "+s.config.WebhookPath, "webhook",
			handlers.NewTelegramWebhook(s.deps.WebhookHandler, s.config.WebhookSecret, s.logger))
	}
}

// handle registers h and records the status it answers under the route name.
func (s *Server) handle(pattern, route string, h http.Handler) {
	if s.deps.Recorder == nil {
		s.router.Handle(pattern, h)
		return
	}
	s.router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &handlers.StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		h.ServeHTTP(rw, r)
		s.deps.Recorder.HTTPRequest(route, rw.Status)
	}))
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server. It blocks until the server stops and returns
// nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("http server starting", logger.String("addr", s.config.Address()))

	err := s.httpServer.ListenAndServe()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http server: %w", err)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the time since the server was started.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startedAt)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok":      false,
		"error":   code,
		"message": message,
	})
}
