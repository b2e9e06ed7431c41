package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/elasticd/internal/auth"
	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/events"
	"github.com/mattjoyce/elasticd/internal/journal"
	"github.com/mattjoyce/elasticd/internal/plugin"
	"github.com/mattjoyce/elasticd/internal/protocol"
)

// Registry is the subset of elastic.Registry the API serves.
type Registry interface {
	ListPlugins() []plugin.Descriptor
	Plugin(id string) (plugin.Descriptor, bool)
	CreateAgent(ctx context.Context, resources []string, environment string) (elastic.Outcome, error)
	ServerPing(ctx context.Context, pluginID string, agents []protocol.AgentMetadata) error
	ShouldAssignWork(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata, resources []string, environment string) (bool, error)
	NotifyAgentBusy(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata) error
	NotifyAgentIdle(ctx context.Context, d plugin.Descriptor, agent protocol.AgentMetadata) error
}

// JournalReader reads recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	authn     *auth.Authenticator
	registry  Registry
	roster    *Roster
	events    *events.Hub
	journal   JournalReader
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. journal and gatherer may be nil, in
// which case /journal and /metrics are not served.
func New(config Config, registry Registry, roster *Roster, hub *events.Hub, jr JournalReader, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if roster == nil {
		roster = NewRoster()
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:    config,
		authn:     auth.NewAuthenticator(config.APIKey, config.Tokens),
		registry:  registry,
		roster:    roster,
		events:    hub,
		journal:   jr,
		gatherer:  gatherer,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: /events is a long-lived stream.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.requireScopes(auth.ScopePluginsRO)).Get("/plugins", s.handleListPlugins)
		r.With(s.requireScopes(auth.ScopePluginsRO)).Get("/openapi.json", s.handleOpenAPI)
		r.With(s.requireScopes(auth.ScopeAgentsRW)).Post("/agents", s.handleCreateAgent)
		r.With(s.requireScopes(auth.ScopeAgentsRO)).Get("/agents", s.handleListAgents)

		r.Route("/plugins/{pluginID}", func(r chi.Router) {
			r.Use(s.requireScopes(auth.ScopeAgentsRW))
			r.Post("/ping", s.handlePing)
			r.Post("/should-assign-work", s.handleShouldAssignWork)
			r.Post("/agents/busy", s.handleAgentBusy)
			r.Post("/agents/idle", s.handleAgentIdle)
		})

		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
		if s.journal != nil {
			r.With(s.requireScopes(auth.ScopeJournalRO)).Get("/journal", s.handleJournal)
		}
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
