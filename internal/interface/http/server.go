// Package http implements the REST API of Aura Hub: users, challenges,
// completion records, rankings and statistics, plus health and metrics
// endpoints.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/aura-hub/aura-hub/internal/application/command"
	"github.com/aura-hub/aura-hub/internal/application/query"
	"github.com/aura-hub/aura-hub/internal/interface/http/health"
	"github.com/aura-hub/aura-hub/pkg/logger"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
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

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string

	// MetricsPath - where Prometheus metrics are exposed when Metrics is set.
	MetricsPath string

	// RateLimitPerSecond - sustained requests per second per IP (0 = disabled).
	RateLimitPerSecond float64

	// RateLimitBurst - bucket size of the per-IP limiter.
	RateLimitBurst int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		AllowedOrigins:     []string{"*"},
		MetricsPath:        "/metrics",
		RateLimitPerSecond: 5,
		RateLimitBurst:     30,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands
	Challenges  *command.ChallengeHandlers
	RecordCheck *command.RecordCheckHandler
	UpsertUser  *command.UpsertUserHandler

	// Queries
	GetChallenge   *query.GetChallengeHandler
	Ranking        *query.GetRankingHandler
	UserChallenges *query.ListUserChallengesHandler
	Records        *query.ListRecordsHandler
	TodayChecks    *query.TodayChecksHandler
	Summary        *query.UserSummaryHandler
	YearlyStats    *query.YearlyStatsHandler

	// TimeTravel enables the debug date-offset routes when non-nil.
	TimeTravel *timeutil.OffsetClock

	// Metrics enables request metrics and the metrics endpoint when non-nil.
	Metrics *Metrics

	HealthChecker health.Checker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	logger     *logger.Logger
	metrics    *Metrics
	limiter    *ipRateLimiter

	mu          sync.RWMutex
	running     bool
	startedAt   time.Time
	stopJanitor context.CancelFunc
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:  config,
		deps:    deps,
		router:  mux.NewRouter(),
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = health.NewComposite("")
	}
	if config.RateLimitPerSecond > 0 {
		s.limiter = newIPRateLimiter(config.RateLimitPerSecond, config.RateLimitBurst)
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(s.requestIDMiddleware, s.loggingMiddleware)
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, req, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSONError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle(s.metricsPath(), s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// ─────────────────────────────────────────────────────────────────────────
	// Users
	// ─────────────────────────────────────────────────────────────────────────
	api.HandleFunc("/users", s.handleUpsertUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{userId}/challenges", s.handleListUserChallenges).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/checks", s.handleListUserRecords).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/summary", s.handleUserSummary).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/stats/{year:[0-9]+}", s.handleYearlyStats).Methods(http.MethodGet)

	// ─────────────────────────────────────────────────────────────────────────
	// Challenges
	// ─────────────────────────────────────────────────────────────────────────
	api.HandleFunc("/challenges", s.handleCreateChallenge).Methods(http.MethodPost)
	api.HandleFunc("/challenges/join", s.handleJoinChallenge).Methods(http.MethodPost)
	api.HandleFunc("/challenges/{challengeId}", s.handleGetChallenge).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{challengeId}/ranking", s.handleGetRanking).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{challengeId}/checks", s.handleListChallengeRecords).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{challengeId}/checks/today", s.handleTodayChecks).Methods(http.MethodGet)
	api.HandleFunc("/challenges/{challengeId}/participants/{userId}", s.handleLeaveChallenge).Methods(http.MethodDelete)
	api.HandleFunc("/challenges/{challengeId}/complete", s.handleCompleteChallenge).Methods(http.MethodPost)

	// ─────────────────────────────────────────────────────────────────────────
	// Completion records
	// ─────────────────────────────────────────────────────────────────────────
	api.HandleFunc("/checks", s.handleRecordCheck).Methods(http.MethodPost)
	api.HandleFunc("/checks/today/bulk", s.handleBulkTodayChecks).Methods(http.MethodPost)

	// ─────────────────────────────────────────────────────────────────────────
	// Debug
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.TimeTravel != nil {
		api.HandleFunc("/debug/date-offset", s.handleGetDateOffset).Methods(http.MethodGet)
		api.HandleFunc("/debug/date-offset", s.handleSetDateOffset).Methods(http.MethodPost)
		api.HandleFunc("/debug/date-offset", s.handleResetDateOffset).Methods(http.MethodDelete)
	}
}

func (s *Server) metricsPath() string {
	if s.config.MetricsPath == "" {
		return "/metrics"
	}
	return s.config.MetricsPath
}

// buildMiddlewareChain wraps the router with the handlers that must also see
// unmatched requests: panic recovery outermost, then CORS.
func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	)(h)

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: s.logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	if s.limiter != nil {
		var ctx context.Context
		ctx, s.stopJanitor = context.WithCancel(context.Background())
		go s.limiter.runCleanup(ctx, time.Minute)
	}
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.stopJanitor != nil {
		s.stopJanitor()
	}
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
