package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/keisoku/internal/auth"
	"github.com/ashita-ai/keisoku/internal/model"
	"github.com/ashita-ai/keisoku/internal/ratelimit"
)

// Server is the Keisoku HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Handlers *Handlers
	JWTMgr   *auth.JWTManager
	Logger   *slog.Logger

	// Optional; nil disables rate limiting.
	Limiter ratelimit.Limiter

	// HTTP server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := cfg.Handlers

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	agentRL := ratelimit.Middleware(cfg.Limiter, agentKeyFunc, reqIDFunc, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Token issuance (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Telemetry ingestion (agent+, rate limited per agent).
	writeRole := requireRole(model.RoleAgent)
	mux.Handle("POST /v1/telemetry", agentRL(writeRole(http.HandlerFunc(h.HandleRecordTelemetry))))

	// Query endpoints (reader+, rate limited per agent).
	readRole := requireRole(model.RoleReader)
	mux.Handle("GET /v1/telemetry/task/{task_id}", agentRL(readRole(http.HandlerFunc(h.HandleListByTask))))
	mux.Handle("GET /v1/telemetry/run/{run_id}", agentRL(readRole(http.HandlerFunc(h.HandleListByRun))))
	mux.Handle("GET /v1/analytics", agentRL(readRole(http.HandlerFunc(h.HandleAnalytics))))
	mux.Handle("GET /v1/analytics/anomalies", agentRL(readRole(http.HandlerFunc(h.HandleAnomalies))))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// agentKeyFunc extracts the agent ID from the request context for rate
// limiting. Returns empty string for admin roles (exempt from rate limits).
func agentKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		return ""
	}
	return "org:" + claims.OrgID.String() + ":agent:" + claims.AgentID
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
