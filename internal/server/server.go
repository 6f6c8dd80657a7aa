package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/server/handler"
	"github.com/knowton/ipbond/internal/server/middleware"
	"github.com/knowton/ipbond/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// APIKeys maps API key to caller identity. Empty disables auth.
	APIKeys map[string]string

	// Rate limiting per caller. A nil limiter disables it.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health       *handler.HealthHandler
	Bonds        *handler.BondHandler
	Investments  *handler.InvestmentHandler
	Distribution *handler.DistributionHandler
	Lifecycle    *handler.LifecycleHandler
	Redemption   *handler.RedemptionHandler
	Admin        *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the bond engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Bond endpoints.
	mux.HandleFunc("POST /api/bonds", handlers.Bonds.IssueBond)
	mux.HandleFunc("GET /api/bonds", handlers.Bonds.ListBonds)
	mux.HandleFunc("GET /api/bonds/{id}", handlers.Bonds.GetBond)
	mux.HandleFunc("GET /api/bonds/{id}/distributions", handlers.Bonds.ListDistributions)

	// Investment endpoints.
	mux.HandleFunc("POST /api/bonds/{id}/invest", handlers.Investments.Invest)
	mux.HandleFunc("GET /api/investors/{addr}/positions", handlers.Investments.Positions)

	// Distribution endpoint.
	mux.HandleFunc("POST /api/bonds/{id}/distribute", handlers.Distribution.Distribute)

	// Lifecycle endpoints.
	mux.HandleFunc("POST /api/bonds/{id}/mature", handlers.Lifecycle.MarkMatured)
	mux.HandleFunc("POST /api/bonds/{id}/default", handlers.Lifecycle.MarkDefaulted)

	// Redemption endpoint.
	mux.HandleFunc("POST /api/investments/{id}/redeem", handlers.Redemption.Redeem)

	// Admin endpoints.
	mux.HandleFunc("GET /api/admin/status", handlers.Admin.Status)
	mux.HandleFunc("POST /api/admin/pause", handlers.Admin.SetPaused)
	mux.HandleFunc("POST /api/admin/issuers", handlers.Admin.GrantIssuer)
	mux.HandleFunc("DELETE /api/admin/issuers/{identity}", handlers.Admin.RevokeIssuer)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.ListAudit)
	mux.HandleFunc("GET /api/admin/archives", handlers.Admin.ListArchives)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Auth(cfg.APIKeys)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
