// Package server exposes the lottery view-state over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/server/handler"
	"github.com/alanyoungcy/megalucky/internal/server/middleware"
	"github.com/alanyoungcy/megalucky/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Purchases,
// Access and Draws are optional.
type Handlers struct {
	Health    *handler.HealthHandler
	Lottery   *handler.LotteryHandler
	Purchases *handler.PurchaseHandler
	Access    *handler.AccessHandler
	Draws     *handler.DrawHandler
}

// Deps carries the optional cross-cutting collaborators.
type Deps struct {
	Hub      *ws.Hub
	Limiter  domain.RateLimiter
	Observer middleware.Observer
	Metrics  http.Handler // served at /metrics
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/lottery", handlers.Lottery.GetLottery)
	mux.HandleFunc("GET /api/lottery/tickets", handlers.Lottery.GetTickets)
	mux.Handle("POST /api/lottery/reload", protect(handlers.Lottery.Reload))
	mux.Handle("POST /api/lottery/tickets/random", protect(handlers.Lottery.BuyRandom))
	mux.Handle("POST /api/lottery/tickets/custom", protect(handlers.Lottery.BuyCustom))
	mux.Handle("POST /api/lottery/error/clear", protect(handlers.Lottery.ClearError))
	mux.Handle("POST /api/lottery/tx/clear", protect(handlers.Lottery.ClearTransactionHash))

	if handlers.Purchases != nil {
		mux.HandleFunc("GET /api/purchases", handlers.Purchases.ListPurchases)
		mux.HandleFunc("GET /api/purchases/{id}", handlers.Purchases.GetPurchase)
	}
	if handlers.Access != nil {
		mux.Handle("POST /api/access/redeem", protect(handlers.Access.Redeem))
		mux.HandleFunc("GET /api/access/codes/{code}", handlers.Access.CheckCode)
		mux.HandleFunc("GET /api/access/{subject}", handlers.Access.GetAccess)
	}
	if handlers.Draws != nil {
		mux.HandleFunc("GET /api/draws", handlers.Draws.ListDraws)
		mux.HandleFunc("GET /api/draws/{id}", handlers.Draws.GetDraw)
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	var h http.Handler = mux
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, window, logger)(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger, deps.Observer)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Purchases wait for approval receipts.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
