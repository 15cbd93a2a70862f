// Package api exposes the ledger, the price feed and the trading engine over
// JSON/HTTP. Every response carries "status": "ok" or "error".
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"yellowcore-go/internal/auth"
	"yellowcore-go/internal/config"
	"yellowcore-go/internal/database"
	"yellowcore-go/internal/ledger"
	"yellowcore-go/internal/pricefeed"
	"yellowcore-go/internal/trader"
)

// Services bundles the components the handlers dispatch to.
type Services struct {
	Auth    *auth.Service
	Ledger  *ledger.Ledger
	Feed    *pricefeed.Feed
	Engine  *trader.Engine
	Journal *database.Journal // optional
}

// APIServer provides an HTTP interface for the bank and the exchange.
type APIServer struct {
	server    *http.Server
	svc       Services
	limiter   *rate.Limiter
	logger    *zap.Logger
	startTime time.Time
}

// NewAPIServer creates a new APIServer listening on cfg.Port.
func NewAPIServer(cfg config.Server, svc Services, logger *zap.Logger) *APIServer {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	s := &APIServer{
		svc:       svc,
		limiter:   rate.NewLimiter(limit, cfg.RateLimitBurst),
		logger:    logger.Named("api-server"),
		startTime: time.Now(),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed and rate limited handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /api/register", s.registerHandler)
	mux.HandleFunc("POST /api/login", s.loginHandler)
	mux.HandleFunc("POST /api/logout", s.logoutHandler)

	mux.HandleFunc("POST /api/accounts", s.authed(s.createAccountHandler))
	mux.HandleFunc("GET /api/accounts", s.authed(s.listAccountsHandler))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.authed(s.closeAccountHandler))
	mux.HandleFunc("POST /api/accounts/{id}/deposit", s.authed(s.depositHandler))
	mux.HandleFunc("POST /api/accounts/{id}/withdraw", s.authed(s.withdrawHandler))
	mux.HandleFunc("GET /api/accounts/{id}/history", s.authed(s.historyHandler))
	mux.HandleFunc("POST /api/transfers", s.authed(s.transferHandler))

	mux.HandleFunc("GET /api/rates", s.authed(s.ratesHandler))
	mux.HandleFunc("GET /api/quotes", s.authed(s.quotesHandler))

	mux.HandleFunc("POST /api/orders/buy", s.authed(s.buyHandler))
	mux.HandleFunc("POST /api/orders/sell", s.authed(s.sellHandler))
	mux.HandleFunc("GET /api/portfolio", s.authed(s.portfolioHandler))
	mux.HandleFunc("GET /api/trades", s.authed(s.tradesHandler))
	mux.HandleFunc("GET /api/journal", s.authed(s.journalHandler))
	mux.HandleFunc("GET /api/statistics", s.authed(s.statisticsHandler))

	return s.rateLimited(s.logged(mux))
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *APIServer) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
