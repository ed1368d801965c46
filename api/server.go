// Package api exposes a tierledger over HTTP. Read routes are public.
// Routes that move funds or change configuration require the operator
// bearer token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/tierledger"
)

// Server is the HTTP server for a ledger.
type Server struct {
	ledger   *tierledger.Ledger
	router   *chi.Mux
	clock    clockwork.Clock
	logger   *slog.Logger
	token    string
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock that supplies "now" to ledger operations.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithOperatorToken sets the bearer token required by admin routes. With no
// token configured every admin route answers 403.
func WithOperatorToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithRegistry registers HTTP metrics with reg and serves reg at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.gatherer = reg
		s.metrics = newHTTPMetrics(reg)
	}
}

// NewServer creates a server listening on addr.
func NewServer(l *tierledger.Ledger, addr string, opts ...Option) *Server {
	s := &Server{
		ledger: l,
		router: chi.NewRouter(),
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gatherer == nil {
		reg := prometheus.NewRegistry()
		s.gatherer = reg
		s.metrics = newHTTPMetrics(reg)
	}

	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metrics.middleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/tiers", s.handleListTiers)
		r.Get("/tiers/{id}", s.handleGetTier)
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Get("/subscriptions/{account}", s.handleGetSubscription)
		r.Get("/subscriptions/{account}/price", s.handleEstimatePrice)
		r.Get("/profit", s.handleProfit)
		r.Get("/distribution", s.handleGetDistribution)
		r.Get("/payouts", s.handleListPayouts)

		r.Group(func(r chi.Router) {
			r.Use(s.requireOperator)
			r.Put("/tiers/{id}", s.handleSetTier)
			r.Post("/subscriptions/{account}", s.handleSubscribe)
			r.Delete("/subscriptions/{account}", s.handleUnsubscribe)
			r.Put("/distribution", s.handleSetDistribution)
			r.Post("/distribution/run", s.handleDistribute)
			r.Post("/distribution/pause", s.handlePause)
			r.Post("/distribution/resume", s.handleResume)
		})
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Store().Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case tierledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, tierledger.ErrInvalidInput),
		errors.Is(err, tierledger.ErrInvalidTier),
		errors.Is(err, tierledger.ErrInvalidShare),
		errors.Is(err, tierledger.ErrRecipientRequired):
		status = http.StatusBadRequest
	case errors.Is(err, tierledger.ErrInsufficientFunding),
		errors.Is(err, tierledger.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, tierledger.ErrPaused):
		status = http.StatusConflict
	case tierledger.IsRetryable(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"fatal", tierledger.IsFatal(err),
			"error", err,
		)
	}
	s.writeError(w, status, err.Error())
}
