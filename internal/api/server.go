package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/models"
	"github.com/printit/orderdesk/internal/order"
	"github.com/printit/orderdesk/pkg/circuitbreaker"
	"github.com/printit/orderdesk/pkg/logger"
	"github.com/printit/orderdesk/pkg/middleware"
)

// Orders is the order lifecycle the console drives.
type Orders interface {
	Get(id string) (order.Order, error)
	List() []order.Order
	Refresh(ctx context.Context) error
	Accept(ctx context.Context, id string) (order.Order, error)
	Reject(ctx context.Context, id string) (order.Order, error)
	Cancel(ctx context.Context, id string) (order.Order, error)
	SetQuotation(ctx context.Context, id string, amount decimal.Decimal) (order.Order, error)
	MarkPaid(ctx context.Context, id string) (order.Order, error)
	Delete(ctx context.Context, id string) error
}

// Journal exposes the lifecycle outbox to admins.
type Journal interface {
	ListByStatus(ctx context.Context, status models.OutboxStatus, limit int) ([]*models.OutboxMessage, error)
	Requeue(ctx context.Context, id int64) error
}

// Breaker is the order store circuit breaker.
type Breaker interface {
	GetState() circuitbreaker.State
	GetMetrics() map[string]interface{}
	Reset()
}

// Deps are the collaborators the server routes to. Journal and the rate
// limiters are optional.
type Deps struct {
	Orders              Orders
	Journal             Journal
	Breaker             Breaker
	RateLimiter         *middleware.RateLimiterMiddleware
	EndpointRateLimiter *middleware.EndpointRateLimiterMiddleware
}

type Server struct {
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
	deps       Deps
	startedAt  time.Time
}

// NewServer creates the console API server listening on port.
func NewServer(port int, deps Deps, logger logger.Logger) *Server {
	r := mux.NewRouter()

	s := &Server{
		logger: logger.With("component", "api"),
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:      deps,
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.RateLimiter != nil {
		s.deps.RateLimiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logging(s.logger))
	if s.deps.RateLimiter != nil {
		s.router.Use(s.deps.RateLimiter.Middleware)
	}
	if s.deps.EndpointRateLimiter != nil {
		s.router.Use(s.deps.EndpointRateLimiter.Middleware)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondWithError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.listOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/refresh", s.refreshOrdersHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.getOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.deleteOrderHandler).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/accept", s.intentHandler(Orders.Accept)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/reject", s.intentHandler(Orders.Reject)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/cancel", s.intentHandler(Orders.Cancel)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/mark-paid", s.intentHandler(Orders.MarkPaid)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/quotation", s.setQuotationHandler).Methods(http.MethodPut)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/outbox", s.listOutboxHandler).Methods(http.MethodGet)
	admin.HandleFunc("/outbox/{id:[0-9]+}/retry", s.retryOutboxHandler).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
	admin.HandleFunc("/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/rate-limits", s.setEndpointRateLimitHandler).Methods(http.MethodPost)
}
