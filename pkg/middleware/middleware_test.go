package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/printit/orderdesk/pkg/logger"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRateLimiterPerClient(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens:  100,
		GlobalRefillRate: 100,
		IPMaxTokens:      1,
		IPRefillRate:     0.001,
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(ok)

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:5001"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:5000"))
	assert.EqualValues(t, 2, m.GetMetrics()["tracked_clients"])
}

func TestRateLimiterTrustsForwardedFor(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 10, GlobalRefillRate: 1,
		IPMaxTokens: 1, IPRefillRate: 0.001,
		TrustForwardedFor: true,
	}, logger.NewNop())
	defer m.Stop()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", m.getClientIP(req))
}

func TestGlobalRateLimit(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{
		GlobalMaxTokens: 1, GlobalRefillRate: 0.001,
		IPMaxTokens: 10, IPRefillRate: 1,
	}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
}

func TestEndpointRateLimiterKeysByRouteTemplate(t *testing.T) {
	m := NewEndpointRateLimiterMiddleware(100, 100, logger.NewNop())
	m.SetLimit("POST:/orders/{id}/accept", 1, 0.001)

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.Handle("/orders/{id}/accept", ok).Methods(http.MethodPost)
	r.Handle("/orders/{id}", ok).Methods(http.MethodGet)

	do := func(method, path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "/orders/o1/accept"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/orders/o2/accept"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "/orders/o1"))

	limits := m.GetAllLimits()
	assert.Contains(t, limits, "POST:/orders/{id}/accept")
	assert.Contains(t, limits, "GET:/orders/{id}")
}

func TestLoggingAssignsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	var seen string
	h := Logging(logger.FromZap(zap.New(core)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders/o1/accept", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.EqualValues(t, http.StatusAccepted, fields["status"])
	assert.Equal(t, seen, fields["requestID"])
}

func TestLoggingKeepsIncomingRequestID(t *testing.T) {
	h := Logging(logger.NewNop())(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestLoggingRecoversPanics(t *testing.T) {
	h := Logging(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
