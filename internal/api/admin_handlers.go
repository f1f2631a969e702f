package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/printit/orderdesk/internal/models"
	"github.com/printit/orderdesk/internal/repository"
	apperrors "github.com/printit/orderdesk/pkg/errors"
)

const defaultOutboxLimit = 50

func (s *Server) journalDisabled(w http.ResponseWriter) bool {
	if s.deps.Journal != nil {
		return false
	}
	s.respondWithError(w, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "lifecycle journal is disabled")
	return true
}

// listOutboxHandler lists journal messages, failed ones by default
func (s *Server) listOutboxHandler(w http.ResponseWriter, r *http.Request) {
	if s.journalDisabled(w) {
		return
	}

	status := models.OutboxStatusFailed
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := models.ParseOutboxStatus(v)
		if err != nil {
			s.respondWithAppError(w, r, apperrors.NewValidationError(err.Error()))
			return
		}
		status = st
	}

	limit := defaultOutboxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.respondWithAppError(w, r, apperrors.NewValidationError("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	messages, err := s.deps.Journal.ListByStatus(r.Context(), status, limit)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: messages})
}

// retryOutboxHandler puts a failed journal message back in the queue
func (s *Server) retryOutboxHandler(w http.ResponseWriter, r *http.Request) {
	if s.journalDisabled(w) {
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.respondWithAppError(w, r, apperrors.NewValidationError("invalid message id"))
		return
	}

	err = s.deps.Journal.Requeue(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.respondWithAppError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("outbox message %d not found", id)))
		return
	case errors.Is(err, repository.ErrNotFailed):
		s.respondWithError(w, http.StatusConflict, "NOT_FAILED", err.Error())
		return
	case err != nil:
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"message": "Message requeued"},
	})
}

// getCircuitBreakerStatusHandler returns the state of the order store circuit breaker
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.deps.Breaker.GetMetrics()})
}

// resetCircuitBreakerHandler resets the circuit breaker to closed state
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	s.deps.Breaker.Reset()
	s.logger.Warn("Order store circuit breaker reset by admin")

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
		},
	})
}

// getRateLimitsHandler returns the current rate limit settings and metrics
func (s *Server) getRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{}
	if s.deps.RateLimiter != nil {
		response["global_metrics"] = s.deps.RateLimiter.GetMetrics()
	}
	if s.deps.EndpointRateLimiter != nil {
		response["endpoint_limits"] = s.deps.EndpointRateLimiter.GetAllLimits()
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response})
}

// setEndpointRateLimitHandler sets the limit for one endpoint, e.g. "POST:/api/v1/orders/{id}/accept"
func (s *Server) setEndpointRateLimitHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.EndpointRateLimiter == nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "RATE_LIMIT_DISABLED", "endpoint rate limiting is disabled")
		return
	}
	defer r.Body.Close()

	var req struct {
		Endpoint   string  `json:"endpoint"`
		MaxTokens  float64 `json:"max_tokens"`
		RefillRate float64 `json:"refill_rate"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithAppError(w, r, apperrors.NewValidationError("invalid request payload"))
		return
	}
	if req.Endpoint == "" || req.MaxTokens <= 0 || req.RefillRate <= 0 {
		s.respondWithAppError(w, r, apperrors.NewValidationError("endpoint, max_tokens and refill_rate are required"))
		return
	}

	s.deps.EndpointRateLimiter.SetLimit(req.Endpoint, req.MaxTokens, req.RefillRate)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: req})
}
