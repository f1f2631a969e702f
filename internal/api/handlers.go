package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/printit/orderdesk/pkg/errors"
	"github.com/printit/orderdesk/pkg/middleware"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status       string `json:"status"`
	StoreCircuit string `json:"store_circuit"`
	CachedOrders int    `json:"cached_orders"`
	Uptime       string `json:"uptime"`
	Timestamp    string `json:"timestamp"`
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	state := s.deps.Breaker.GetState()

	health := Health{
		Status:       "ok",
		StoreCircuit: state.String(),
		CachedOrders: len(s.deps.Orders.List()),
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if state.String() != "closed" {
		health.Status = "degraded"
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: health})
}

// respondWithAppError maps an error from the lifecycle onto a status code and error code.
func (s *Server) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusCode(err)
	code := apperrors.Code(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"requestID", middleware.RequestID(r.Context()),
			"path", r.URL.Path,
			"code", code,
			"error", err)
	}
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" && status != http.StatusInternalServerError {
		message = appErr.Message
	}

	s.respondWithError(w, status, code, message)
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, code, message string) {
	s.respondWithJSON(w, status, ApiResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
