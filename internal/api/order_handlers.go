package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/order"
	apperrors "github.com/printit/orderdesk/pkg/errors"
)

// OrderResponse is an order as the console renders it.
type OrderResponse struct {
	order.Order
	QuotationAmount *json.Number `json:"quotationAmount,omitempty"`
	State           string       `json:"state"`
}

func newOrderResponse(o order.Order) OrderResponse {
	resp := OrderResponse{Order: o, State: o.State()}
	if o.QuotationAmount != nil {
		n := json.Number(o.QuotationAmount.String())
		resp.QuotationAmount = &n
	}
	return resp
}

func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status order.Status
	if v := q.Get("status"); v != "" {
		st, err := order.ParseStatus(v)
		if err != nil {
			s.respondWithAppError(w, r, apperrors.NewValidationError(fmt.Sprintf("unknown status filter %q", v)))
			return
		}
		status = st
	}

	var payment order.PaymentStatus
	if v := q.Get("paymentStatus"); v != "" {
		ps, err := order.ParsePaymentStatus(v)
		if err != nil {
			s.respondWithAppError(w, r, apperrors.NewValidationError(fmt.Sprintf("unknown paymentStatus filter %q", v)))
			return
		}
		payment = ps
	}

	orders := []OrderResponse{}
	for _, o := range s.deps.Orders.List() {
		if status != "" && o.Status != status {
			continue
		}
		if payment != "" && o.PaymentStatus != payment {
			continue
		}
		orders = append(orders, newOrderResponse(o))
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: orders})
}

func (s *Server) refreshOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Orders.Refresh(r.Context()); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]int{"count": len(s.deps.Orders.List())},
	})
}

func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Orders.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: newOrderResponse(o)})
}

// intentHandler serves a body-less intent endpoint.
func (s *Server) intentHandler(intent func(Orders, context.Context, string) (order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := intent(s.deps.Orders, r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.respondWithAppError(w, r, err)
			return
		}

		s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: newOrderResponse(o)})
	}
}

type quotationRequest struct {
	QuotationAmount *decimal.Decimal `json:"quotationAmount"`
}

func (s *Server) setQuotationHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req quotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithAppError(w, r, apperrors.NewValidationError("invalid request payload"))
		return
	}
	if req.QuotationAmount == nil {
		s.respondWithAppError(w, r, apperrors.NewValidationError("quotationAmount is required"))
		return
	}

	o, err := s.deps.Orders.SetQuotation(r.Context(), mux.Vars(r)["id"], *req.QuotationAmount)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: newOrderResponse(o)})
}

func (s *Server) deleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.deps.Orders.Delete(r.Context(), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"id": id, "message": "Order deleted"},
	})
}
