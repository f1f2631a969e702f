package orderstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/order"
	"github.com/printit/orderdesk/pkg/circuitbreaker"
	apperrors "github.com/printit/orderdesk/pkg/errors"
	"github.com/printit/orderdesk/pkg/logger"
	"github.com/printit/orderdesk/pkg/retry"
)

// Filter narrows a list call. Zero values mean "no filter".
type Filter struct {
	Status        order.Status
	PaymentStatus order.PaymentStatus
	Page          int
	PageSize      int
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	FilesBaseURL string
	Timeout      time.Duration
	PageSize     int
	MaxAttempts  int
	Backoff      retry.BackoffStrategy
	Breaker      circuitbreaker.CircuitBreakerConfig
}

// Client talks to the remote order store over HTTP.
type Client struct {
	http         *resty.Client
	filesBaseURL string
	pageSize     int
	breaker      *circuitbreaker.CircuitBreaker
	retryConfig  *retry.RetryConfig
	logger       logger.Logger
}

// NewClient creates a new order store client
func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.NewDefaultExponentialBackoff()
	}

	log = log.With("component", "orderstore")
	breakerCfg := cfg.Breaker
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		if cfg.Breaker.OnStateChange != nil {
			cfg.Breaker.OnStateChange(from, to)
		}
		log.Warn("Order store circuit breaker changed state", "from", from.String(), "to", to.String())
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:         httpClient,
		filesBaseURL: cfg.FilesBaseURL,
		pageSize:     cfg.PageSize,
		breaker:      circuitbreaker.NewCircuitBreaker(breakerCfg),
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     cfg.MaxAttempts,
			BackoffStrategy: cfg.Backoff,
			Logger:          log,
			RetryableErrors: []error{apperrors.ErrTransport},
		},
		logger: log,
	}
}

// Breaker exposes the client's circuit breaker for admin endpoints.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// ListOrders fetches a single page of orders.
func (c *Client) ListOrders(ctx context.Context, filter Filter) (Page, error) {
	params := map[string]string{}
	if filter.Status != "" {
		params["status"] = string(filter.Status)
	}
	if filter.PaymentStatus != "" {
		params["paymentStatus"] = string(filter.PaymentStatus)
	}
	if filter.Page > 0 {
		params["page"] = strconv.Itoa(filter.Page)
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}
	if pageSize > 0 {
		params["pageSize"] = strconv.Itoa(pageSize)
	}

	body, err := c.do(ctx, "listOrders", "", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(params).Get("/orders")
	})
	if err != nil {
		return Page{}, err
	}

	return decodePage(body, c.filesBaseURL, filter.Page)
}

// ListAllOrders walks every page and returns each order once, in the order
// the store first reported it.
func (c *Client) ListAllOrders(ctx context.Context, filter Filter) ([]order.Order, error) {
	seen := make(map[string]struct{})
	var all []order.Order

	filter.Page = 1
	for {
		page, err := c.ListOrders(ctx, filter)
		if err != nil {
			return nil, err
		}
		if page.Page < filter.Page {
			return nil, apperrors.NewSchemaError(fmt.Sprintf(
				"order list returned page %d when page %d was requested", page.Page, filter.Page))
		}

		for _, o := range page.Orders {
			if _, dup := seen[o.ID]; dup {
				continue
			}
			seen[o.ID] = struct{}{}
			all = append(all, o)
		}

		if len(page.Orders) == 0 || page.Page >= page.TotalPages {
			break
		}
		filter.Page = page.Page + 1
	}

	c.logger.Debug("Listed orders", "count", len(all))
	return all, nil
}

// GetOrder fetches a single order.
func (c *Client) GetOrder(ctx context.Context, id string) (order.Order, error) {
	body, err := c.do(ctx, "getOrder", id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).Get("/orders/{id}")
	})
	if err != nil {
		return order.Order{}, err
	}
	return c.decodeFor(id, body)
}

// UpdateStatus sets the lifecycle status of an order and returns the
// authoritative record.
func (c *Client) UpdateStatus(ctx context.Context, id string, status order.Status) (order.Order, error) {
	body, err := c.do(ctx, "updateStatus", id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).
			SetBody(map[string]string{"status": string(status)}).
			Patch("/orders/{id}")
	})
	if err != nil {
		return order.Order{}, err
	}
	return c.decodeFor(id, body)
}

// UpdatePaymentStatus sets the payment status of an order.
func (c *Client) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (order.Order, error) {
	body, err := c.do(ctx, "updatePaymentStatus", id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).
			SetBody(map[string]string{"paymentStatus": string(status)}).
			Patch("/orders/{id}")
	})
	if err != nil {
		return order.Order{}, err
	}
	return c.decodeFor(id, body)
}

// SetQuotation records a quotation amount. Non-positive amounts are refused
// without contacting the store.
func (c *Client) SetQuotation(ctx context.Context, id string, amount decimal.Decimal) (order.Order, error) {
	if !amount.IsPositive() {
		return order.Order{}, apperrors.NewValidationError(
			fmt.Sprintf("quotation amount must be positive, got %s", amount.String()),
		).WithContext("orderID", id)
	}

	body, err := c.do(ctx, "setQuotation", id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).
			SetBody(map[string]interface{}{"quotationAmount": json.Number(amount.String())}).
			Patch("/orders/{id}/quotation")
	})
	if err != nil {
		return order.Order{}, err
	}
	return c.decodeFor(id, body)
}

// DeleteOrder removes an order from the store.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	_, err := c.do(ctx, "deleteOrder", id, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).Delete("/orders/{id}")
	})
	return err
}

func (c *Client) decodeFor(id string, body []byte) (order.Order, error) {
	o, err := decodeRecord(body, c.filesBaseURL)
	if err != nil {
		return order.Order{}, err
	}
	if o.ID != id {
		return order.Order{}, apperrors.NewSchemaError(
			fmt.Sprintf("store returned order %q for request on %q", o.ID, id),
		).WithContext("orderID", id)
	}
	return o, nil
}

// do sends one logical request through the breaker and retry loop and
// returns the body of the first successful response.
func (c *Client) do(ctx context.Context, op, id string, send func(*resty.Request) (*resty.Response, error)) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, apperrors.NewTransportError("order store circuit breaker is open").
			WithContext("op", op)
	}

	var body []byte
	err := retry.Retry(ctx, func() error {
		resp, err := send(c.http.R().SetContext(ctx))
		if err != nil {
			return transportError(op, err)
		}
		if err := statusError(op, resp); err != nil {
			return err
		}
		body = resp.Body()
		return nil
	}, c.retryConfig)

	if err == nil {
		c.breaker.Success()
		return body, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		// The caller gave up; the store's health is unknown.
		c.breaker.Ignore()
	case errors.Is(err, apperrors.ErrTransport) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.breaker.Failure()
	default:
		// The store answered; it is healthy even if it refused us.
		c.breaker.Success()
	}

	err = normalize(ctx, op, err)
	c.logger.Warn("Order store call failed",
		"op", op,
		"orderID", id,
		"error", err)
	return nil, err
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTimeoutError(fmt.Sprintf("%s: order store request timed out", op)).WithCause(err)
	}
	return apperrors.NewTransportError(fmt.Sprintf("%s: order store unreachable: %v", op, err)).WithCause(err)
}

func statusError(op string, resp *resty.Response) error {
	status := resp.StatusCode()
	if status < 300 {
		return nil
	}

	msg := errorMessage(resp.Body())
	if msg == "" {
		msg = http.StatusText(status)
	}

	var appErr *apperrors.AppError
	switch {
	case status == http.StatusNotFound:
		appErr = apperrors.NewNotFoundError(fmt.Sprintf("%s: %s", op, msg))
	case status == http.StatusConflict:
		appErr = apperrors.NewConcurrentModificationError(fmt.Sprintf("%s: %s", op, msg))
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		appErr = apperrors.NewTimeoutError(fmt.Sprintf("%s: order store timed out (%d)", op, status))
	case status == http.StatusTooManyRequests || status >= 500:
		appErr = apperrors.NewTransportError(fmt.Sprintf("%s: order store returned %d: %s", op, status, msg))
	case status >= 400:
		appErr = apperrors.NewValidationError(fmt.Sprintf("%s: %s", op, msg))
	default:
		appErr = apperrors.NewSchemaError(fmt.Sprintf("%s: unexpected status %d", op, status))
	}
	return appErr.WithContext("op", op).WithContext("status", status)
}

// normalize makes sure cancellation and deadline failures surface as
// transport errors rather than bare context errors.
func normalize(ctx context.Context, op string, err error) error {
	if errors.Is(err, apperrors.ErrTransport) ||
		errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrConcurrentModification) ||
		errors.Is(err, apperrors.ErrSchema) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(fmt.Sprintf("%s: deadline exceeded", op)).WithCause(err)
	}
	return apperrors.NewTransportError(fmt.Sprintf("%s: %v", op, err)).WithCause(err)
}
