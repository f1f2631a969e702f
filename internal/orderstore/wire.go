package orderstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/order"
	apperrors "github.com/printit/orderdesk/pkg/errors"
)

// wireFile is a file reference as the store sends it. Older records carry a
// server-relative path, newer ones a full uri.
type wireFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URI  string `json:"uri"`
}

// wireOrder is an order record as the store sends it.
type wireOrder struct {
	MongoID         string           `json:"_id"`
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	PaymentStatus   string           `json:"paymentStatus"`
	QuotationAmount *decimal.Decimal `json:"quotationAmount"`
	Files           []wireFile       `json:"files"`
	Attachments     []wireFile       `json:"attachments"`
	CreatedAt       *time.Time       `json:"createdAt"`

	DocumentType    string `json:"documentType"`
	Description     string `json:"description"`
	PrintType       string `json:"printType"`
	Copies          int    `json:"copies"`
	DocumentFormat  string `json:"documentFormat"`
	PaperSize       string `json:"paperSize"`
	DescriptionType string `json:"descriptionType"`
	TextDescription string `json:"textDescription"`
}

// Page is one page of a list response.
type Page struct {
	Orders     []order.Order
	Page       int
	PageSize   int
	TotalPages int
	Total      int
}

type wirePage struct {
	Data       []wireOrder `json:"data"`
	Orders     []wireOrder `json:"orders"`
	Requests   []wireOrder `json:"requests"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
	Total      int         `json:"total"`
}

func (w wireOrder) toOrder(filesBaseURL string) (order.Order, error) {
	id := w.MongoID
	if id == "" {
		id = w.ID
	}

	status, err := order.ParseStatus(w.Status)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s: %w", id, err)
	}

	payment, err := order.ParsePaymentStatus(w.PaymentStatus)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %s: %w", id, err)
	}

	files := w.Files
	if len(files) == 0 {
		files = w.Attachments
	}

	var attachments []order.Attachment
	for _, f := range files {
		attachments = append(attachments, order.Attachment{
			Name: f.Name,
			URI:  resolveURI(filesBaseURL, f),
		})
	}

	o := order.Order{
		ID:              id,
		Status:          status,
		PaymentStatus:   payment,
		QuotationAmount: w.QuotationAmount,
		Attachments:     attachments,
		DocumentType:    w.DocumentType,
		Description:     w.Description,
		PrintType:       w.PrintType,
		Copies:          w.Copies,
		DocumentFormat:  w.DocumentFormat,
		PaperSize:       w.PaperSize,
		DescriptionType: w.DescriptionType,
		TextDescription: w.TextDescription,
	}
	if w.CreatedAt != nil {
		o.CreatedAt = w.CreatedAt.UTC()
	}

	if err := o.Validate(); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func resolveURI(base string, f wireFile) string {
	if f.URI != "" {
		return f.URI
	}
	if u, err := url.Parse(f.Path); err == nil && u.IsAbs() {
		return f.Path
	}
	if base == "" {
		return f.Path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(f.Path, "/")
}

// decodeRecord accepts either a bare record or a {"message", "request"|"order"} envelope.
func decodeRecord(body []byte, filesBaseURL string) (order.Order, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return order.Order{}, apperrors.NewSchemaError(fmt.Sprintf("malformed order record: %v", err))
	}

	raw := json.RawMessage(body)
	for _, key := range []string{"request", "order", "data"} {
		if inner, ok := envelope[key]; ok && !bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
			raw = inner
			break
		}
	}

	var w wireOrder
	if err := json.Unmarshal(raw, &w); err != nil {
		return order.Order{}, apperrors.NewSchemaError(fmt.Sprintf("malformed order record: %v", err))
	}
	return w.toOrder(filesBaseURL)
}

// decodePage accepts a bare array (one page holding everything) or a paginated object.
// A paginated object without a page number is taken to be the requested page.
func decodePage(body []byte, filesBaseURL string, requested int) (Page, error) {
	trimmed := bytes.TrimSpace(body)

	var records []wireOrder
	var page Page

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return Page{}, apperrors.NewSchemaError(fmt.Sprintf("malformed order list: %v", err))
		}
		page = Page{Page: 1, PageSize: len(records), TotalPages: 1, Total: len(records)}
	} else {
		var w wirePage
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return Page{}, apperrors.NewSchemaError(fmt.Sprintf("malformed order list: %v", err))
		}
		switch {
		case w.Data != nil:
			records = w.Data
		case w.Orders != nil:
			records = w.Orders
		case w.Requests != nil:
			records = w.Requests
		default:
			return Page{}, apperrors.NewSchemaError("order list has no data field")
		}
		page = Page{Page: w.Page, PageSize: w.PageSize, TotalPages: w.TotalPages, Total: w.Total}
		if page.Page < 1 {
			page.Page = max(requested, 1)
		}
		if page.TotalPages < page.Page {
			page.TotalPages = page.Page
		}
	}

	page.Orders = make([]order.Order, 0, len(records))
	for _, r := range records {
		o, err := r.toOrder(filesBaseURL)
		if err != nil {
			return Page{}, err
		}
		page.Orders = append(page.Orders, o)
	}
	return page, nil
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
