package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/printit/orderdesk/pkg/errors"
)

// Attachment references a file uploaded with the order. Only the URI is kept;
// file contents are fetched by whoever renders the order.
type Attachment struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Order is a print, design or brand job tracked through acceptance, quoting
// and payment. Values are treated as immutable: transitions return a new Order.
type Order struct {
	ID              string           `json:"id"`
	Status          Status           `json:"status"`
	PaymentStatus   PaymentStatus    `json:"paymentStatus"`
	QuotationAmount *decimal.Decimal `json:"quotationAmount,omitempty"`
	Attachments     []Attachment     `json:"attachments,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`

	DocumentType    string `json:"documentType,omitempty"`
	Description     string `json:"description,omitempty"`
	PrintType       string `json:"printType,omitempty"`
	Copies          int    `json:"copies,omitempty"`
	DocumentFormat  string `json:"documentFormat,omitempty"`
	PaperSize       string `json:"paperSize,omitempty"`
	DescriptionType string `json:"descriptionType,omitempty"`
	TextDescription string `json:"textDescription,omitempty"`
}

// State names the combined status and payment sub-state, e.g. "Accepted/Paid".
func (o Order) State() string {
	if o.Status == StatusAccepted {
		return fmt.Sprintf("%s/%s", o.Status, o.PaymentStatus)
	}
	return string(o.Status)
}

// HasQuotation reports whether a quotation has been issued.
func (o Order) HasQuotation() bool {
	return o.QuotationAmount != nil
}

// Validate checks o against the order schema and the payment invariant.
func (o Order) Validate() error {
	if o.ID == "" {
		return apperrors.NewSchemaError("order id is empty")
	}
	if !o.Status.Valid() {
		return apperrors.NewSchemaError(fmt.Sprintf("order %s: unknown status %q", o.ID, o.Status)).
			WithContext("orderID", o.ID)
	}
	if !o.PaymentStatus.Valid() {
		return apperrors.NewSchemaError(fmt.Sprintf("order %s: unknown payment status %q", o.ID, o.PaymentStatus)).
			WithContext("orderID", o.ID)
	}
	if o.QuotationAmount != nil && o.QuotationAmount.IsNegative() {
		return apperrors.NewSchemaError(fmt.Sprintf("order %s: negative quotation %s", o.ID, o.QuotationAmount)).
			WithContext("orderID", o.ID)
	}
	if o.PaymentStatus == PaymentPaid && o.Status != StatusAccepted {
		return apperrors.NewSchemaError(fmt.Sprintf("order %s: paid order must be Accepted, got %s", o.ID, o.Status)).
			WithContext("orderID", o.ID)
	}
	return nil
}

// Equal compares two orders field by field, treating quotation amounts by value.
func (o Order) Equal(other Order) bool {
	if o.ID != other.ID || o.Status != other.Status || o.PaymentStatus != other.PaymentStatus {
		return false
	}
	if o.HasQuotation() != other.HasQuotation() {
		return false
	}
	if o.HasQuotation() && !o.QuotationAmount.Equal(*other.QuotationAmount) {
		return false
	}
	if !o.CreatedAt.Equal(other.CreatedAt) || len(o.Attachments) != len(other.Attachments) {
		return false
	}
	for i := range o.Attachments {
		if o.Attachments[i] != other.Attachments[i] {
			return false
		}
	}
	return o.DocumentType == other.DocumentType &&
		o.Description == other.Description &&
		o.PrintType == other.PrintType &&
		o.Copies == other.Copies &&
		o.DocumentFormat == other.DocumentFormat &&
		o.PaperSize == other.PaperSize &&
		o.DescriptionType == other.DescriptionType &&
		o.TextDescription == other.TextDescription
}
