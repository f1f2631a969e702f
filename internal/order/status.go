package order

import (
	"fmt"
	"strings"

	apperrors "github.com/printit/orderdesk/pkg/errors"
)

// Status is the workflow stage of an order.
//
//	Pending ──accept──> Accepted ──cancel──> Cancelled
//	   │                   │
//	   ├──reject──> Rejected
//	   └──cancel──> Cancelled
//
// Rejected and Cancelled are terminal. Pending is never re-entered.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusAccepted  Status = "Accepted"
	StatusRejected  Status = "Rejected"
	StatusCancelled Status = "Cancelled"
)

// PaymentStatus is the payment sub-state, meaningful only while Accepted.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
)

// ParseStatus accepts any letter case and the US spelling of Cancelled.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "accepted":
		return StatusAccepted, nil
	case "rejected":
		return StatusRejected, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", apperrors.NewSchemaError(fmt.Sprintf("unknown order status %q", s))
	}
}

// ParsePaymentStatus accepts any letter case; an empty value means Unpaid.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unpaid":
		return PaymentUnpaid, nil
	case "paid":
		return PaymentPaid, nil
	default:
		return "", apperrors.NewSchemaError(fmt.Sprintf("unknown payment status %q", s))
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// Valid reports whether p is one of the known payment statuses.
func (p PaymentStatus) Valid() bool {
	return p == PaymentUnpaid || p == PaymentPaid
}
