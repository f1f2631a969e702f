package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/printit/orderdesk/pkg/errors"
)

// IntentKind names a user action on an order.
type IntentKind string

const (
	IntentAccept       IntentKind = "accept"
	IntentReject       IntentKind = "reject"
	IntentCancel       IntentKind = "cancel"
	IntentSetQuotation IntentKind = "setQuotation"
	IntentMarkPaid     IntentKind = "markPaid"
	IntentDelete       IntentKind = "delete"
)

// Intent is a requested transition. Amount is used by setQuotation only.
type Intent struct {
	Kind   IntentKind
	Amount decimal.Decimal
}

func Accept() Intent   { return Intent{Kind: IntentAccept} }
func Reject() Intent   { return Intent{Kind: IntentReject} }
func Cancel() Intent   { return Intent{Kind: IntentCancel} }
func MarkPaid() Intent { return Intent{Kind: IntentMarkPaid} }
func Delete() Intent   { return Intent{Kind: IntentDelete} }

func SetQuotation(amount decimal.Decimal) Intent {
	return Intent{Kind: IntentSetQuotation, Amount: amount}
}

// Apply returns the order that results from applying in to o. It never
// mutates o and performs no I/O. Delete leaves the order unchanged: removal
// is the caller's concern.
//
// Guard failures are InvalidTransition errors; a non-positive quotation is a
// ValidationError regardless of state.
func Apply(o Order, in Intent) (Order, error) {
	next := o

	switch in.Kind {
	case IntentAccept:
		if o.Status != StatusPending {
			return o, invalid(o, in, "status must be Pending")
		}
		next.Status = StatusAccepted

	case IntentReject:
		if o.Status != StatusPending {
			return o, invalid(o, in, "status must be Pending")
		}
		next.Status = StatusRejected

	case IntentCancel:
		if o.Status.Terminal() {
			return o, invalid(o, in, "order is already terminal")
		}
		if o.PaymentStatus == PaymentPaid {
			return o, invalid(o, in, "paid orders cannot be cancelled")
		}
		next.Status = StatusCancelled

	case IntentSetQuotation:
		if !in.Amount.IsPositive() {
			return o, apperrors.NewValidationError(
				fmt.Sprintf("quotation amount must be greater than zero, got %s", in.Amount)).
				WithContext("orderID", o.ID)
		}
		if o.Status != StatusAccepted {
			return o, invalid(o, in, "status must be Accepted")
		}
		if o.PaymentStatus != PaymentUnpaid {
			return o, invalid(o, in, "payment status must be Unpaid")
		}
		amount := in.Amount
		next.QuotationAmount = &amount

	case IntentMarkPaid:
		if o.Status != StatusAccepted {
			return o, invalid(o, in, "status must be Accepted")
		}
		if o.PaymentStatus != PaymentUnpaid {
			return o, invalid(o, in, "payment status must be Unpaid")
		}
		if !o.HasQuotation() {
			return o, invalid(o, in, "quotation must be set")
		}
		next.PaymentStatus = PaymentPaid

	case IntentDelete:

	default:
		return o, apperrors.NewValidationError(fmt.Sprintf("unknown intent %q", in.Kind))
	}

	return next, nil
}

func invalid(o Order, in Intent, guard string) error {
	return apperrors.NewInvalidTransitionError(o.State(), string(in.Kind), guard).
		WithContext("orderID", o.ID)
}
