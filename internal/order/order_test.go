package order_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printit/orderdesk/internal/order"
	apperrors "github.com/printit/orderdesk/pkg/errors"
)

func TestParseStatus(t *testing.T) {
	tests := map[string]order.Status{
		"Pending":   order.StatusPending,
		"accepted":  order.StatusAccepted,
		"REJECTED":  order.StatusRejected,
		"Cancelled": order.StatusCancelled,
		"canceled":  order.StatusCancelled,
	}
	for in, want := range tests {
		got, err := order.ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := order.ParseStatus("Shipped")
	require.ErrorIs(t, err, apperrors.ErrSchema)
}

func TestParsePaymentStatus(t *testing.T) {
	got, err := order.ParsePaymentStatus("")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentUnpaid, got)

	got, err = order.ParsePaymentStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, got)

	_, err = order.ParsePaymentStatus("refunded")
	require.ErrorIs(t, err, apperrors.ErrSchema)
}

func TestValidate(t *testing.T) {
	negative := decimal.NewFromInt(-3)

	tests := []struct {
		name string
		o    order.Order
		ok   bool
	}{
		{"pending", pending(), true},
		{"missing id", order.Order{Status: order.StatusPending, PaymentStatus: order.PaymentUnpaid}, false},
		{"unknown status", order.Order{ID: "o1", Status: "Shipped", PaymentStatus: order.PaymentUnpaid}, false},
		{"unknown payment", order.Order{ID: "o1", Status: order.StatusPending, PaymentStatus: "Refunded"}, false},
		{"paid pending", order.Order{ID: "o1", Status: order.StatusPending, PaymentStatus: order.PaymentPaid}, false},
		{"negative quotation", order.Order{ID: "o1", Status: order.StatusAccepted, PaymentStatus: order.PaymentUnpaid, QuotationAmount: &negative}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.o.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrSchema)
		})
	}
}

func TestState(t *testing.T) {
	o := pending()
	assert.Equal(t, "Pending", o.State())

	o.Status = order.StatusAccepted
	assert.Equal(t, "Accepted/Unpaid", o.State())
}
