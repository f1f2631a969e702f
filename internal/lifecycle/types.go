package lifecycle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/order"
	"github.com/printit/orderdesk/internal/orderstore"
)

// Store is the part of the order store the manager writes through.
type Store interface {
	ListAllOrders(ctx context.Context, filter orderstore.Filter) ([]order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status) (order.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (order.Order, error)
	SetQuotation(ctx context.Context, id string, amount decimal.Decimal) (order.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

// Event describes a transition the store has confirmed.
type Event struct {
	OrderID    string
	Intent     order.IntentKind
	FromState  string
	ToState    string
	Order      *order.Order // nil after a delete
	OccurredAt time.Time
}

// Recorder journals confirmed transitions. A failing recorder never undoes
// the transition it was handed.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// ChangeKind tells a listener what happened to the cached order.
type ChangeKind string

const (
	ChangeApplied    ChangeKind = "applied"
	ChangeCommitted  ChangeKind = "committed"
	ChangeRolledBack ChangeKind = "rolled_back"
	ChangeRemoved    ChangeKind = "removed"
	ChangeRefreshed  ChangeKind = "refreshed"
)

// Change is delivered to subscribers after every cache update. Order is nil
// when the order left the cache.
//
// Changes are delivered outside the manager's lock, so two changes to one
// order can arrive out of order. Seq grows with every cache update; a
// listener should ignore a Change whose Seq is not above the last one it
// applied for the same OrderID.
type Change struct {
	OrderID string
	Kind    ChangeKind
	Order   *order.Order
	Seq     uint64
}
