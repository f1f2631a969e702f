package lifecycle_test

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/order"
	"github.com/printit/orderdesk/internal/orderstore"
	apperrors "github.com/printit/orderdesk/pkg/errors"
)

// fakeStore is an in-memory order store. Mutations can be made to fail or
// to block until released.
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]order.Order
	order  []string

	failNext error
	block    chan struct{}
	entered  chan string
	writes   int
	reads    int

	// beforeListReturn runs after the list snapshot is taken and before it is returned.
	beforeListReturn func()
}

func newFakeStore(orders ...order.Order) *fakeStore {
	s := &fakeStore{orders: map[string]order.Order{}}
	for _, o := range orders {
		s.put(o)
	}
	return s
}

func (s *fakeStore) put(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		s.order = append(s.order, o.ID)
	}
	s.orders[o.ID] = o
}

func (s *fakeStore) get(id string) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *fakeStore) failWith(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
}

func (s *fakeStore) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperrors.NewNotFoundError("order not found")
	}
	return o, nil
}

func (s *fakeStore) ListAllOrders(ctx context.Context, _ orderstore.Filter) ([]order.Order, error) {
	s.mu.Lock()
	list := make([]order.Order, 0, len(s.order))
	for _, id := range s.order {
		if o, ok := s.orders[id]; ok {
			list = append(list, o)
		}
	}
	hook := s.beforeListReturn
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return list, nil
}

// mutate runs fn against the stored order unless a failure is queued.
func (s *fakeStore) mutate(ctx context.Context, id string, fn func(o *order.Order)) (order.Order, error) {
	s.mu.Lock()
	s.writes++
	block, entered := s.block, s.entered
	s.mu.Unlock()

	if entered != nil {
		entered <- id
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return order.Order{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return order.Order{}, err
	}

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperrors.NewNotFoundError("order not found")
	}
	if fn == nil {
		delete(s.orders, id)
		return order.Order{}, nil
	}
	fn(&o)
	s.orders[id] = o
	return o, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id string, status order.Status) (order.Order, error) {
	return s.mutate(ctx, id, func(o *order.Order) { o.Status = status })
}

func (s *fakeStore) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) (order.Order, error) {
	return s.mutate(ctx, id, func(o *order.Order) { o.PaymentStatus = status })
}

func (s *fakeStore) SetQuotation(ctx context.Context, id string, amount decimal.Decimal) (order.Order, error) {
	return s.mutate(ctx, id, func(o *order.Order) { o.QuotationAmount = &amount })
}

func (s *fakeStore) DeleteOrder(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, nil)
	return err
}
