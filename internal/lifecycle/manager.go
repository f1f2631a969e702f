package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printit/orderdesk/internal/order"
	"github.com/printit/orderdesk/internal/orderstore"
	apperrors "github.com/printit/orderdesk/pkg/errors"
	"github.com/printit/orderdesk/pkg/logger"
)

const DefaultIntentTimeout = 10 * time.Second

// Config configures a Manager.
type Config struct {
	IntentTimeout time.Duration
}

// Manager owns the cached view of orders and applies intents to it
// optimistically: the new state is visible at once, the store is written,
// and the cache ends up holding either the server's record or the state
// from before the intent.
type Manager struct {
	store    Store
	recorder Recorder
	logger   logger.Logger
	timeout  time.Duration
	now      func() time.Time

	mu sync.Mutex
	// orders is never modified in place. Every change swaps in a new map,
	// so a map handed out by Snapshot stays consistent.
	orders     map[string]order.Order
	inFlight   map[string]struct{}
	lastWrite  map[string]uint64 // sequence of the newest write issued per id
	touched    map[string]uint64 // clock value of the last local change per id
	tombstones map[string]uint64 // clock value of the confirmed delete per id
	clock      uint64

	refreshIssued  uint64
	refreshApplied uint64

	listenersMu sync.RWMutex
	listeners   map[int]func(Change)
	nextID      int
}

// NewManager creates a manager with an empty cache. recorder may be nil.
func NewManager(store Store, recorder Recorder, cfg Config, log logger.Logger) *Manager {
	if cfg.IntentTimeout <= 0 {
		cfg.IntentTimeout = DefaultIntentTimeout
	}

	return &Manager{
		store:      store,
		recorder:   recorder,
		logger:     log.With("component", "lifecycle"),
		timeout:    cfg.IntentTimeout,
		now:        time.Now,
		orders:     map[string]order.Order{},
		inFlight:   map[string]struct{}{},
		lastWrite:  map[string]uint64{},
		touched:    map[string]uint64{},
		tombstones: map[string]uint64{},
		listeners:  map[int]func(Change){},
	}
}

// Subscribe registers fn for every subsequent Change. The returned func
// removes it.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// notify delivers changes without holding any lock, so a listener may call
// back into the manager or unsubscribe itself.
func (m *Manager) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	m.listenersMu.RLock()
	fns := make([]func(Change), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Get returns the cached order with the given id.
func (m *Manager) Get(id string) (order.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	m.mu.Unlock()

	if !ok {
		return order.Order{}, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id)).
			WithContext("orderID", id)
	}
	return o, nil
}

// List returns every cached order, newest first.
func (m *Manager) List() []order.Order {
	m.mu.Lock()
	snapshot := m.orders
	m.mu.Unlock()

	list := make([]order.Order, 0, len(snapshot))
	for _, o := range snapshot {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Snapshot returns a copy of the cache keyed by order id.
func (m *Manager) Snapshot() map[string]order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.orders)
}

// Accept moves a Pending order to Accepted.
func (m *Manager) Accept(ctx context.Context, id string) (order.Order, error) {
	return m.run(ctx, id, order.Accept())
}

// Reject moves a Pending order to Rejected.
func (m *Manager) Reject(ctx context.Context, id string) (order.Order, error) {
	return m.run(ctx, id, order.Reject())
}

// Cancel moves a non-terminal, unpaid order to Cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) (order.Order, error) {
	return m.run(ctx, id, order.Cancel())
}

// SetQuotation records the quoted price on an Accepted, unpaid order.
func (m *Manager) SetQuotation(ctx context.Context, id string, amount decimal.Decimal) (order.Order, error) {
	return m.run(ctx, id, order.SetQuotation(amount))
}

// MarkPaid marks a quoted Accepted order as paid, locking its quotation.
func (m *Manager) MarkPaid(ctx context.Context, id string) (order.Order, error) {
	return m.run(ctx, id, order.MarkPaid())
}

// Delete removes an order. Once confirmed the id never comes back from a
// refresh.
func (m *Manager) Delete(ctx context.Context, id string) error {
	_, err := m.run(ctx, id, order.Delete())
	return err
}

func notFound(id string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id)).WithContext("orderID", id)
}

// load fetches id from the store when the cache does not hold it, e.g. after
// a failed initial refresh. Deleted ids are never fetched again.
func (m *Manager) load(ctx context.Context, id string) error {
	m.mu.Lock()
	_, cached := m.orders[id]
	_, deleted := m.tombstones[id]
	m.mu.Unlock()

	if cached {
		return nil
	}
	if deleted {
		return notFound(id)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	o, err := m.store.GetOrder(fetchCtx, id)
	cancel()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, deleted := m.tombstones[id]; deleted {
		m.mu.Unlock()
		return notFound(id)
	}
	var changes []Change
	if _, cached := m.orders[id]; !cached {
		seq := m.tick(id)
		m.swap(id, &o)
		changes = append(changes, Change{OrderID: id, Kind: ChangeRefreshed, Order: &o, Seq: seq})
	}
	m.mu.Unlock()

	m.notify(changes...)
	m.logger.Debug("Loaded order missing from cache", "orderID", id)
	return nil
}

func (m *Manager) run(ctx context.Context, id string, in order.Intent) (order.Order, error) {
	log := m.logger.With("orderID", id, "intent", string(in.Kind))

	if err := m.load(ctx, id); err != nil {
		return order.Order{}, err
	}

	m.mu.Lock()
	before, ok := m.orders[id]
	if !ok {
		// removed by a refresh or a delete since load
		m.mu.Unlock()
		return order.Order{}, notFound(id)
	}
	if _, busy := m.inFlight[id]; busy {
		m.mu.Unlock()
		return order.Order{}, apperrors.NewConcurrentModificationError(
			fmt.Sprintf("order %s already has a write in flight", id),
		).WithContext("orderID", id).WithContext("intent", string(in.Kind))
	}

	next, err := order.Apply(before, in)
	if err != nil {
		m.mu.Unlock()
		return order.Order{}, err
	}

	m.inFlight[id] = struct{}{}
	seq := m.tick(id)
	m.lastWrite[id] = seq

	applied := Change{OrderID: id, Kind: ChangeApplied, Seq: seq}
	if in.Kind == order.IntentDelete {
		m.swap(id, nil)
	} else {
		m.swap(id, &next)
		applied.Order = &next
	}
	m.mu.Unlock()
	m.notify(applied)

	log.Debug("Applied intent optimistically", "from", before.State(), "seq", seq)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	confirmed, err := m.send(callCtx, id, in)
	if err != nil && callCtx.Err() != nil && !errors.Is(err, apperrors.ErrTransport) {
		err = apperrors.NewTimeoutError(fmt.Sprintf("%s on order %s timed out", in.Kind, id)).WithCause(err)
	}
	cancel()

	m.mu.Lock()
	delete(m.inFlight, id)
	current := m.lastWrite[id] == seq

	if err != nil {
		var changes []Change
		if current {
			rb := m.tick(id)
			m.swap(id, &before)
			changes = append(changes, Change{OrderID: id, Kind: ChangeRolledBack, Order: &before, Seq: rb})
		}
		m.mu.Unlock()
		m.notify(changes...)

		log.Warn("Store rejected intent, rolled back", "state", before.State(), "error", err)
		return order.Order{}, err
	}

	var committed Change
	if in.Kind == order.IntentDelete {
		at := m.tick(id)
		m.tombstones[id] = at
		m.swap(id, nil)
		committed = Change{OrderID: id, Kind: ChangeRemoved, Seq: at}
	} else if current {
		at := m.tick(id)
		m.swap(id, &confirmed)
		committed = Change{OrderID: id, Kind: ChangeCommitted, Order: &confirmed, Seq: at}
	} else {
		log.Info("Discarding superseded store response", "seq", seq)
	}
	m.mu.Unlock()

	if committed.Kind != "" {
		m.notify(committed)
	}

	log.Info("Intent confirmed by store", "from", before.State())
	m.record(ctx, in, before, confirmed)

	if in.Kind == order.IntentDelete {
		return order.Order{}, nil
	}
	return confirmed, nil
}

func (m *Manager) send(ctx context.Context, id string, in order.Intent) (order.Order, error) {
	switch in.Kind {
	case order.IntentAccept:
		return m.store.UpdateStatus(ctx, id, order.StatusAccepted)
	case order.IntentReject:
		return m.store.UpdateStatus(ctx, id, order.StatusRejected)
	case order.IntentCancel:
		return m.store.UpdateStatus(ctx, id, order.StatusCancelled)
	case order.IntentSetQuotation:
		return m.store.SetQuotation(ctx, id, in.Amount)
	case order.IntentMarkPaid:
		return m.store.UpdatePaymentStatus(ctx, id, order.PaymentPaid)
	case order.IntentDelete:
		return order.Order{}, m.store.DeleteOrder(ctx, id)
	default:
		return order.Order{}, apperrors.NewValidationError(fmt.Sprintf("unknown intent %q", in.Kind))
	}
}

func (m *Manager) record(ctx context.Context, in order.Intent, before, after order.Order) {
	if m.recorder == nil {
		return
	}

	event := Event{
		OrderID:    before.ID,
		Intent:     in.Kind,
		FromState:  before.State(),
		OccurredAt: m.now().UTC(),
	}
	if in.Kind == order.IntentDelete {
		event.ToState = "Deleted"
	} else {
		event.ToState = after.State()
		event.Order = &after
	}

	// The caller's deadline must not cut the journal write short.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	if err := m.recorder.Record(recCtx, event); err != nil {
		m.logger.Error("Failed to journal confirmed transition",
			"orderID", event.OrderID,
			"intent", string(event.Intent),
			"error", err)
	}
}

// Refresh reloads every order from the store and merges it into the cache.
// Orders with a write in flight, or changed locally after the read was
// issued, keep their local record. Deleted ids never come back; a tombstone
// is dropped once a list read after the delete no longer carries the id.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	readAt := m.clock
	m.refreshIssued++
	refreshSeq := m.refreshIssued
	m.mu.Unlock()

	fetched, err := m.store.ListAllOrders(ctx, orderstore.Filter{})
	if err != nil {
		m.logger.Warn("Refresh failed, keeping cached orders", "error", err)
		return err
	}

	m.mu.Lock()
	if refreshSeq < m.refreshApplied {
		m.mu.Unlock()
		m.logger.Debug("Discarding refresh overtaken by a newer one")
		return nil
	}
	m.refreshApplied = refreshSeq

	m.clock++
	stamp := m.clock

	next := make(map[string]order.Order, len(fetched))
	listed := make(map[string]struct{}, len(fetched))
	var changes []Change

	keepLocal := func(id string) bool {
		if _, busy := m.inFlight[id]; busy {
			return true
		}
		return m.touched[id] > readAt
	}

	for _, o := range fetched {
		listed[o.ID] = struct{}{}
		if _, deleted := m.tombstones[o.ID]; deleted {
			continue
		}
		local, cached := m.orders[o.ID]
		if keepLocal(o.ID) {
			if cached {
				next[o.ID] = local
			}
			continue
		}
		next[o.ID] = o
		if !cached || !local.Equal(o) {
			changes = append(changes, Change{OrderID: o.ID, Kind: ChangeRefreshed, Order: &o, Seq: stamp})
		}
	}

	for id, local := range m.orders {
		if _, ok := next[id]; ok {
			continue
		}
		if keepLocal(id) {
			next[id] = local
			continue
		}
		changes = append(changes, Change{OrderID: id, Kind: ChangeRemoved, Seq: stamp})
	}

	m.orders = next
	m.prune(readAt, listed)
	m.mu.Unlock()

	m.notify(changes...)
	m.logger.Info("Refreshed orders", "fetched", len(fetched), "cached", len(next), "changed", len(changes))
	return nil
}

// prune drops bookkeeping that no later refresh can consult. Refreshes
// issued before the applied one are discarded, so stamps at or below its
// readAt never decide a merge again. Callers hold mu.
func (m *Manager) prune(readAt uint64, listed map[string]struct{}) {
	for id, at := range m.touched {
		if _, busy := m.inFlight[id]; !busy && at <= readAt {
			delete(m.touched, id)
		}
	}
	for id, at := range m.lastWrite {
		if _, busy := m.inFlight[id]; !busy && at <= readAt {
			delete(m.lastWrite, id)
		}
	}
	for id, at := range m.tombstones {
		if _, still := listed[id]; !still && at <= readAt {
			delete(m.tombstones, id)
		}
	}
}

// tick advances the clock and stamps id as locally changed. Callers hold mu.
func (m *Manager) tick(id string) uint64 {
	m.clock++
	m.touched[id] = m.clock
	return m.clock
}

// swap installs a new cache map with id set to o, or removed when o is nil.
// Callers hold mu.
func (m *Manager) swap(id string, o *order.Order) {
	next := maps.Clone(m.orders)
	if o == nil {
		delete(next, id)
	} else {
		next[id] = *o
	}
	m.orders = next
}
