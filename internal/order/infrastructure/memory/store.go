// Package memory is a process-local implementation of the order, catalog,
// ledger and outbox storage ports. Transactions take one store-wide lock and
// restore a snapshot on failure, so they are serializable and all-or-nothing.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	catalog "github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	inventory "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

type productRow struct {
	catalog.Product
	deleted bool
}

type state struct {
	products    map[uuid.UUID]productRow
	orders      map[uuid.UUID]domain.Order
	outbox      []outbox.Event
	nextEventID int64
}

func (s state) clone() state {
	return state{
		products:    maps.Clone(s.products),
		orders:      maps.Clone(s.orders),
		outbox:      slices.Clone(s.outbox),
		nextEventID: s.nextEventID,
	}
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time
	st  state
}

type Option func(*Store)

// WithClock sets the clock used for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(opts ...Option) *Store {
	s := &Store{
		now: time.Now,
		st: state{
			products: map[uuid.UUID]productRow{},
			orders:   map[uuid.UUID]domain.Order{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ application.Store = (*Store)(nil)

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r application.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	err := fn(ctx, application.Repositories{
		Ledger:   txLedger{s},
		Products: txProducts{s},
		Orders:   txOrders{s},
		Outbox:   txOutbox{s},
	})
	if err != nil {
		s.st = snapshot
	}
	return err
}

func (s *Store) Orders() application.OrderRepository { return lockedOrders{s} }

// Ledger returns a stock ledger that runs each adjustment as its own
// transaction, for catalog restocking.
func (s *Store) Ledger() *Ledger { return &Ledger{s: s} }

// --- unlocked operations, callers hold s.mu ---

func (s *Store) adjust(productID uuid.UUID, delta int) (int, error) {
	row, ok := s.st.products[productID]
	if !ok {
		return 0, catalog.ErrProductNotFound
	}
	next := row.StockAmount + delta
	if next < 0 {
		return 0, &inventory.InsufficientStockError{ProductID: productID, Delta: delta}
	}
	row.StockAmount = next
	s.st.products[productID] = row
	return next, nil
}

func (s *Store) findProduct(id uuid.UUID) (catalog.Product, error) {
	row, ok := s.st.products[id]
	if !ok || row.deleted {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return row.Product, nil
}

func (s *Store) insertOrder(o domain.Order) (domain.Order, error) {
	if _, exists := s.st.orders[o.ID]; exists {
		return domain.Order{}, errors.New("order with this ID already exists")
	}
	now := s.now().UTC()
	o.Items = slices.Clone(o.Items)
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 0
	s.st.orders[o.ID] = o
	return o, nil
}

func (s *Store) getOrder(id uuid.UUID) (domain.Order, error) {
	o, ok := s.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s *Store) updateOrder(o domain.Order) (domain.Order, error) {
	stored, ok := s.st.orders[o.ID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if stored.Version != o.Version {
		return domain.Order{}, domain.ErrConcurrentModification
	}
	stored.Status = o.Status
	stored.PaidAt = o.PaidAt
	stored.UpdatedAt = s.now().UTC()
	stored.Version++
	s.st.orders[o.ID] = stored

	stored.Items = slices.Clone(stored.Items)
	return stored, nil
}

func (s *Store) listOrders(f domain.ListFilter) []domain.Order {
	out := make([]domain.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(b.ID[:], a.ID[:])
	})
	if f.Offset >= len(out) {
		return []domain.Order{}
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *Store) stalePending(before time.Time, limit int) []uuid.UUID {
	var stale []domain.Order
	for _, o := range s.st.orders {
		if o.Status == domain.StatusPending && o.CreatedAt.Before(before) {
			stale = append(stale, o)
		}
	}
	slices.SortFunc(stale, func(a, b domain.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]uuid.UUID, 0, len(stale))
	for _, o := range stale {
		ids = append(ids, o.ID)
	}
	return ids
}

func (s *Store) enqueue(ev outbox.Event) {
	s.st.nextEventID++
	ev.ID = s.st.nextEventID
	ev.Status = outbox.StatusPending
	ev.CreatedAt = s.now().UTC()
	s.st.outbox = append(s.st.outbox, ev)
}

// --- transaction-bound repositories ---

type txLedger struct{ s *Store }

func (l txLedger) Adjust(_ context.Context, productID uuid.UUID, delta int) (int, error) {
	return l.s.adjust(productID, delta)
}

type txProducts struct{ s *Store }

func (p txProducts) FindProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	return p.s.findProduct(id)
}

type txOrders struct{ s *Store }

func (o txOrders) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	return o.s.insertOrder(order)
}

func (o txOrders) Get(_ context.Context, id uuid.UUID) (domain.Order, error) {
	return o.s.getOrder(id)
}

func (o txOrders) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	return o.s.updateOrder(order)
}

func (o txOrders) List(_ context.Context, f domain.ListFilter) ([]domain.Order, error) {
	return o.s.listOrders(f), nil
}

func (o txOrders) StalePending(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	return o.s.stalePending(before, limit), nil
}

type txOutbox struct{ s *Store }

func (o txOutbox) Enqueue(_ context.Context, ev outbox.Event) error {
	o.s.enqueue(ev)
	return nil
}

// --- self-locking wrappers used outside WithinTx ---

type lockedOrders struct{ s *Store }

func (o lockedOrders) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.s.insertOrder(order)
}

func (o lockedOrders) Get(_ context.Context, id uuid.UUID) (domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.s.getOrder(id)
}

func (o lockedOrders) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.s.updateOrder(order)
}

func (o lockedOrders) List(_ context.Context, f domain.ListFilter) ([]domain.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.s.listOrders(f), nil
}

func (o lockedOrders) StalePending(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return o.s.stalePending(before, limit), nil
}

type Ledger struct{ s *Store }

func (l *Ledger) Adjust(_ context.Context, productID uuid.UUID, delta int) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.adjust(productID, delta)
}
