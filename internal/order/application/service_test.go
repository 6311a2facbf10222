package application_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	inventory "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/infrastructure/memory"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	store *memory.Store
	svc   *application.Service
	now   time.Time
}

func setup(t *testing.T, opts ...application.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	opts = append([]application.Option{application.WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = application.NewService(discardLogger(), f.store, opts...)
	return f
}

func (f *fixture) product(t *testing.T, stock int) uuid.UUID {
	t.Helper()
	p, err := catalog.NewProduct("product", decimal.NewFromInt(10), stock)
	require.NoError(t, err)
	_, err = f.store.Products().Create(context.Background(), p)
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.store.Products().FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockAmount
}

func (f *fixture) eventTypes() []string {
	var types []string
	for _, ev := range f.store.Outbox().Events() {
		types = append(types, ev.Type)
	}
	return types
}

func TestCreateAndCancelRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b := f.product(t, 5), f.product(t, 5)

	order, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Len(t, order.Items, 2)
	assert.False(t, order.CreatedAt.IsZero())
	assert.Equal(t, 3, f.stock(t, a))
	assert.Equal(t, 4, f.stock(t, b))

	canceled, err := f.svc.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)
	assert.Equal(t, order.Version+1, canceled.Version)
	assert.Equal(t, 5, f.stock(t, a))
	assert.Equal(t, 5, f.stock(t, b))

	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderCanceled}, f.eventTypes())

	var ev domain.OrderCanceled
	require.NoError(t, json.Unmarshal(f.store.Outbox().Events()[1].Payload, &ev))
	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, domain.ReasonCustomer, ev.Reason)
}

func TestCreateOrderRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b := f.product(t, 5), f.product(t, 5)

	t.Run("duplicate product", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 1}, {ProductID: a, Quantity: 1}})
		assert.ErrorIs(t, err, domain.ErrDuplicateLineItem)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, 5, f.stock(t, a))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyOrder)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 0}})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("quantity above stock", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 10}})
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
		assert.Equal(t, 5, f.stock(t, a))
	})

	t.Run("later item short rolls back earlier reservation", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 6}})
		require.ErrorIs(t, err, inventory.ErrInsufficientStock)

		var stockErr *inventory.InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, b, stockErr.ProductID)
		assert.Equal(t, 5, f.stock(t, a))
		assert.Equal(t, 5, f.stock(t, b))
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 1}, {ProductID: uuid.New(), Quantity: 1}})
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
		assert.Equal(t, 5, f.stock(t, a))
	})

	orders, err := f.svc.ListOrders(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.eventTypes())
}

func TestCancelTwiceRestoresOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, 5)

	order, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 3}})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, 5, f.stock(t, a))
}

func TestPayOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, 5)

	order, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 2}})
	require.NoError(t, err)

	paid, err := f.svc.PayOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, f.now, *paid.PaidAt)
	assert.Equal(t, 3, f.stock(t, a))

	_, err = f.svc.PayOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = f.svc.CancelOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, 3, f.stock(t, a))

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderPaid}, f.eventTypes())
}

func TestUnknownOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CancelOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = f.svc.PayOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = f.svc.GetOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestConcurrentCreationsNeverOversell(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	const stock, buyers = 10, 40
	a := f.product(t, stock)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, inventory.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	assert.Equal(t, buyers-stock, rejected)
	assert.Zero(t, f.stock(t, a))
}

// hookedStore lets a test replace the transaction-bound repositories.
type hookedStore struct {
	*memory.Store
	wrap func(application.Repositories) application.Repositories
}

func (h hookedStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r application.Repositories) error) error {
	return h.Store.WithinTx(ctx, func(ctx context.Context, r application.Repositories) error {
		return fn(ctx, h.wrap(r))
	})
}

type conflictingOrders struct {
	application.OrderRepository
	conflictOn uuid.UUID
}

func (c conflictingOrders) Update(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.ID == c.conflictOn {
		return domain.Order{}, domain.ErrConcurrentModification
	}
	return c.OrderRepository.Update(ctx, o)
}

type failingLedger struct {
	application.StockLedger
	failOn uuid.UUID
}

func (l failingLedger) Adjust(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	if id == l.failOn && delta > 0 {
		return 0, errors.New("connection reset")
	}
	return l.StockLedger.Adjust(ctx, id, delta)
}

func TestCancelConflictLeavesNoTrace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.product(t, 5)
	order, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 2}})
	require.NoError(t, err)

	svc := application.NewService(discardLogger(), hookedStore{Store: f.store, wrap: func(r application.Repositories) application.Repositories {
		r.Orders = conflictingOrders{OrderRepository: r.Orders, conflictOn: order.ID}
		return r
	}})

	_, err = svc.CancelOrder(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, 3, f.stock(t, a))

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestCancelStorageFailureRollsBackPartialRestore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b := f.product(t, 5), f.product(t, 5)
	order, err := f.svc.CreateOrder(ctx, []domain.OrderItem{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 2}})
	require.NoError(t, err)

	svc := application.NewService(discardLogger(), hookedStore{Store: f.store, wrap: func(r application.Repositories) application.Repositories {
		r.Ledger = failingLedger{StockLedger: r.Ledger, failOn: b}
		return r
	}})

	_, err = svc.CancelOrder(ctx, order.ID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrConcurrentModification))
	assert.Equal(t, 3, f.stock(t, a))
	assert.Equal(t, 3, f.stock(t, b))

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, order.Version, got.Version)
}

// recordingLedger notes the product of every Adjust call in call order.
type recordingLedger struct {
	application.StockLedger
	mu    *sync.Mutex
	calls *[]uuid.UUID
}

func (l recordingLedger) Adjust(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	l.mu.Lock()
	*l.calls = append(*l.calls, id)
	l.mu.Unlock()
	return l.StockLedger.Adjust(ctx, id, delta)
}

func TestStockAdjustedInProductOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ids := []uuid.UUID{f.product(t, 5), f.product(t, 5), f.product(t, 5)}
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	reversed := slices.Clone(sorted)
	slices.Reverse(reversed)

	var (
		mu    sync.Mutex
		calls []uuid.UUID
	)
	svc := application.NewService(discardLogger(), hookedStore{Store: f.store, wrap: func(r application.Repositories) application.Repositories {
		r.Ledger = recordingLedger{StockLedger: r.Ledger, mu: &mu, calls: &calls}
		return r
	}})

	items := make([]domain.OrderItem, 0, len(reversed))
	for _, id := range reversed {
		items = append(items, domain.OrderItem{ProductID: id, Quantity: 1})
	}
	order, err := svc.CreateOrder(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, sorted, calls, "reserve walks products in ID order")
	assert.Equal(t, items, order.Items, "order keeps request item order")

	calls = nil
	_, err = svc.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, sorted, calls, "release walks products in ID order")
}

func TestStockConservation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	products := []uuid.UUID{f.product(t, 7), f.product(t, 4), f.product(t, 9)}
	before := 7 + 4 + 9

	requests := [][]domain.OrderItem{
		{{ProductID: products[0], Quantity: 3}, {ProductID: products[1], Quantity: 1}},
		{{ProductID: products[1], Quantity: 4}},
		{{ProductID: products[2], Quantity: 9}, {ProductID: products[0], Quantity: 4}},
		{{ProductID: products[0], Quantity: 1}},
	}
	var ordered int
	for _, items := range requests {
		o, err := f.svc.CreateOrder(ctx, items)
		if err != nil {
			require.ErrorIs(t, err, inventory.ErrInsufficientStock)
			continue
		}
		ordered += o.TotalQuantity()
	}

	var after int
	for _, id := range products {
		s := f.stock(t, id)
		assert.GreaterOrEqual(t, s, 0)
		after += s
	}
	assert.Equal(t, ordered, before-after)
}
