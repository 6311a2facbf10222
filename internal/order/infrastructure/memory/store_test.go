package memory

import (
	"context"
	"errors"
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
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

func seedProduct(t *testing.T, s *Store, stock int) uuid.UUID {
	t.Helper()
	p, err := catalog.NewProduct("apple", decimal.RequireFromString("1.20"), stock)
	require.NoError(t, err)
	_, err = s.Products().Create(context.Background(), p)
	require.NoError(t, err)
	return p.ID
}

func stockOf(t *testing.T, s *Store, id uuid.UUID) int {
	t.Helper()
	p, err := s.Products().FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockAmount
}

func TestLedgerAdjust(t *testing.T) {
	s := NewStore()
	id := seedProduct(t, s, 5)
	ctx := context.Background()

	n, err := s.Ledger().Adjust(ctx, id, -5)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Ledger().Adjust(ctx, id, -1)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Zero(t, stockOf(t, s, id))

	_, err = s.Ledger().Adjust(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.False(t, errors.Is(err, inventory.ErrInsufficientStock))
}

func TestWithinTxRollsBackEverything(t *testing.T) {
	s := NewStore()
	a := seedProduct(t, s, 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, r application.Repositories) error {
		_, err := r.Ledger.Adjust(ctx, a, -3)
		require.NoError(t, err)
		o, _ := domain.NewOrder([]domain.OrderItem{{ProductID: a, Quantity: 3}})
		_, err = r.Orders.Insert(ctx, o)
		require.NoError(t, err)
		require.NoError(t, r.Outbox.Enqueue(ctx, outbox.Event{Type: "x"}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, stockOf(t, s, a))
	orders, err := s.Orders().List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, s.Outbox().Events())
}

func TestUpdateIsVersionConditioned(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	o, _ := domain.NewOrder([]domain.OrderItem{{ProductID: uuid.New(), Quantity: 1}})
	created, err := s.Orders().Insert(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, 0, created.Version)

	first := created
	require.NoError(t, first.Cancel())
	updated, err := s.Orders().Update(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)

	stale := created
	require.NoError(t, stale.MarkPaid(time.Now()))
	_, err = s.Orders().Update(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	got, err := s.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, got.Status)

	_, err = s.Orders().Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestStalePending(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := NewStore(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	insert := func(at time.Time) uuid.UUID {
		clock = at
		o, _ := domain.NewOrder([]domain.OrderItem{{ProductID: uuid.New(), Quantity: 1}})
		_, err := s.Orders().Insert(ctx, o)
		require.NoError(t, err)
		return o.ID
	}
	oldest := insert(now.Add(-2 * time.Hour))
	old := insert(now.Add(-time.Hour))
	insert(now.Add(-time.Minute))

	ids, err := s.Orders().StalePending(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest, old}, ids)

	ids, err = s.Orders().StalePending(ctx, now.Add(-30*time.Minute), 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{oldest}, ids)
}

func TestListFiltersAndPages(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	s := NewStore(WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		clock = now.Add(time.Duration(i) * time.Minute)
		o, _ := domain.NewOrder([]domain.OrderItem{{ProductID: uuid.New(), Quantity: 1}})
		_, err := s.Orders().Insert(ctx, o)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	paid, err := s.Orders().Get(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, paid.MarkPaid(now))
	_, err = s.Orders().Update(ctx, paid)
	require.NoError(t, err)

	all, err := s.Orders().List(ctx, domain.ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	pending := domain.StatusPending
	filtered, err := s.Orders().List(ctx, domain.ListFilter{Status: &pending, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, ids[1], filtered[0].ID)
}

func TestDeleteProductGuard(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	a := seedProduct(t, s, 5)

	o, _ := domain.NewOrder([]domain.OrderItem{{ProductID: a, Quantity: 1}})
	created, err := s.Orders().Insert(ctx, o)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Products().Delete(ctx, a), catalog.ErrProductInUse)

	require.NoError(t, created.Cancel())
	_, err = s.Orders().Update(ctx, created)
	require.NoError(t, err)

	require.NoError(t, s.Products().Delete(ctx, a))
	_, err = s.Products().FindProduct(ctx, a)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.ErrorIs(t, s.Products().Delete(ctx, a), catalog.ErrProductNotFound)

	// stock of a deleted product is still reachable for restoring reservations
	_, err = s.Ledger().Adjust(ctx, a, 1)
	assert.NoError(t, err)
}

func TestOutboxLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, r application.Repositories) error {
		_ = r.Outbox.Enqueue(ctx, outbox.Event{Type: "A"})
		return r.Outbox.Enqueue(ctx, outbox.Event{Type: "B"})
	}))

	ob := s.Outbox()
	batch, err := ob.LockBatch(ctx, "relay", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	again, err := ob.LockBatch(ctx, "relay", 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, ob.MarkSent(ctx, []int64{batch[0].ID}))
	require.NoError(t, ob.MarkFailed(ctx, batch[1].ID, "broker down"))

	retry, err := ob.LockBatch(ctx, "relay", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, "B", retry[0].Type)
	assert.Equal(t, 1, retry[0].RetryCount)
}
