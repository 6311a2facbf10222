package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	catalog "github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

// StockLedger applies a signed delta to a product's available quantity as one
// indivisible storage operation. It fails with inventory.ErrInsufficientStock
// when the result would be negative and catalog.ErrProductNotFound when the
// product does not exist.
type StockLedger interface {
	Adjust(ctx context.Context, productID uuid.UUID, delta int) (int, error)
}

type ProductFinder interface {
	FindProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

type OrderRepository interface {
	// Insert persists the order with its items and returns it with CreatedAt
	// and Version assigned by the store.
	Insert(ctx context.Context, o domain.Order) (domain.Order, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Order, error)
	// Update writes status and paid-at only if the stored version still equals
	// o.Version, otherwise domain.ErrConcurrentModification. Items are never
	// rewritten.
	Update(ctx context.Context, o domain.Order) (domain.Order, error)
	List(ctx context.Context, f domain.ListFilter) ([]domain.Order, error)
	StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, ev outbox.Event) error
}

// Repositories are bound to one transaction.
type Repositories struct {
	Ledger   StockLedger
	Products ProductFinder
	Orders   OrderRepository
	Outbox   OutboxWriter
}

// Store runs fn inside a single storage transaction: every ledger adjustment,
// order write and outbox row made through r commits together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Orders() OrderRepository
}
