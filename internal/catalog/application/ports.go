package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/stock-reservation/internal/catalog/domain"
)

type ProductRepository interface {
	Create(ctx context.Context, p domain.Product) (domain.Product, error)
	// FindProduct never returns soft-deleted products.
	FindProduct(ctx context.Context, id uuid.UUID) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	UpdateDetails(ctx context.Context, p domain.Product) (domain.Product, error)
	// Delete fails with domain.ErrProductInUse while a PENDING order still
	// holds a reservation on the product.
	Delete(ctx context.Context, id uuid.UUID) error
}

// StockLedger is the only way stock quantities change after a product exists.
type StockLedger interface {
	Adjust(ctx context.Context, productID uuid.UUID, delta int) (int, error)
}
