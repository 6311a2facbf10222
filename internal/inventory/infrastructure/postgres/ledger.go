package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	catalog "github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	"github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

// Ledger applies stock deltas with a single conditional UPDATE. The
// products_stock_non_negative constraint rejects any delta that would take
// stock below zero, so concurrent reservations never need a read first.
// Soft-deleted rows are still adjustable so a cancellation can always give
// stock back; callers check visibility through the catalog.
type Ledger struct {
	log *slog.Logger
	db  postgres.DBTX
}

func NewLedger(log *slog.Logger, db postgres.DBTX) *Ledger {
	return &Ledger{log: log, db: db}
}

func (l *Ledger) Adjust(ctx context.Context, productID uuid.UUID, delta int) (int, error) {
	var stock int
	err := l.db.QueryRow(ctx, `
		UPDATE products SET stock_amount = stock_amount + $2
		WHERE id = $1
		RETURNING stock_amount`, productID, delta).Scan(&stock)
	switch {
	case err == nil:
		return stock, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, catalog.ErrProductNotFound
	case postgres.IsCheckViolation(err):
		l.log.Debug("stock adjustment rejected", "product_id", productID, "delta", delta)
		return 0, &domain.InsufficientStockError{ProductID: productID, Delta: delta}
	default:
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
}
