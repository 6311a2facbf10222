package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/stock-reservation/internal/catalog/domain"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

const productColumns = `id, name, price::text, stock_amount, created_at`

type Repository struct {
	log *slog.Logger
	db  postgres.DBTX
}

func NewRepository(log *slog.Logger, db postgres.DBTX) *Repository {
	return &Repository{log: log, db: db}
}

func (r *Repository) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO products (id, name, price, stock_amount)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING `+productColumns, p.ID, p.Name, p.Price.String(), p.StockAmount)
	created, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return created, nil
}

func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE deleted_at IS NULL ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) UpdateDetails(ctx context.Context, p domain.Product) (domain.Product, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE products SET name = $2, price = $3::numeric
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+productColumns, p.ID, p.Name, p.Price.String())
	updated, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// Delete soft-deletes the product. Rows stay so historical order items keep
// their reference.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE products SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM order_items oi JOIN orders o ON o.id = oi.order_id
			WHERE oi.product_id = $1 AND o.status = 'PENDING'
		  )`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var inUse bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if inUse {
		return domain.ErrProductInUse
	}
	return domain.ErrProductNotFound
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.StockAmount, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}
