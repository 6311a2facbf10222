package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

const orderColumns = `id, status, created_at, updated_at, paid_at, version`

type Repository struct {
	log *slog.Logger
	db  postgres.DBTX
}

func NewRepository(log *slog.Logger, db postgres.DBTX) *Repository {
	return &Repository{log: log, db: db}
}

func (r *Repository) Insert(ctx context.Context, o domain.Order) (domain.Order, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (id, status, version)
		VALUES ($1, $2, 0)
		RETURNING created_at, updated_at, version`, o.ID, o.Status).
		Scan(&o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, position) VALUES ($1, $2, $3, $4)`,
			o.ID, item.ProductID, item.Quantity, i)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Order{}, fmt.Errorf("insert order items: %w", err)
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	orders := []domain.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *Repository) Update(ctx context.Context, o domain.Order) (domain.Order, error) {
	err := r.db.QueryRow(ctx, `
		UPDATE orders SET status = $2, paid_at = $3, updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $4
		RETURNING updated_at, version`, o.ID, o.Status, o.PaidAt, o.Version).
		Scan(&o.UpdatedAt, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, r.missOrConflict(ctx, o.ID)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

// missOrConflict tells a deleted row apart from a stale version.
func (r *Repository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrConcurrentModification
}

func (r *Repository) List(ctx context.Context, f domain.ListFilter) ([]domain.Order, error) {
	f = f.Normalize()
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM orders
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("scan stale orders: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *Repository) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	idx := make(map[uuid.UUID]int, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for i, o := range orders {
		idx[o.ID] = i
		ids = append(ids, o.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT order_id, product_id, quantity FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position, product_id`, ids)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return err
		}
		i := idx[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(&o.ID, &status, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.Version); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}
