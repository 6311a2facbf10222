// Package postgres backs the order engine with PostgreSQL. Each WithinTx call
// binds the ledger, product, order and outbox repositories to one pgx
// transaction.
package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	catalogpg "github.com/dmehra2102/stock-reservation/internal/catalog/infrastructure/postgres"
	inventorypg "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
)

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r application.Repositories) error) error {
	return postgres.WithinTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, application.Repositories{
			Ledger:   inventorypg.NewLedger(s.log, tx),
			Products: catalogpg.NewRepository(s.log, tx),
			Orders:   NewRepository(s.log, tx),
			Outbox:   NewOutboxWriter(tx),
		})
	})
}

func (s *Store) Orders() application.OrderRepository {
	return NewRepository(s.log, s.pool)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
