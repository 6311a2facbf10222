package main

import (
	"context"
	"fmt"
	"log/slog"

	catalogapp "github.com/dmehra2102/stock-reservation/internal/catalog/application"
	catalogpg "github.com/dmehra2102/stock-reservation/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/config"
	inventorypg "github.com/dmehra2102/stock-reservation/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	"github.com/dmehra2102/stock-reservation/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

// backend is one storage driver's implementation of every port.
type backend struct {
	orders   application.Store
	products catalogapp.ProductRepository
	ledger   catalogapp.StockLedger
	outbox   outbox.Store
	ping     func(ctx context.Context) error
	close    func(ctx context.Context) error
}

func (b backend) Ping(ctx context.Context) error { return b.ping(ctx) }

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		mem := memory.NewStore()
		return backend{
			orders:   mem,
			products: mem.Products(),
			ledger:   mem.Ledger(),
			outbox:   mem.Outbox(),
			ping:     func(context.Context) error { return nil },
			close:    func(context.Context) error { return nil },
		}, nil
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, log, cfg.PGURL)
		if err != nil {
			return backend{}, err
		}
		store := orderpg.NewStore(log, pool)
		return backend{
			orders:   store,
			products: catalogpg.NewRepository(log, pool),
			ledger:   inventorypg.NewLedger(log, pool),
			outbox:   orderpg.NewOutboxStore(log, pool),
			ping:     store.Ping,
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	default:
		return backend{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
