package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dmehra2102/stock-reservation/internal/config"
	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation/pkg/logging"
	"github.com/dmehra2102/stock-reservation/pkg/shutdown"
)

func main() {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	var (
		cfg config.Config
		log *slog.Logger
	)

	app := &cli.App{
		Name:  "order-service",
		Usage: "order lifecycle engine with stock reservation",
		Before: func(*cli.Context) error {
			var err error
			cfg, err = config.Load("")
			if err != nil {
				return err
			}
			log = logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP and gRPC servers, outbox relay, payment consumer and reclaimer",
				Action: func(c *cli.Context) error {
					return serve(c.Context, cfg, log)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Subcommands: []*cli.Command{
					{
						Name: "up",
						Action: func(*cli.Context) error {
							return postgres.MigrateUp(log, cfg.PGURL)
						},
					},
					{
						Name: "down",
						Action: func(*cli.Context) error {
							return postgres.MigrateDown(log, cfg.PGURL)
						},
					},
				},
			},
			{
				Name:  "reclaim",
				Usage: "run one reclamation pass over unpaid orders and exit",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "grace", Usage: "override RECLAIM_GRACE_PERIOD"},
					&cli.IntFlag{Name: "batch", Usage: "override RECLAIM_BATCH_SIZE"},
				},
				Action: func(c *cli.Context) error {
					if g := c.Duration("grace"); g > 0 {
						cfg.GracePeriod = g
					}
					if b := c.Int("batch"); b > 0 {
						cfg.ReclaimBatch = b
					}
					return reclaimOnce(c.Context, cfg, log)
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		if log == nil {
			log = logging.New("info")
		}
		log.Error("order-service failed", "err", err)
		os.Exit(1)
	}
}
