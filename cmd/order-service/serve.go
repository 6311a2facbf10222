package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	catalogapp "github.com/dmehra2102/stock-reservation/internal/catalog/application"
	cataloghttp "github.com/dmehra2102/stock-reservation/internal/catalog/infrastructure/http"
	"github.com/dmehra2102/stock-reservation/internal/config"
	"github.com/dmehra2102/stock-reservation/internal/order/application"
	ordergrpc "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/stock-reservation/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/stock-reservation/internal/platform/httpapi"
	"github.com/dmehra2102/stock-reservation/pkg/idempotency"
	"github.com/dmehra2102/stock-reservation/pkg/metrics"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
	"github.com/dmehra2102/stock-reservation/pkg/shutdown"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

const healthInterval = 5 * time.Second

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTELEndpoint, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngine(reg)
	serverMetrics := metrics.NewServerMetrics(reg, cfg.ServiceName)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	relay := outbox.NewRelay(log, be.outbox, outbox.NewDispatcher(log, writer, cfg.OutboxTopic),
		cfg.ServiceName+"-"+uuid.NewString()[:8],
		outbox.WithInterval(cfg.RelayInterval),
		outbox.WithBatchSize(cfg.RelayBatchSize),
	)

	svc := application.NewService(log, be.orders, application.WithMetrics(engineMetrics))
	catalog := catalogapp.NewService(log, be.products, be.ledger)
	reclaimer := application.NewReclaimer(log, svc, cfg.ReclaimInterval, cfg.GracePeriod, cfg.ReclaimBatch)
	consumer := orderkafka.NewPaymentConsumer(log,
		orderkafka.NewReader(cfg.KafkaBrokers, cfg.PaymentTopic, cfg.ConsumerGroup), svc, idem)
	grpcSrv := ordergrpc.NewServer(log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, httpapi.Instrument(serverMetrics))
	r.Get("/health", healthHandler(be))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/orders", orderhttp.NewHandler(log, svc, idempotency.Middleware(log, idem)).Routes())
	r.Mount("/products", cataloghttp.NewHandler(log, catalog).Routes())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(r, "http.server"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return grpcSrv.Run(gctx, cfg.GRPCAddr) })
	g.Go(func() error { return grpcSrv.WatchDatabase(gctx, be, healthInterval) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return reclaimer.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })

	runErr := g.Wait()

	closeErr := shutdown.Run(cfg.ShutdownTimeout,
		func(context.Context) error { return writer.Close() },
		func(context.Context) error { return rdb.Close() },
		tp.Shutdown,
		be.close,
	)
	log.Info("order-service shutdown complete")
	return errors.Join(runErr, closeErr)
}

func healthHandler(db ordergrpc.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status, code = "database unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func reclaimOnce(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = be.close(context.Background()) }()

	svc := application.NewService(log, be.orders)
	report, err := application.NewReclaimer(log, svc, cfg.ReclaimInterval, cfg.GracePeriod, cfg.ReclaimBatch).RunOnce(ctx)
	if err != nil {
		return err
	}
	log.Info("reclaim finished",
		"scanned", report.Scanned,
		"canceled", report.Canceled,
		"skipped", report.Skipped,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
	)
	return nil
}
