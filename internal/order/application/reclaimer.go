package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
)

type ReleaseReport struct {
	Scanned   int
	Canceled  int
	Skipped   int
	Conflicts int
	Failed    int
}

// ReleaseUnpaidOrders cancels PENDING orders created more than grace ago
// through the same path as a customer cancel. Per-order failures are logged
// and counted; they never stop the pass. Orders that left PENDING after the
// scan are skipped by the state check inside cancel.
func (s *Service) ReleaseUnpaidOrders(ctx context.Context, grace time.Duration, limit int) (ReleaseReport, error) {
	cutoff := s.now().Add(-grace)
	ids, err := s.store.Orders().StalePending(ctx, cutoff, limit)
	if err != nil {
		return ReleaseReport{}, fmt.Errorf("scan unpaid orders: %w", err)
	}

	report := ReleaseReport{Scanned: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		_, err := s.cancel(ctx, id, domain.ReasonUnpaidTimeout)
		switch {
		case err == nil:
			report.Canceled++
		case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrOrderNotFound):
			report.Skipped++
			s.log.Info("unpaid order no longer pending", "order_id", id, "err", err)
		case errors.Is(err, domain.ErrConcurrentModification):
			report.Conflicts++
			s.log.Warn("unpaid order changed concurrently, retry next pass", "order_id", id)
		default:
			report.Failed++
			s.log.Error("failed to release unpaid order", "order_id", id, "err", err)
		}
	}

	s.metrics.Reclaimed("canceled", report.Canceled)
	s.metrics.Reclaimed("skipped", report.Skipped)
	s.metrics.Reclaimed("conflict", report.Conflicts)
	s.metrics.Reclaimed("failed", report.Failed)
	return report, nil
}

type UnpaidReleaser interface {
	ReleaseUnpaidOrders(ctx context.Context, grace time.Duration, limit int) (ReleaseReport, error)
}

// Reclaimer triggers a release pass on a fixed interval.
type Reclaimer struct {
	log       *slog.Logger
	releaser  UnpaidReleaser
	interval  time.Duration
	grace     time.Duration
	batchSize int
}

func NewReclaimer(log *slog.Logger, releaser UnpaidReleaser, interval, grace time.Duration, batchSize int) *Reclaimer {
	return &Reclaimer{
		log:       log,
		releaser:  releaser,
		interval:  interval,
		grace:     grace,
		batchSize: batchSize,
	}
}

func (r *Reclaimer) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("reclaimer started", "interval", r.interval, "grace_period", r.grace)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reclaimer stopping")
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reclaim pass failed", "err", err)
			}
		}
	}
}

func (r *Reclaimer) RunOnce(ctx context.Context) (ReleaseReport, error) {
	report, err := r.releaser.ReleaseUnpaidOrders(ctx, r.grace, r.batchSize)
	if err != nil {
		return report, err
	}
	if report.Scanned > 0 {
		r.log.Info("reclaim pass finished",
			"scanned", report.Scanned,
			"canceled", report.Canceled,
			"skipped", report.Skipped,
			"conflicts", report.Conflicts,
			"failed", report.Failed,
		)
	}
	return report, nil
}
