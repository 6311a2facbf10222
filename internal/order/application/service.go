package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	inventory "github.com/dmehra2102/stock-reservation/internal/inventory/domain"
	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/metrics"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

const aggregateType = "order"

type Service struct {
	log     *slog.Logger
	store   Store
	now     func() time.Time
	tracer  trace.Tracer
	metrics *metrics.Engine
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithMetrics(m *metrics.Engine) Option { return func(s *Service) { s.metrics = m } }

func NewService(log *slog.Logger, store Store, opts ...Option) *Service {
	s := &Service{
		log:    log,
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer("order-engine"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder reserves stock for every item and persists a PENDING order in
// one transaction. Any failure rolls back every reservation already made.
func (s *Service) CreateOrder(ctx context.Context, items []domain.OrderItem) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(attribute.Int("order.items", len(items))))
	defer span.End()

	o, err := domain.NewOrder(items)
	if err != nil {
		return domain.Order{}, s.fail(span, err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID.String()))

	var created domain.Order
	err = s.store.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		for _, item := range o.ItemsInLockOrder() {
			if _, err := r.Products.FindProduct(ctx, item.ProductID); err != nil {
				return err
			}
			if _, err := r.Ledger.Adjust(ctx, item.ProductID, inventory.Reserve(item.ProductID, item.Quantity).Delta); err != nil {
				return err
			}
		}

		var err error
		created, err = r.Orders.Insert(ctx, o)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, r, created.ID, domain.EventOrderCreated, domain.OrderCreated{
			OrderID: created.ID,
			Items:   domain.EventItems(created.Items),
		})
	})
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			s.metrics.StockRejected()
		}
		return domain.Order{}, s.fail(span, fmt.Errorf("create order: %w", err))
	}

	s.metrics.OrderCreated()
	s.log.Info("order created", "order_id", created.ID, "items", len(created.Items))
	return created, nil
}

func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.cancel(ctx, id, domain.ReasonCustomer)
}

// cancel is shared by customer cancellation and reclamation. The status write
// is version-conditioned and happens before stock is restored, so a lost race
// aborts the transaction before any quantity moves.
func (s *Service) cancel(ctx context.Context, id uuid.UUID, reason domain.CancelReason) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CancelOrder", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("cancel.reason", string(reason)),
	))
	defer span.End()

	var canceled domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		o, err := r.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := o.Cancel(); err != nil {
			return err
		}

		canceled, err = r.Orders.Update(ctx, o)
		if err != nil {
			return err
		}
		for _, item := range canceled.ItemsInLockOrder() {
			if _, err := r.Ledger.Adjust(ctx, item.ProductID, inventory.Release(item.ProductID, item.Quantity).Delta); err != nil {
				return fmt.Errorf("restore stock for product %s: %w", item.ProductID, err)
			}
		}
		return s.enqueue(ctx, r, canceled.ID, domain.EventOrderCanceled, domain.OrderCanceled{
			OrderID: canceled.ID,
			Reason:  reason,
			Items:   domain.EventItems(canceled.Items),
		})
	})
	if err != nil {
		return domain.Order{}, s.fail(span, fmt.Errorf("cancel order %s: %w", id, err))
	}

	s.metrics.OrderCanceled(string(reason))
	s.log.Info("order canceled", "order_id", id, "reason", reason)
	return canceled, nil
}

// PayOrder moves a PENDING order to PAID. Stock was reserved at creation and
// is left untouched.
func (s *Service) PayOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "PayOrder", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	var paid domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		o, err := r.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := o.MarkPaid(s.now()); err != nil {
			return err
		}

		paid, err = r.Orders.Update(ctx, o)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, r, paid.ID, domain.EventOrderPaid, domain.OrderPaid{
			OrderID: paid.ID,
			PaidAt:  *paid.PaidAt,
		})
	})
	if err != nil {
		return domain.Order{}, s.fail(span, fmt.Errorf("pay order %s: %w", id, err))
	}

	s.metrics.OrderPaid()
	s.log.Info("order paid", "order_id", id)
	return paid, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.store.Orders().Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, error) {
	return s.store.Orders().List(ctx, f.Normalize())
}

func (s *Service) enqueue(ctx context.Context, r Repositories, orderID uuid.UUID, eventType string, payload any) error {
	ev, err := outbox.NewEvent(ctx, aggregateType, orderID.String(), eventType, payload)
	if err != nil {
		return err
	}
	return r.Outbox.Enqueue(ctx, ev)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
