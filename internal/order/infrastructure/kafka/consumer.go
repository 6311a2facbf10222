package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/internal/order/domain"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

const EventPaymentProcessed = "PaymentProcessed"

// PaymentProcessed is published by the payment provider once an order's
// charge has settled.
type PaymentProcessed struct {
	OrderID uuid.UUID `json:"order_id"`
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Deduper claims a message key on first sight. Release gives the claim back
// so a redelivery of an unapplied message is processed again.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type OrderPayer interface {
	PayOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
}

type PaymentConsumer struct {
	log        *slog.Logger
	reader     MessageReader
	payer      OrderPayer
	dedupe     Deduper
	tracer     trace.Tracer
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewPaymentConsumer(log *slog.Logger, reader MessageReader, payer OrderPayer, dedupe Deduper) *PaymentConsumer {
	return &PaymentConsumer{
		log:        log,
		reader:     reader,
		payer:      payer,
		dedupe:     dedupe,
		tracer:     otel.Tracer("payment-consumer"),
		backoff:    200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

// Run consumes until ctx is canceled. A message is committed once it is paid
// or found unapplicable. Transient failures are retried until they succeed or
// ctx ends; in the latter case the message stays uncommitted and its dedupe
// claim is released so the next consumer of the partition picks it up.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("payment consumer stopping")
				return nil
			}
			return err
		}
		if err := c.handle(ctx, msg); err != nil {
			c.log.Info("payment consumer stopping", "uncommitted_offset", msg.Offset, "err", err)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// handle returns an error only when ctx ended before the payment was applied.
func (c *PaymentConsumer) handle(ctx context.Context, msg kafka.Message) error {
	if t := tracing.HeaderValue(msg.Headers, "event_type"); t != "" && t != EventPaymentProcessed {
		return nil
	}

	key := c.dedupe.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.dedupe.Seen(ctx, key)
	if err != nil {
		c.log.Error("idempotency check failed", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentProcessed")
	defer span.End()

	var ev PaymentProcessed
	if err := json.Unmarshal(msg.Value, &ev); err != nil || ev.OrderID == uuid.Nil {
		c.log.Error("malformed payment event", "offset", msg.Offset, "err", err)
		return nil
	}
	span.SetAttributes(attribute.String("order.id", ev.OrderID.String()))

	wait := c.backoff
	for attempt := 1; ; attempt++ {
		_, err = c.payer.PayOrder(msgCtx, ev.OrderID)
		if err == nil {
			c.log.Info("order paid", "order_id", ev.OrderID)
			return nil
		}
		if errors.Is(err, domain.ErrInvalidStateTransition) || errors.Is(err, domain.ErrOrderNotFound) {
			c.log.Warn("payment not applied", "order_id", ev.OrderID, "err", err)
			return nil
		}
		span.RecordError(err)
		c.log.Warn("pay order failed, retrying", "order_id", ev.OrderID, "attempt", attempt, "retry_in", wait, "err", err)

		select {
		case <-msgCtx.Done():
			if rerr := c.dedupe.Release(context.WithoutCancel(ctx), key); rerr != nil {
				c.log.Error("release idempotency key failed", "key", key, "err", rerr)
			}
			return errors.Join(msgCtx.Err(), err)
		case <-time.After(wait):
		}
		wait = min(2*wait, c.maxBackoff)
	}
}
