package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/stock-reservation/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

// DefaultMaxRetries bounds how often a failed event is handed back to a relay.
const DefaultMaxRetries = 10

// OutboxWriter appends events inside the caller's transaction.
type OutboxWriter struct {
	db postgres.DBTX
}

func NewOutboxWriter(db postgres.DBTX) *OutboxWriter {
	return &OutboxWriter{db: db}
}

func (w *OutboxWriter) Enqueue(ctx context.Context, ev outbox.Event) error {
	headers := ev.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := w.db.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		ev.AggregateType, ev.AggregateID, ev.Type, ev.Payload, headers, ev.Traceparent)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.Type, err)
	}
	return nil
}

// OutboxStore leases unsent rows to relays. Rows whose lease expired and
// failed rows under the retry limit are picked up again.
type OutboxStore struct {
	log        *slog.Logger
	pool       *pgxpool.Pool
	maxRetries int
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool, maxRetries: DefaultMaxRetries}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	var events []outbox.Event
	err := postgres.WithinTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
			FROM outbox
			WHERE status = 'pending'
			   OR (status = 'in_progress' AND lease_until < now())
			   OR (status = 'failed' AND retry_count < $2)
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, batchSize, s.maxRetries)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ev outbox.Event
			if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.Payload,
				&ev.Headers, &ev.Traceparent, &ev.CreatedAt, &ev.RetryCount); err != nil {
				return err
			}
			ev.Status = outbox.StatusInProgress
			ev.RelayID = relayID
			events = append(events, ev)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}
		_, err = tx.Exec(ctx, `
			UPDATE outbox SET status = 'in_progress', relay_id = $1, lease_until = now() + make_interval(secs => $2)
			WHERE id = ANY($3)`, relayID, lease.Seconds(), ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("no outbox rows updated")
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox SET status = 'failed', last_error = $2, retry_count = retry_count + 1, lease_until = NULL
		WHERE id = $1`, id, errMsg)
	if err != nil {
		return err
	}
	s.log.Warn("outbox event failed", "event_id", id, "err", errMsg)
	return nil
}
