package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dmehra2102/stock-reservation/pkg/outbox"
)

// Outbox exposes the relay side of the in-memory outbox.
func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

type Outbox struct{ s *Store }

func (o *Outbox) LockBatch(_ context.Context, relayID string, batchSize int, _ time.Duration) ([]outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var batch []outbox.Event
	for i := range o.s.st.outbox {
		if len(batch) == batchSize {
			break
		}
		ev := &o.s.st.outbox[i]
		if ev.Status != outbox.StatusPending {
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		batch = append(batch, *ev)
	}
	return batch, nil
}

func (o *Outbox) MarkSent(_ context.Context, ids []int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.st.outbox {
		if slices.Contains(ids, o.s.st.outbox[i].ID) {
			o.s.st.outbox[i].Status = outbox.StatusSent
		}
	}
	return nil
}

// MarkFailed puts the event back to pending so the next flush retries it.
func (o *Outbox) MarkFailed(_ context.Context, id int64, errMsg string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.st.outbox {
		ev := &o.s.st.outbox[i]
		if ev.ID == id {
			ev.Status = outbox.StatusPending
			ev.RetryCount++
			ev.LastError = &errMsg
		}
	}
	return nil
}

// Events returns a copy of every outbox row, in insertion order.
func (o *Outbox) Events() []outbox.Event {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	return slices.Clone(o.s.st.outbox)
}
