// Package queue buffers progress writes that failed on transient storage
// errors and replays them in the background. Ordering is strict FIFO:
// entries replay in insertion order, and a drain batch finishes before
// anything enqueued mid-drain is considered.
package queue

import (
	"context"
	"time"

	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/google/uuid"
)

const (
	// MaxAttempts is the replay cap per entry; an entry failing this many
	// times is dropped and logged, never retried again.
	MaxAttempts = 3

	DefaultDrainInterval = 15 * time.Second
)

// Entry is one buffered progress write.
type Entry struct {
	ID           string    `json:"id"`
	AttemptID    uint      `json:"attempt_id"`
	StageID      uint      `json:"stage_id"`
	ProgressData []byte    `json:"progress_data"`
	Completed    bool      `json:"completed"`
	Attempts     int       `json:"attempts"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Enqueuer is the narrow producer-side interface services depend on.
type Enqueuer interface {
	Enqueue(ctx context.Context, entry *Entry) error
}

// Store is the queue's backing storage. PopAll atomically snapshots and
// empties the queue; PushFront prepends retained entries ahead of
// anything enqueued since the snapshot, preserving overall FIFO order.
type Store interface {
	Push(ctx context.Context, entries ...*Entry) error
	PushFront(ctx context.Context, entries ...*Entry) error
	PopAll(ctx context.Context) ([]*Entry, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// ReplayFunc applies one buffered entry. A nil return drops the entry;
// an error schedules another attempt until MaxAttempts is reached.
type ReplayFunc func(ctx context.Context, entry *Entry) error

// RetryQueue drives the drain loop over a Store.
type RetryQueue struct {
	store    Store
	replay   ReplayFunc
	logger   utils.Logger
	interval time.Duration
}

func NewRetryQueue(store Store, replay ReplayFunc, logger utils.Logger, interval time.Duration) *RetryQueue {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &RetryQueue{
		store:    store,
		replay:   replay,
		logger:   logger,
		interval: interval,
	}
}

// Enqueue appends an entry to the tail, stamping id and enqueue time.
func (q *RetryQueue) Enqueue(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now().UTC()
	}
	return q.store.Push(ctx, entry)
}

// Drain replays one snapshot of the queue in insertion order. Each entry
// gets exactly one attempt per drain; failures still under the attempt
// cap are retained ahead of anything enqueued while the drain ran.
func (q *RetryQueue) Drain(ctx context.Context) error {
	batch, err := q.store.PopAll(ctx)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	var retained []*Entry
	for _, entry := range batch {
		entry.Attempts++
		if err := q.replay(ctx, entry); err == nil {
			continue
		} else if entry.Attempts >= MaxAttempts {
			q.logger.ErrorContext(ctx, "Dropping progress write after exhausting retries",
				"entry_id", entry.ID,
				"attempt_id", entry.AttemptID,
				"stage_id", entry.StageID,
				"attempts", entry.Attempts,
				"error", err)
		} else {
			q.logger.WarnContext(ctx, "Progress write replay failed, will retry",
				"entry_id", entry.ID,
				"attempt_id", entry.AttemptID,
				"attempts", entry.Attempts,
				"error", err)
			retained = append(retained, entry)
		}
	}

	if len(retained) > 0 {
		if err := q.store.PushFront(ctx, retained...); err != nil {
			return err
		}
	}
	return nil
}

// Run drains on a fixed interval until ctx is cancelled. The backoff is
// deliberately flat: entries wait a full interval between attempts.
func (q *RetryQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Drain(ctx); err != nil {
				q.logger.ErrorContext(ctx, "Retry queue drain failed", "error", err)
			}
		}
	}
}
