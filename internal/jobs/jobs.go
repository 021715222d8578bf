// Package jobs runs the engine's deferred side effects: work that must
// happen after a transaction commits but not synchronously with it, like
// the pending-removal sweep scheduled when a member leaves.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a job type. Jobs of the same kind for the same group
// are deduplicated: scheduling twice runs once.
type Kind int

const (
	// KindPendingRemovalSweep reconciles members flagged pendingRemoval:
	// it removes them from the authoritative config and triggers rekey.
	KindPendingRemovalSweep Kind = iota + 1
	// KindPushUnsubscribe tears down the push registration of a group the
	// local identity no longer polls.
	KindPushUnsubscribe
)

// Job is a unit of deferred work. Pure data; the runner owns execution.
type Job struct {
	ID                string
	Kind              Kind
	GroupID           string
	NotBeforeMs       int64
	ChangeTimestampMs int64 // the control-message timestamp that caused it
}

// Handler executes one job. A returned error requeues the job with backoff.
type Handler func(ctx context.Context, job Job) error

// Runner is a minimal in-process scheduler: Add enqueues, Run drains.
type Runner struct {
	mu      sync.Mutex
	queue   map[string]Job // keyed by dedup key
	wake    chan struct{}
	handler Handler
	logger  *log.Logger
	retry   time.Duration
	now     func() time.Time
}

// NewRunner creates a runner delivering jobs to handler.
// If logger is nil, logging is disabled.
func NewRunner(handler Handler, logger *log.Logger) *Runner {
	return &Runner{
		queue:   make(map[string]Job),
		wake:    make(chan struct{}, 1),
		handler: handler,
		logger:  logger,
		retry:   30 * time.Second,
		now:     time.Now,
	}
}

func dedupKey(j Job) string {
	return fmt.Sprintf("%d/%s", j.Kind, j.GroupID)
}

// Add schedules a job. A job of the same kind for the same group replaces
// any queued one, so redundant scheduling is safe.
func (r *Runner) Add(j Job) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.queue[dedupKey(j)] = j
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued jobs. Used by tests and shutdown.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Run drains the queue until ctx is cancelled, waiting for due times and
// retrying failed jobs.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-ticker.C:
		}
		r.runDue(ctx)
	}
}

func (r *Runner) runDue(ctx context.Context) {
	nowMs := r.now().UnixMilli()

	r.mu.Lock()
	var due []Job
	for k, j := range r.queue {
		if j.NotBeforeMs <= nowMs {
			due = append(due, j)
			delete(r.queue, k)
		}
	}
	r.mu.Unlock()

	for _, j := range due {
		if err := r.handler(ctx, j); err != nil {
			r.logf("job %s kind=%d group=%s failed: %v", j.ID, j.Kind, j.GroupID, err)
			j.NotBeforeMs = r.now().Add(r.retry).UnixMilli()
			r.Add(j)
		}
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
