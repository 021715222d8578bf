package jobs

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAddDeduplicatesByKindAndGroup(t *testing.T) {
	r := NewRunner(func(context.Context, Job) error { return nil }, nil)
	r.Add(Job{Kind: KindPendingRemovalSweep, GroupID: "03aa", ChangeTimestampMs: 1})
	r.Add(Job{Kind: KindPendingRemovalSweep, GroupID: "03aa", ChangeTimestampMs: 2})
	r.Add(Job{Kind: KindPendingRemovalSweep, GroupID: "03bb"})
	r.Add(Job{Kind: KindPushUnsubscribe, GroupID: "03aa"})

	if got := r.Pending(); got != 3 {
		t.Fatalf("pending: got %d, want 3", got)
	}
}

func TestRunDueDeliversJobs(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Job
	)
	r := NewRunner(func(_ context.Context, j Job) error {
		mu.Lock()
		got = append(got, j)
		mu.Unlock()
		return nil
	}, nil)

	r.Add(Job{Kind: KindPendingRemovalSweep, GroupID: "03aa"})
	r.Add(Job{Kind: KindPushUnsubscribe, GroupID: "03aa", NotBeforeMs: time.Now().Add(time.Hour).UnixMilli()})

	r.runDue(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("delivered: got %d, want 1", len(got))
	}
	if got[0].Kind != KindPendingRemovalSweep {
		t.Fatalf("kind: got %d", got[0].Kind)
	}
	if got[0].ID == "" {
		t.Fatal("job should have been assigned an ID")
	}
	if r.Pending() != 1 {
		t.Fatal("future job should stay queued")
	}
}

func TestFailedJobRequeued(t *testing.T) {
	calls := 0
	r := NewRunner(func(context.Context, Job) error {
		calls++
		return context.DeadlineExceeded
	}, nil)
	r.retry = 0

	r.Add(Job{Kind: KindPendingRemovalSweep, GroupID: "03aa"})
	r.runDue(context.Background())

	if calls != 1 {
		t.Fatalf("calls: got %d, want 1", calls)
	}
	if r.Pending() != 1 {
		t.Fatal("failed job should be requeued")
	}
}
