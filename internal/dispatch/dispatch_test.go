package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ombra-im/ombra-go/internal/engine"
	"github.com/ombra-im/ombra-go/internal/jobs"
)

type fakePollers struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (f *fakePollers) StartIfNeeded(groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, groupID)
}

func (f *fakePollers) StopAndRemove(groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, groupID)
}

type fakePush struct {
	mu   sync.Mutex
	subs []string
	err  error
}

func (f *fakePush) Subscribe(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, groupID)
	return nil
}

func (f *fakePush) Unsubscribe(context.Context, string) error { return nil }

type fakeNotifier struct {
	mu   sync.Mutex
	seen []engine.Notification
}

func (f *fakeNotifier) Notify(n engine.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, n)
}

func TestDispatchFansOut(t *testing.T) {
	pollers := &fakePollers{}
	notifier := &fakeNotifier{}
	runner := jobs.NewRunner(func(context.Context, jobs.Job) error { return nil }, nil)

	d := New(Sinks{Pollers: pollers, Jobs: runner, Notify: notifier}, nil)
	d.Dispatch(context.Background(), []engine.Effect{
		engine.StartPoller{GroupID: "03aa"},
		engine.StopPoller{GroupID: "03bb"},
		engine.ScheduleJob{Job: jobs.Job{Kind: jobs.KindPendingRemovalSweep, GroupID: "03aa"}},
		engine.ShowNotification{Notification: engine.Notification{ThreadID: "03aa"}},
	})
	d.Wait()

	if len(pollers.started) != 1 || pollers.started[0] != "03aa" {
		t.Errorf("started = %v, want [03aa]", pollers.started)
	}
	if len(pollers.stopped) != 1 || pollers.stopped[0] != "03bb" {
		t.Errorf("stopped = %v, want [03bb]", pollers.stopped)
	}
	if runner.Pending() != 1 {
		t.Errorf("pending jobs = %d, want 1", runner.Pending())
	}
	if len(notifier.seen) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifier.seen))
	}
}

func TestFailedEffectDoesNotBlockOthers(t *testing.T) {
	push := &fakePush{err: errors.New("network down")}
	notifier := &fakeNotifier{}

	d := New(Sinks{Push: push, Notify: notifier}, nil)
	d.Dispatch(context.Background(), []engine.Effect{
		engine.SubscribePush{GroupID: "03aa"},
		engine.ShowNotification{Notification: engine.Notification{ThreadID: "03aa"}},
	})
	d.Wait()

	if len(notifier.seen) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifier.seen))
	}
}

func TestNilSinksAreSkipped(t *testing.T) {
	d := New(Sinks{}, nil)
	d.Dispatch(context.Background(), []engine.Effect{
		engine.StartPoller{GroupID: "03aa"},
		engine.SubscribePush{GroupID: "03aa"},
		engine.DeleteFromSwarm{GroupID: "03aa", Hashes: []string{"h1"}},
	})
	d.Wait()
}
