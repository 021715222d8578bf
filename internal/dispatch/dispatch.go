// Package dispatch executes the side effects derived by the engine after
// a transaction commits. Effects run asynchronously and independently; a
// failed effect is logged and dropped, it never affects committed state.
package dispatch

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/ombra-im/ombra-go/internal/engine"
	"github.com/ombra-im/ombra-go/internal/jobs"
)

// PollerControl starts and stops group swarm pollers.
type PollerControl interface {
	StartIfNeeded(groupID string)
	StopAndRemove(groupID string)
}

// PushRegistrar manages push subscriptions for group swarms.
type PushRegistrar interface {
	Subscribe(ctx context.Context, groupID string) error
	Unsubscribe(ctx context.Context, groupID string) error
}

// Notifier delivers local notifications.
type Notifier interface {
	Notify(n engine.Notification)
}

// SwarmDeleter issues network deletions against a group's swarm.
type SwarmDeleter interface {
	DeleteFromSwarm(ctx context.Context, groupID string, hashes []string) error
}

// Sinks collects the effect targets. Any field may be nil; effects for a
// nil sink are dropped.
type Sinks struct {
	Pollers PollerControl
	Push    PushRegistrar
	Jobs    *jobs.Runner
	Notify  Notifier
	Swarm   SwarmDeleter
}

// Dispatcher fans committed effects out to their sinks.
type Dispatcher struct {
	sinks  Sinks
	logger *log.Logger
	eg     *errgroup.Group
}

// New creates a dispatcher. logger may be nil.
func New(sinks Sinks, logger *log.Logger) *Dispatcher {
	eg := &errgroup.Group{}
	eg.SetLimit(8)
	return &Dispatcher{sinks: sinks, logger: logger, eg: eg}
}

// Dispatch queues every effect for asynchronous execution and returns
// immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, effects []engine.Effect) {
	for _, fx := range effects {
		fx := fx
		d.eg.Go(func() error {
			d.run(ctx, fx)
			return nil
		})
	}
}

// Wait blocks until all queued effects have finished.
func (d *Dispatcher) Wait() {
	d.eg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, fx engine.Effect) {
	switch v := fx.(type) {
	case engine.StartPoller:
		if d.sinks.Pollers != nil {
			d.sinks.Pollers.StartIfNeeded(v.GroupID)
		}
	case engine.StopPoller:
		if d.sinks.Pollers != nil {
			d.sinks.Pollers.StopAndRemove(v.GroupID)
		}
	case engine.SubscribePush:
		if d.sinks.Push != nil {
			if err := d.sinks.Push.Subscribe(ctx, v.GroupID); err != nil {
				d.logf("dispatch: subscribe push %s: %v", v.GroupID, err)
			}
		}
	case engine.ScheduleJob:
		if d.sinks.Jobs != nil {
			d.sinks.Jobs.Add(v.Job)
		}
	case engine.ShowNotification:
		if d.sinks.Notify != nil {
			d.sinks.Notify.Notify(v.Notification)
		}
	case engine.DeleteFromSwarm:
		if d.sinks.Swarm != nil {
			if err := d.sinks.Swarm.DeleteFromSwarm(ctx, v.GroupID, v.Hashes); err != nil {
				d.logf("dispatch: swarm delete %s: %v", v.GroupID, err)
			}
		}
	default:
		d.logf("dispatch: unknown effect %T", fx)
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
