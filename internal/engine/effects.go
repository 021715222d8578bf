package engine

import "github.com/ombra-im/ombra-go/internal/jobs"

// Effect is a side effect derived by a committed transaction. Effects are
// plain data; the dispatcher executes them after commit, asynchronously
// and independently of each other. None of them can roll a commit back.
type Effect interface {
	isEffect()
}

// StartPoller starts the group's swarm poller if it is not running.
type StartPoller struct {
	GroupID string
}

// StopPoller stops and removes the group's swarm poller.
type StopPoller struct {
	GroupID string
}

// SubscribePush registers the group's swarm for push delivery.
type SubscribePush struct {
	GroupID string
}

// ScheduleJob hands a deferred job to the runner.
type ScheduleJob struct {
	Job jobs.Job
}

// ShowNotification delivers a local notification.
type ShowNotification struct {
	Notification Notification
}

// DeleteFromSwarm issues a network deletion for the given content hashes
// against the group's swarm. Only ever derived for admin identities.
type DeleteFromSwarm struct {
	GroupID string
	Hashes  []string
}

// Notification is the content of a local notification request.
type Notification struct {
	ThreadID string
	Title    string
	Body     string
	// MessageRequest groups the notification under "message request"
	// rather than the normal conversation bucket.
	MessageRequest bool
}

func (StartPoller) isEffect()      {}
func (StopPoller) isEffect()       {}
func (SubscribePush) isEffect()    {}
func (ScheduleJob) isEffect()      {}
func (ShowNotification) isEffect() {}
func (DeleteFromSwarm) isEffect()  {}
