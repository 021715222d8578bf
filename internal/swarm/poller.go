package swarm

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Handler receives each envelope retrieved from a group's swarm.
type Handler func(ctx context.Context, groupID string, env Inbound)

// Manager runs at most one poller per group. Pollers reconnect with
// exponential backoff and stop when the group is removed.
type Manager struct {
	urlFor  func(groupID string) string
	handler Handler
	logger  *log.Logger

	mu      sync.Mutex
	pollers map[string]*poller
	closed  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets an optional logger. Nil disables logging.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a poller manager. urlFor maps a group ID to its
// swarm node's websocket URL.
func NewManager(urlFor func(groupID string) string, handler Handler, opts ...Option) *Manager {
	m := &Manager{
		urlFor:  urlFor,
		handler: handler,
		pollers: make(map[string]*poller),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StartIfNeeded starts a poller for the group unless one is running.
func (m *Manager) StartIfNeeded(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.pollers[groupID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		groupID: groupID,
		url:     m.urlFor(groupID),
		handler: m.handler,
		logger:  m.logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.pollers[groupID] = p
	go p.run(ctx)
}

// StopAndRemove stops the group's poller, if any, and waits for it to
// exit.
func (m *Manager) StopAndRemove(groupID string) {
	m.mu.Lock()
	p, ok := m.pollers[groupID]
	delete(m.pollers, groupID)
	m.mu.Unlock()
	if ok {
		p.stop()
	}
}

// Running reports whether a poller exists for the group.
func (m *Manager) Running(groupID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pollers[groupID]
	return ok
}

// Close stops all pollers.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ps := make([]*poller, 0, len(m.pollers))
	for id, p := range m.pollers {
		ps = append(ps, p)
		delete(m.pollers, id)
	}
	m.mu.Unlock()
	for _, p := range ps {
		p.stop()
	}
}

type poller struct {
	groupID string
	url     string
	handler Handler
	logger  *log.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func (p *poller) stop() {
	p.cancel()
	<-p.done
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := Dial(ctx, p.url)
		if err != nil {
			p.logf("swarm: %s: dial: %v", p.groupID, err)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		p.read(ctx, conn)
		conn.CloseNow()
	}
}

// read delivers envelopes until the connection breaks or ctx is done.
func (p *poller) read(ctx context.Context, conn *Conn) {
	for {
		env, err := conn.ReadEnvelope(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logf("swarm: %s: %v", p.groupID, err)
			}
			return
		}
		p.handler(ctx, p.groupID, env)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *poller) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
