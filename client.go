// Package ombra provides a client for the Ombra group messenger control
// plane: envelope decryption, control-message processing, the local
// mirror database, and the side-effect machinery around them.
package ombra

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/dispatch"
	"github.com/ombra-im/ombra-go/internal/engine"
	"github.com/ombra-im/ombra-go/internal/envelope"
	"github.com/ombra-im/ombra-go/internal/jobs"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/swarm"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// Group is a group stored in the local mirror.
type Group = store.Group

// Outcome reports the result of processing one message.
type Outcome = engine.Outcome

const defaultBlindingCacheSize = 128

// Client is the main entry point.
type Client struct {
	dbPath   string
	logger   *log.Logger
	swarmURL func(groupID string) string

	localKeys sessioncrypto.KeyPair
	blinder   *sessioncrypto.Blinder

	store      *store.Store
	configs    *configstore.Manager
	engine     *engine.Engine
	pollers    *swarm.Manager
	runner     *jobs.Runner
	dispatcher *dispatch.Dispatcher

	sinks dispatch.Sinks

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithDBPath overrides the database path for the local mirror.
func WithDBPath(path string) Option {
	return func(c *Client) { c.dbPath = path }
}

// WithLogger sets the logger for verbose output.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSwarmURL sets the mapping from group ID to swarm websocket URL.
func WithSwarmURL(fn func(groupID string) string) Option {
	return func(c *Client) { c.swarmURL = fn }
}

// WithNotifier sets the local notification sink.
func WithNotifier(n dispatch.Notifier) Option {
	return func(c *Client) { c.sinks.Notify = n }
}

// WithPushRegistrar sets the push subscription sink.
func WithPushRegistrar(p dispatch.PushRegistrar) Option {
	return func(c *Client) { c.sinks.Push = p }
}

// WithSwarmDeleter sets the sink for network content deletions.
func WithSwarmDeleter(d dispatch.SwarmDeleter) Option {
	return func(c *Client) { c.sinks.Swarm = d }
}

// NewClient opens the mirror, restores persisted config state, and wires
// the engine, pollers, job runner and dispatcher together. localKeys is
// the device's long-term ed25519 identity.
func NewClient(localKeys sessioncrypto.KeyPair, opts ...Option) (*Client, error) {
	c := &Client{
		dbPath:    "ombra.db",
		localKeys: localKeys,
	}
	for _, o := range opts {
		o(c)
	}

	blinder, err := sessioncrypto.NewBlinder(defaultBlindingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ombra: blinder: %w", err)
	}
	c.blinder = blinder

	st, err := store.Open(c.dbPath)
	if err != nil {
		return nil, fmt.Errorf("ombra: open store: %w", err)
	}
	c.store = st

	c.configs = configstore.NewManager()
	if err := c.restoreConfigs(); err != nil {
		st.Close()
		return nil, err
	}

	eng, err := engine.New(st, c.configs, localKeys,
		engine.WithLogger(c.logger),
		engine.WithPushTokenCheck(func() bool { return c.sinks.Push != nil }),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	c.engine = eng

	if c.swarmURL != nil {
		c.pollers = swarm.NewManager(c.swarmURL, c.onEnvelope, swarm.WithLogger(c.logger))
		c.sinks.Pollers = c.pollers
	}
	c.runner = jobs.NewRunner(c.runJob, c.logger)
	c.sinks.Jobs = c.runner
	c.dispatcher = dispatch.New(c.sinks, c.logger)

	return c, nil
}

// Start launches the job runner and resumes polling every group marked
// for it.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.runner.Run(runCtx)

	if c.pollers == nil {
		return nil
	}
	groups, err := c.store.ListGroups()
	if err != nil {
		return fmt.Errorf("ombra: list groups: %w", err)
	}
	for _, g := range groups {
		if g.ShouldPoll {
			c.pollers.StartIfNeeded(g.GroupID)
		}
	}
	return nil
}

// Close stops pollers and the job runner, waits for in-flight effects,
// and closes the mirror.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	if c.pollers != nil {
		c.pollers.Close()
	}
	c.dispatcher.Wait()
	return c.store.Close()
}

// LocalID returns the client's prefixed hex account ID.
func (c *Client) LocalID() string {
	return c.engine.LocalID()
}

// HandleDirectEnvelope opens an envelope sealed to the local identity,
// decodes the control message and applies it. The message's sender is
// the envelope's verified sender, never a claim inside the payload.
func (c *Client) HandleDirectEnvelope(ctx context.Context, routing wire.Routing, ciphertext []byte) (Outcome, error) {
	opened, err := envelope.DecryptDirect(ciphertext, c.localKeys)
	if err != nil {
		return Outcome{}, err
	}
	return c.handleOpened(ctx, routing, opened)
}

// HandleBlindedEnvelope opens an envelope from a community server, where
// the sender is known only by their blinded key, and applies the decoded
// control message.
func (c *Client) HandleBlindedEnvelope(ctx context.Context, routing wire.Routing, ciphertext, serverPub, senderBlindedPub []byte) (Outcome, error) {
	opened, err := envelope.DecryptBlinded(ciphertext, c.localKeys, serverPub, senderBlindedPub, c.blinder)
	if err != nil {
		return Outcome{}, err
	}
	return c.handleOpened(ctx, routing, opened)
}

func (c *Client) handleOpened(ctx context.Context, routing wire.Routing, opened envelope.Opened) (Outcome, error) {
	msg, err := wire.Decode(opened.Plaintext)
	if err != nil {
		return Outcome{}, err
	}
	msg.Sender = sessioncrypto.AccountID(opened.SenderKey)

	out, err := c.engine.Handle(ctx, routing, msg)
	if err != nil {
		return Outcome{}, err
	}
	c.dispatcher.Dispatch(ctx, out.Effects)
	return out, nil
}

// HandleKicked processes a sealed removal notice from a group's keys
// channel.
func (c *Client) HandleKicked(ctx context.Context, groupID string, sealed []byte) (Outcome, error) {
	out, err := c.engine.HandleKicked(groupID, sealed)
	if err != nil {
		return Outcome{}, err
	}
	c.dispatcher.Dispatch(ctx, out.Effects)
	return out, nil
}

// CreateGroup creates a group with the local identity as admin and
// starts its poller.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (string, error) {
	groupID, out, err := c.engine.CreateGroup(name, memberIDs)
	if err != nil {
		return "", err
	}
	c.dispatcher.Dispatch(ctx, out.Effects)
	return groupID, nil
}

// Groups lists the groups in the local mirror.
func (c *Client) Groups() ([]*Group, error) {
	return c.store.ListGroups()
}

// ApproveContact marks a contact as approved, so future invites from
// them skip the message-request stage.
func (c *Client) ApproveContact(accountID, name string) error {
	return c.store.WithTx(func(tx *store.Tx) error {
		return tx.UpsertContact(&store.Contact{AccountID: accountID, Name: name, Approved: true})
	})
}

// onEnvelope is the poller callback: every stored envelope retrieved
// from a group swarm runs through the direct decryption path.
func (c *Client) onEnvelope(ctx context.Context, groupID string, env swarm.Inbound) {
	routing := wire.Routing{
		ThreadID:           groupID,
		ThreadVariant:      wire.ThreadGroup,
		ServerExpirationMs: env.ExpirationMs,
		ServerHash:         env.ServerHash,
	}
	out, err := c.HandleDirectEnvelope(ctx, routing, env.Ciphertext)
	if err != nil {
		c.logf("envelope from %s: %v", groupID, err)
		return
	}
	if out.Reject != nil {
		c.logf("envelope from %s rejected: %v", groupID, out.Reject)
	}
}

// runJob executes one deferred job.
func (c *Client) runJob(ctx context.Context, j jobs.Job) error {
	switch j.Kind {
	case jobs.KindPendingRemovalSweep:
		out, err := c.engine.SweepPendingRemovals(j.GroupID, j.ChangeTimestampMs)
		if err != nil {
			return err
		}
		c.dispatcher.Dispatch(ctx, out.Effects)
		return nil
	case jobs.KindPushUnsubscribe:
		if c.sinks.Push == nil {
			return nil
		}
		return c.sinks.Push.Unsubscribe(ctx, j.GroupID)
	default:
		return fmt.Errorf("ombra: unknown job kind %d", j.Kind)
	}
}

// restoreConfigs reloads every persisted config dump into the manager,
// then reloads admin keys for groups holding a seed.
func (c *Client) restoreConfigs() error {
	groups, err := c.store.ListGroups()
	if err != nil {
		return fmt.Errorf("ombra: restore: %w", err)
	}
	err = c.store.WithTx(func(tx *store.Tx) error {
		data, err := tx.GetConfigDump("user", configstore.KindUserGroups)
		if err != nil {
			return err
		}
		if data != nil {
			ug, err := configstore.LoadUserGroups(data)
			if err != nil {
				return err
			}
			c.configs.RestoreUserGroups(ug)
		}

		for _, g := range groups {
			if g.Destroyed {
				continue
			}
			info, members, keys, err := loadGroupDumps(tx, g.GroupID)
			if err != nil {
				return err
			}
			if info == nil {
				continue // never committed, nothing to restore
			}
			c.configs.Restore(g.GroupID, info, members, keys)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ombra: restore: %w", err)
	}

	for _, g := range groups {
		if len(g.AdminSeed) == 0 {
			continue
		}
		if _, err := c.configs.LoadAdminKey(g.AdminSeed, g.GroupID); err != nil {
			c.logf("restore admin key for %s: %v", g.GroupID, err)
		}
	}
	return nil
}

func loadGroupDumps(tx *store.Tx, groupID string) (*configstore.GroupInfo, *configstore.GroupMembers, *configstore.GroupKeys, error) {
	infoData, err := tx.GetConfigDump(groupID, configstore.KindInfo)
	if err != nil {
		return nil, nil, nil, err
	}
	if infoData == nil {
		return nil, nil, nil, nil
	}
	membersData, err := tx.GetConfigDump(groupID, configstore.KindMembers)
	if err != nil {
		return nil, nil, nil, err
	}
	keysData, err := tx.GetConfigDump(groupID, configstore.KindKeys)
	if err != nil {
		return nil, nil, nil, err
	}

	info, err := configstore.LoadGroupInfo(infoData)
	if err != nil {
		return nil, nil, nil, err
	}
	members, err := configstore.LoadGroupMembers(membersData)
	if err != nil {
		return nil, nil, nil, err
	}
	keys, err := configstore.LoadGroupKeys(keysData)
	if err != nil {
		return nil, nil, nil, err
	}
	return info, members, keys, nil
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
