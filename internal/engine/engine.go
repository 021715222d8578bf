// Package engine interprets decrypted group control messages: it
// validates them, applies their effects to the distributed config state
// and the local mirror inside one transaction, and returns the side
// effects the caller must dispatch after commit.
//
// Messages for the same group are processed one at a time; different
// groups proceed concurrently. Out-of-order delivery is tolerated only
// through the explicit timestamp and generation guards, never through
// global ordering.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// ErrInvalidMessage marks a structurally or semantically invalid control
// message: missing sender or timestamp, a failed admin signature, a stale
// generation, a failed key derivation. Terminal for that message; the
// transaction is rolled back and no state changes.
var ErrInvalidMessage = errors.New("engine: invalid message")

// Engine is the group protocol engine.
type Engine struct {
	store   *store.Store
	configs *configstore.Manager

	localID   string // prefixed hex account ID of this device's identity
	localKeys sessioncrypto.KeyPair

	// pushTokenRegistered reports whether a device push token exists, so
	// an accepted invite can request a subscription. Nil means no token.
	pushTokenRegistered func() bool

	logger *log.Logger
	now    func() time.Time

	mu     sync.Mutex
	groups map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets an optional logger. Nil disables logging.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPushTokenCheck sets the device-token check used when deriving push
// subscription effects.
func WithPushTokenCheck(fn func() bool) Option {
	return func(e *Engine) { e.pushTokenRegistered = fn }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine bound to the local identity.
func New(st *store.Store, configs *configstore.Manager, localKeys sessioncrypto.KeyPair, opts ...Option) (*Engine, error) {
	localX, err := sessioncrypto.PublicEd25519ToX25519(localKeys.Public)
	if err != nil {
		return nil, fmt.Errorf("engine: local identity: %w", err)
	}
	e := &Engine{
		store:     st,
		configs:   configs,
		localID:   sessioncrypto.AccountID(localX),
		localKeys: localKeys,
		now:       time.Now,
		groups:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// LocalID returns the engine's own prefixed hex account ID.
func (e *Engine) LocalID() string {
	return e.localID
}

// Outcome is the result of processing one message: either the message was
// applied and Effects hold the post-commit work, or it was rejected and
// Reject carries the reason. A rejected message changes no state.
type Outcome struct {
	Applied bool
	Reject  error
	Effects []Effect
}

// effects accumulates side effects during a transaction.
type effects struct {
	list []Effect
}

func (fx *effects) add(e Effect) {
	fx.list = append(fx.list, e)
}

// Handle validates and applies one control message. The returned error is
// non-nil only for infrastructure failures (storage, config codec); all
// protocol rejections are reported through Outcome.Reject.
func (e *Engine) Handle(ctx context.Context, routing wire.Routing, msg wire.Message) (Outcome, error) {
	if err := validateHeader(msg); err != nil {
		return rejected(err), nil
	}

	groupID := routing.ThreadID
	if inv, ok := msg.Body.(wire.Invite); ok {
		groupID = inv.GroupID
	}
	if _, err := sessioncrypto.ParseGroupID(groupID); err != nil {
		return rejected(fmt.Errorf("%w: %v", ErrInvalidMessage, err)), nil
	}

	unlock := e.lockGroup(groupID)
	defer unlock()

	staged, err := e.configs.Begin(groupID)
	if err != nil {
		return Outcome{}, fmt.Errorf("engine: begin config: %w", err)
	}

	fx := &effects{}
	err = e.store.WithTx(func(tx *store.Tx) error {
		if err := e.dispatch(ctx, tx, staged, routing, msg, fx); err != nil {
			return err
		}
		return persistDumps(tx, groupID, staged)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidMessage) || errors.Is(err, store.ErrStatusRegression):
		e.logf("rejected %T from %s in %s: %v", msg.Body, msg.Sender, groupID, err)
		return rejected(err), nil
	default:
		return Outcome{}, err
	}

	staged.Commit()
	return Outcome{Applied: true, Effects: fx.list}, nil
}

// dispatch routes a validated message to its handler. The Body union is
// closed; an unknown type here is a programming error.
func (e *Engine) dispatch(ctx context.Context, tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, fx *effects) error {
	switch v := msg.Body.(type) {
	case wire.Invite:
		return e.handleInvite(tx, staged, msg, v, fx)
	case wire.Promote:
		return e.handlePromote(tx, staged, routing, msg, v, fx)
	case wire.InfoChange:
		return e.handleInfoChange(tx, staged, routing, msg, v, fx)
	case wire.MemberChange:
		return e.handleMemberChange(tx, staged, routing, msg, v, fx)
	case wire.MemberLeft:
		return e.handleMemberLeft(tx, staged, routing, msg, fx)
	case wire.MemberLeftNotification:
		return e.handleMemberLeftNotification(tx, staged, routing, msg, fx)
	case wire.InviteResponse:
		return e.handleInviteResponse(tx, staged, routing, msg, v, fx)
	case wire.DeleteMemberContent:
		return e.handleDeleteMemberContent(tx, staged, routing, msg, v, fx)
	default:
		return fmt.Errorf("engine: unhandled control message %T", msg.Body)
	}
}

func rejected(err error) Outcome {
	return Outcome{Applied: false, Reject: err}
}

// lockGroup serializes processing per group.
func (e *Engine) lockGroup(groupID string) func() {
	e.mu.Lock()
	m, ok := e.groups[groupID]
	if !ok {
		m = &sync.Mutex{}
		e.groups[groupID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// persistDumps writes the staged configs' dumps into the mirror so the
// distributed state survives restarts alongside the rows derived from it.
func persistDumps(tx *store.Tx, groupID string, staged *configstore.Staged) error {
	if err := tx.SaveConfigDump(groupID, configstore.KindInfo, staged.Info.Dump()); err != nil {
		return err
	}
	if err := tx.SaveConfigDump(groupID, configstore.KindMembers, staged.Members.Dump()); err != nil {
		return err
	}
	if err := tx.SaveConfigDump(groupID, configstore.KindKeys, staged.Keys.Dump()); err != nil {
		return err
	}
	return tx.SaveConfigDump(userScope, configstore.KindUserGroups, staged.UserIndex.Dump())
}

// userScope keys the user-scoped group index in the config-dump table.
const userScope = "user"

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
