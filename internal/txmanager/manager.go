// Package txmanager runs units of work inside native transactions: as a
// programmatic scoped block, as the resource of a generic txn.Manager, and
// per subscription of a stream.
package txmanager

import (
	"context"
	"sync/atomic"

	"github.com/nikmy/mongotx/internal/coordinator"
	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

type Manager struct {
	client  driver.Client
	store   *scope.Store
	coord   *coordinator.Coordinator
	cfg     Config
	metrics *metrics.Metrics
	log     logger.Logger
}

func New(client driver.Client, store *scope.Store, cfg Config, m *metrics.Metrics, log logger.Logger) *Manager {
	if cfg.Synchronization == "" {
		cfg.Synchronization = defaultSyncMode
	}

	return &Manager{
		client:  client,
		store:   store,
		coord:   coordinator.New(cfg.Retry, m, log),
		cfg:     cfg,
		metrics: m,
		log:     log.With("txmanager"),
	}
}

func (m *Manager) Coordinator() *coordinator.Coordinator {
	return m.coord
}

func (m *Manager) sessionOptions() session.Options {
	return session.Options{
		CausalConsistency: m.cfg.CausalConsistency,
		Transaction: session.TxnOptions{
			MaxCommitTime: m.cfg.MaxCommitTime,
		},
	}
}

type execConfig struct {
	handle *session.Handle
	txn    session.TxnOptions
}

type ExecOption func(*execConfig)

// WithHandle runs the unit of work on h instead of a new session. The
// caller keeps ownership: h is not closed.
func WithHandle(h *session.Handle) ExecOption {
	return func(c *execConfig) {
		c.handle = h
	}
}

func WithTxnOptions(opts session.TxnOptions) ExecOption {
	return func(c *execConfig) {
		c.txn = opts
	}
}

func newExecConfig(opts []ExecOption) execConfig {
	var cfg execConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// unit is one acquired session with its scope binding and transaction.
type unit struct {
	h     *session.Handle
	tok   scope.Token
	owned bool
	bound bool

	released atomic.Bool
}

// Execute runs body in a transaction on a session bound to the scope of
// ctx. It commits when body succeeds and aborts otherwise. The binding and
// the session are released on every exit path, and their errors never
// replace the error of body.
func (m *Manager) Execute(ctx context.Context, body func(ctx context.Context) error, opts ...ExecOption) error {
	ctx, u, err := m.enter(ctx, newExecConfig(opts), scope.Enter)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			m.leave(ctx, u, false)
			panic(p)
		}
	}()

	if err := body(ctx); err != nil {
		m.leave(ctx, u, false)
		return err
	}
	return m.leave(ctx, u, true)
}

func (m *Manager) enter(
	ctx context.Context,
	cfg execConfig,
	scoped func(context.Context) (context.Context, scope.Token),
) (context.Context, *unit, error) {
	ctx, tok := scoped(ctx)
	u := &unit{h: cfg.handle, tok: tok}

	if u.h == nil {
		h, err := session.Open(ctx, m.client, m.sessionOptions())
		if err != nil {
			return nil, nil, err
		}
		u.h, u.owned = h, true
		m.metrics.SessionOpened()
	}

	if current, ok := m.store.Lookup(tok); !ok || current != u.h {
		if err := m.store.Bind(tok, u.h); err != nil {
			m.release(ctx, u)
			return nil, nil, err
		}
		u.bound = true
	}

	if _, err := m.coord.Start(ctx, u.h, cfg.txn); err != nil {
		m.release(ctx, u)
		return nil, nil, err
	}

	m.log.Debugf("session %s entered scope %s", u.h.ID(), u.tok)
	return ctx, u, nil
}

// leave finishes the transaction of u and releases it. Only a commit
// error is returned.
func (m *Manager) leave(ctx context.Context, u *unit, commit bool) error {
	var err error
	if commit {
		err = m.coord.Commit(ctx, u.h)
	} else {
		m.abort(ctx, u)
	}

	m.release(ctx, u)
	return err
}

func (m *Manager) abort(ctx context.Context, u *unit) {
	if _, active := m.coord.Current(u.h); !active {
		return
	}
	m.log.Warn(m.coord.Abort(context.WithoutCancel(ctx), u.h))
}

// release unbinds and closes u exactly once, whoever calls it first.
func (m *Manager) release(ctx context.Context, u *unit) {
	if !u.released.CompareAndSwap(false, true) {
		return
	}

	if u.bound {
		m.store.Release(u.tok, u.h)
	}

	if !u.owned {
		return
	}

	if err := u.h.Close(context.WithoutCancel(ctx)); err != nil {
		m.log.Warn(errors.WrapFailf(err, "close session %s", u.h.ID()))
	}
	m.metrics.SessionClosed()
	m.log.Debugf("session %s released", u.h.ID())
}

// Store is the scope store sessions are bound in.
func (m *Manager) Store() *scope.Store {
	return m.store
}
