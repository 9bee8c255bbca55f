package txmanager

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/txn"
)

var ErrUnsupportedDefinition = errors.Error("transaction definition is not supported")

var _ txn.Resource = (*Manager)(nil)

type resourceKey struct{}

// Existing reports whether the scope of ctx has a session with an active
// transaction.
func (m *Manager) Existing(ctx context.Context) bool {
	h, ok := m.store.Current(ctx)
	if !ok {
		return false
	}
	_, active := m.coord.Current(h)
	return active
}

// BeginResource starts a native transaction for def. A session already
// bound to the scope of ctx is reused, except for RequiresNew, which
// always gets a session in a scope of its own.
func (m *Manager) BeginResource(ctx context.Context, def txn.Definition) (context.Context, error) {
	opts, err := definitionOptions(def)
	if err != nil {
		return nil, err
	}

	cfg := execConfig{txn: opts}
	scoped := scope.Enter
	if def.Propagation == txn.RequiresNew {
		scoped = scope.Fork
	} else if h, ok := m.store.Current(ctx); ok && !h.IsClosed() {
		cfg.handle = h
	}

	ctx, u, err := m.enter(ctx, cfg, scoped)
	if err != nil {
		return nil, err
	}

	if err := txn.BindResource(ctx, resourceKey{}, u); err != nil {
		m.leave(ctx, u, false)
		return nil, err
	}
	return ctx, nil
}

func (m *Manager) CommitResource(ctx context.Context) error {
	u, err := unitFrom(ctx)
	if err != nil {
		return err
	}
	return m.coord.Commit(ctx, u.h)
}

func (m *Manager) RollbackResource(ctx context.Context) error {
	u, err := unitFrom(ctx)
	if err != nil {
		return err
	}
	m.abort(ctx, u)
	return nil
}

func (m *Manager) CleanupResource(ctx context.Context) {
	u, err := unitFrom(ctx)
	if err != nil {
		m.log.Error(errors.WrapFail(err, "clean up transaction resource"))
		return
	}
	m.abort(ctx, u)
	m.release(ctx, u)
}

func unitFrom(ctx context.Context) (*unit, error) {
	v, ok := txn.ResourceFor(ctx, resourceKey{})
	if !ok {
		return nil, txn.ErrNoTransaction
	}
	return v.(*unit), nil
}

// definitionOptions maps the isolation and consistency of def onto read
// and write concerns.
func definitionOptions(def txn.Definition) (session.TxnOptions, error) {
	if def.Consistency > txn.CausalConsistency {
		return session.TxnOptions{}, errors.Wrapf(ErrUnsupportedDefinition, "consistency model %d", def.Consistency)
	}

	opts := session.TxnOptions{
		ReadConcern:  readconcern.Local(),
		WriteConcern: writeconcern.Majority(),
	}
	switch def.Isolation {
	case txn.ReadUncommitted:
	case txn.ReadCommitted:
		opts.ReadConcern = readconcern.Majority()
	case txn.SnapshotIsolation:
		opts.ReadConcern = readconcern.Snapshot()
	default:
		return session.TxnOptions{}, errors.Wrapf(ErrUnsupportedDefinition, "isolation level %d", def.Isolation)
	}

	if def.Timeout > 0 {
		opts.MaxCommitTime = def.Timeout
	}
	return opts, nil
}
