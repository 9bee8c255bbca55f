// Package txn is a resource-agnostic transaction manager: it applies
// propagation rules, tracks rollback-only marks and runs synchronizations,
// delegating the actual work to a Resource.
package txn

import (
	"context"
	"sync/atomic"

	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

// Status is what Begin hands out for one Begin/Commit pair.
type Status struct {
	def   Definition
	state *state

	newTxn  bool
	newSync bool

	rollbackOnly atomic.Bool
	completed    atomic.Bool

	cancel context.CancelFunc
}

func (s *Status) Definition() Definition {
	return s.def
}

// IsNewTransaction reports whether this Begin started the resource
// transaction, as opposed to joining one.
func (s *Status) IsNewTransaction() bool {
	return s.newTxn
}

func (s *Status) SetRollbackOnly() {
	s.rollbackOnly.Store(true)
}

func (s *Status) IsRollbackOnly() bool {
	return s.rollbackOnly.Load() || (s.state != nil && s.state.rollbackOnly.Load())
}

func (s *Status) IsCompleted() bool {
	return s.completed.Load()
}

type Manager struct {
	resource Resource
	log      logger.Logger
}

// NewManager returns a manager over r. A nil r gives a manager that only
// runs synchronizations.
func NewManager(r Resource, log logger.Logger) *Manager {
	return &Manager{
		resource: r,
		log:      log.With("txn"),
	}
}

func (m *Manager) existing(ctx context.Context) bool {
	if st := stateFrom(ctx); st != nil && st.actual {
		return true
	}
	return m.resource != nil && m.resource.Existing(ctx)
}

// Begin starts or joins a transaction per def.Propagation. The returned
// context must be used for the work and for Commit/Rollback.
func (m *Manager) Begin(ctx context.Context, def Definition) (context.Context, *Status, error) {
	if m.existing(ctx) {
		switch def.Propagation {
		case Never:
			return nil, nil, ErrExistingTransaction
		case RequiresNew:
			return m.begin(ctx, def)
		default:
			m.log.Debugf("join existing transaction for %q", def.Name)
			return ctx, &Status{def: def, state: stateFrom(ctx)}, nil
		}
	}

	switch def.Propagation {
	case Mandatory:
		return nil, nil, ErrNoTransaction
	case Supports, Never:
		st := &state{def: def}
		return context.WithValue(ctx, stateKey{}, st), &Status{def: def, state: st, newSync: true}, nil
	default:
		return m.begin(ctx, def)
	}
}

func (m *Manager) begin(ctx context.Context, def Definition) (context.Context, *Status, error) {
	cancel := context.CancelFunc(func() {})
	if def.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
	}

	st := &state{def: def, actual: true}
	ctx = context.WithValue(ctx, stateKey{}, st)

	if m.resource != nil {
		var err error
		ctx, err = m.resource.BeginResource(ctx, def)
		if err != nil {
			cancel()
			return nil, nil, errors.WrapFailf(err, "begin transaction %q", def.Name)
		}
	}

	m.log.Debugf("transaction %q started (%s)", def.Name, def.Propagation)
	return ctx, &Status{
		def:     def,
		state:   st,
		newTxn:  true,
		newSync: true,
		cancel:  cancel,
	}, nil
}

// Commit completes st. A participant only passes its rollback-only mark on
// to the transaction it joined.
func (m *Manager) Commit(ctx context.Context, s *Status) error {
	if !s.completed.CompareAndSwap(false, true) {
		return ErrCompleted
	}

	if !s.newSync {
		if s.rollbackOnly.Load() && s.state != nil {
			s.state.rollbackOnly.Store(true)
		}
		return nil
	}

	if s.IsRollbackOnly() {
		m.log.Debugf("transaction %q is rollback-only, rolling back", s.def.Name)
		return errors.Join(m.rollback(ctx, s), ErrRolledBack)
	}

	syncs := s.state.synchronizations()
	for _, sync := range syncs {
		if err := sync.BeforeCommit(ctx, s.def.ReadOnly); err != nil {
			rbErr := m.rollback(ctx, s)
			return errors.Join(errors.WrapFail(err, "prepare synchronization for commit"), rbErr)
		}
	}

	for _, sync := range syncs {
		sync.BeforeCompletion(ctx)
	}

	var err error
	if s.newTxn && m.resource != nil {
		err = m.resource.CommitResource(ctx)
	}

	status := StatusCommitted
	if err != nil {
		status = StatusUnknown
	}
	m.complete(ctx, s, syncs, status)

	return errors.WrapFailf(err, "commit transaction %q", s.def.Name)
}

// Rollback completes st by rolling back. A participant marks the
// transaction it joined rollback-only instead.
func (m *Manager) Rollback(ctx context.Context, s *Status) error {
	if !s.completed.CompareAndSwap(false, true) {
		return ErrCompleted
	}

	if !s.newSync {
		if s.state != nil {
			s.state.rollbackOnly.Store(true)
		}
		return nil
	}

	return m.rollback(ctx, s)
}

func (m *Manager) rollback(ctx context.Context, s *Status) error {
	syncs := s.state.synchronizations()
	for _, sync := range syncs {
		sync.BeforeCompletion(ctx)
	}

	var err error
	if s.newTxn && m.resource != nil {
		err = m.resource.RollbackResource(ctx)
	}

	status := StatusRolledBack
	if err != nil {
		status = StatusUnknown
	}
	m.complete(ctx, s, syncs, status)

	return errors.WrapFailf(err, "roll back transaction %q", s.def.Name)
}

func (m *Manager) complete(ctx context.Context, s *Status, syncs []Synchronization, status CompletionStatus) {
	for _, sync := range syncs {
		sync.AfterCompletion(ctx, status)
	}

	if s.newTxn && m.resource != nil {
		m.resource.CleanupResource(ctx)
	}
	s.state.completed.Store(true)
	if s.cancel != nil {
		s.cancel()
	}

	m.log.Debugf("transaction %q completed: %s", s.def.Name, status)
}

// Do runs fn inside a transaction defined by def. It rolls back when fn
// fails or panics and commits otherwise.
func (m *Manager) Do(ctx context.Context, def Definition, fn func(ctx context.Context) error) (err error) {
	ctx, st, err := m.Begin(ctx, def)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			m.log.Error(errors.WrapFail(m.Rollback(context.WithoutCancel(ctx), st), "roll back after panic"))
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		m.log.Warn(errors.WrapFail(m.Rollback(context.WithoutCancel(ctx), st), "roll back"))
		return err
	}

	return m.Commit(ctx, st)
}
