package txmanager

import (
	"context"
	"sync/atomic"

	"github.com/nikmy/mongotx/internal/proxy"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/txn"
)

// Synchronizer lets operations take part in transactions of a generic
// txn.Manager that does not drive this package as its resource. On the
// first operation inside such a transaction it opens a session, starts a
// native transaction when the outer one is actual, and completes both
// together with the outer transaction.
//
// Operations of one transaction are assumed to be issued in sequence.
type Synchronizer struct {
	m    *Manager
	mode SyncMode
}

var _ proxy.Resolver = (*Synchronizer)(nil)

func (m *Manager) Synchronizer() *Synchronizer {
	return &Synchronizer{m: m, mode: m.cfg.Synchronization}
}

type synchronizationKey struct{}

func (s *Synchronizer) Resolve(ctx context.Context) (*session.Handle, bool, error) {
	switch {
	case s.mode == SyncNever, !txn.IsActive(ctx):
		return nil, false, nil
	case s.mode == SyncOnActual && !txn.IsActual(ctx):
		return nil, false, nil
	}

	if v, ok := txn.ResourceFor(ctx, synchronizationKey{}); ok {
		return v.(*synchronization).h, true, nil
	}

	sync, err := s.open(ctx)
	if err != nil {
		return nil, false, err
	}
	return sync.h, true, nil
}

func (s *Synchronizer) open(ctx context.Context) (*synchronization, error) {
	h, err := session.Open(ctx, s.m.client, s.m.sessionOptions())
	if err != nil {
		return nil, err
	}
	s.m.metrics.SessionOpened()

	sync := &synchronization{m: s.m, h: h}

	if txn.IsActual(ctx) {
		def, _ := txn.Current(ctx)
		if err := sync.start(ctx, def); err != nil {
			sync.close(ctx)
			return nil, err
		}
	}

	if err := txn.BindResource(ctx, synchronizationKey{}, sync); err != nil {
		sync.finish(ctx)
		return nil, err
	}
	if err := txn.RegisterSynchronization(ctx, sync); err != nil {
		sync.finish(ctx)
		return nil, err
	}

	s.m.log.Debugf("session %s synchronized with an outer transaction (native: %t)", h.ID(), sync.native)
	return sync, nil
}

// synchronization completes a lazily opened session with the outer
// transaction that caused it.
type synchronization struct {
	m      *Manager
	h      *session.Handle
	native bool

	closed atomic.Bool
}

var _ txn.Synchronization = (*synchronization)(nil)

func (s *synchronization) start(ctx context.Context, def txn.Definition) error {
	opts, err := definitionOptions(def)
	if err != nil {
		return err
	}
	if _, err := s.m.coord.Start(ctx, s.h, opts); err != nil {
		return err
	}
	s.native = true
	return nil
}

// BeforeCommit commits the native transaction first: if it fails, the
// outer transaction rolls back.
func (s *synchronization) BeforeCommit(ctx context.Context, _ bool) error {
	if !s.native {
		return nil
	}
	return errors.WrapFailf(s.m.coord.Commit(ctx, s.h), "commit synchronized transaction of session %s", s.h.ID())
}

func (s *synchronization) BeforeCompletion(context.Context) {}

func (s *synchronization) AfterCompletion(ctx context.Context, status txn.CompletionStatus) {
	s.m.log.Debugf("session %s: outer transaction %s", s.h.ID(), status)
	txn.UnbindResource(ctx, synchronizationKey{})
	s.finish(ctx)
}

func (s *synchronization) finish(ctx context.Context) {
	if _, active := s.m.coord.Current(s.h); active {
		s.m.log.Warn(s.m.coord.Abort(context.WithoutCancel(ctx), s.h))
	}
	s.close(ctx)
}

func (s *synchronization) close(ctx context.Context) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err := s.h.Close(context.WithoutCancel(ctx)); err != nil {
		s.m.log.Warn(errors.WrapFailf(err, "close session %s", s.h.ID()))
	}
	s.m.metrics.SessionClosed()
}
