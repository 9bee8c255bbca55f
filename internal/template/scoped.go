package template

import (
	"context"
	"sync/atomic"

	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/internal/stream"
	"github.com/nikmy/mongotx/pkg/errors"
)

// Source tells a SessionScoped where its session comes from.
type Source interface {
	acquire(ctx context.Context, t *Template) (h *session.Handle, owned bool, err error)
}

type supplied struct {
	h *session.Handle
}

// Supplied uses h. It stays open after the work is done.
func Supplied(h *session.Handle) Source {
	return supplied{h: h}
}

func (s supplied) acquire(context.Context, *Template) (*session.Handle, bool, error) {
	if s.h.IsClosed() {
		return nil, false, errors.Wrapf(session.ErrSessionClosed, "supplied session %s", s.h.ID())
	}
	return s.h, false, nil
}

type opened struct {
	opts session.Options
}

// Opened starts a new session per unit of work and closes it afterwards.
func Opened(opts session.Options) Source {
	return opened{opts: opts}
}

func (o opened) acquire(ctx context.Context, t *Template) (*session.Handle, bool, error) {
	h, err := session.Open(ctx, t.client, o.opts)
	if err != nil {
		return nil, false, err
	}
	t.metrics.SessionOpened()
	return h, true, nil
}

// SessionScoped runs work with a session bound to its scope, so that
// every operation of the template inside picks it up.
type SessionScoped struct {
	t   *Template
	src Source
}

func (t *Template) WithSession(src Source) *SessionScoped {
	return &SessionScoped{t: t, src: src}
}

type lease struct {
	h     *session.Handle
	tok   scope.Token
	owned bool
	bound bool

	released atomic.Bool
}

func (s *SessionScoped) acquire(
	ctx context.Context,
	scoped func(context.Context) (context.Context, scope.Token),
) (context.Context, *lease, error) {
	h, owned, err := s.src.acquire(ctx, s.t)
	if err != nil {
		return nil, nil, err
	}

	ctx, tok := scoped(ctx)
	l := &lease{h: h, tok: tok, owned: owned}

	if current, ok := s.t.store.Lookup(tok); !ok || current != h {
		if err := s.t.store.Bind(tok, h); err != nil {
			s.release(ctx, l)
			return nil, nil, err
		}
		l.bound = true
	}

	s.t.log.Debugf("session %s bound to scope %s", h.ID(), tok)
	return ctx, l, nil
}

// release unbinds l and closes its session if it was opened for it.
func (s *SessionScoped) release(ctx context.Context, l *lease) error {
	if !l.released.CompareAndSwap(false, true) {
		return nil
	}

	if l.bound {
		s.t.store.Release(l.tok, l.h)
	}
	if !l.owned {
		return nil
	}

	s.t.metrics.SessionClosed()
	return errors.WrapFailf(l.h.Close(context.WithoutCancel(ctx)), "close session %s", l.h.ID())
}

// Execute runs body with the session bound. A close error is returned
// only if body succeeded.
func (s *SessionScoped) Execute(ctx context.Context, body func(ctx context.Context, t *Template) error) (err error) {
	ctx, l, err := s.acquire(ctx, scope.Enter)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := s.release(ctx, l)
		if err == nil {
			err = closeErr
		} else if closeErr != nil {
			s.t.log.Warn(closeErr)
		}
	}()

	return body(ctx, s.t)
}

func ExecuteValue[T any](ctx context.Context, s *SessionScoped, body func(ctx context.Context, t *Template) (T, error)) (T, error) {
	var out T
	err := s.Execute(ctx, func(ctx context.Context, t *Template) error {
		var err error
		out, err = body(ctx, t)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ExecuteStream is Execute for streams: every subscription gets a scope
// of its own with the session bound. onFinally runs once per subscription
// when it terminates, before an opened session is closed, and also when
// the session could not be acquired.
func ExecuteStream[T any](
	s *SessionScoped,
	body func(ctx context.Context, t *Template) *stream.Stream[T],
	onFinally func(sig stream.Signal),
) *stream.Stream[T] {
	return stream.Defer(func(context.Context) *stream.Stream[T] {
		finished := false
		finish := func(sig stream.Signal) {
			if finished || onFinally == nil {
				return
			}
			finished = true
			onFinally(sig)
		}

		return stream.Using(
			func(ctx context.Context) (context.Context, *lease, error) {
				return s.acquire(ctx, scope.Fork)
			},
			func(ctx context.Context, _ *lease) *stream.Stream[T] {
				return body(ctx, s.t)
			},
			func(ctx context.Context, l *lease, sig stream.Signal) error {
				finish(sig)
				return s.release(ctx, l)
			},
		).DoFinally(finish)
	})
}
