// Package stream is a small cold-stream model: nothing runs until a
// subscription starts, every subscription runs the whole pipeline on its
// own, and finalization hooks fire exactly once per subscription.
package stream

import (
	"context"

	"github.com/nikmy/mongotx/pkg/errors"
)

type Signal int

const (
	SignalComplete Signal = iota
	SignalError
	SignalCancel
)

func (s Signal) String() string {
	switch s {
	case SignalComplete:
		return "complete"
	case SignalError:
		return "error"
	case SignalCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Emit hands one item to the subscriber. It fails once the subscription
// is cancelled.
type Emit[T any] func(item T) error

type Stream[T any] struct {
	produce func(ctx context.Context, emit Emit[T]) error
}

func New[T any](produce func(ctx context.Context, emit Emit[T]) error) *Stream[T] {
	return &Stream[T]{produce: produce}
}

func Just[T any](items ...T) *Stream[T] {
	return New(func(_ context.Context, emit Emit[T]) error {
		for _, item := range items {
			if err := emit(item); err != nil {
				return err
			}
		}
		return nil
	})
}

func Fail[T any](err error) *Stream[T] {
	return New(func(context.Context, Emit[T]) error {
		return err
	})
}

// Defer builds the stream anew for every subscription.
func Defer[T any](build func(ctx context.Context) *Stream[T]) *Stream[T] {
	return New(func(ctx context.Context, emit Emit[T]) error {
		return build(ctx).produce(ctx, emit)
	})
}

func Map[T, U any](s *Stream[T], fn func(ctx context.Context, item T) (U, error)) *Stream[U] {
	return New(func(ctx context.Context, emit Emit[U]) error {
		return s.produce(ctx, func(item T) error {
			out, err := fn(ctx, item)
			if err != nil {
				return err
			}
			return emit(out)
		})
	})
}

func signalOf(ctx context.Context, err error, panicked bool) Signal {
	switch {
	case panicked:
		return SignalError
	case err == nil:
		return SignalComplete
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return SignalCancel
	default:
		return SignalError
	}
}

// DoFinally runs fn once per subscription, after the stream terminates
// and before the subscription reports done.
func (s *Stream[T]) DoFinally(fn func(sig Signal)) *Stream[T] {
	return New(func(ctx context.Context, emit Emit[T]) (err error) {
		defer func() {
			p := recover()
			fn(signalOf(ctx, err, p != nil))
			if p != nil {
				panic(p)
			}
		}()

		return s.produce(ctx, emit)
	})
}

// Using acquires a resource per subscription, streams body over it and
// releases it once the subscription terminates. The context returned by
// acquire is what body sees. A release error is reported only when the
// stream itself succeeded.
func Using[R, T any](
	acquire func(ctx context.Context) (context.Context, R, error),
	body func(ctx context.Context, res R) *Stream[T],
	release func(ctx context.Context, res R, sig Signal) error,
) *Stream[T] {
	return New(func(ctx context.Context, emit Emit[T]) (err error) {
		ctx, res, err := acquire(ctx)
		if err != nil {
			return err
		}

		defer func() {
			p := recover()
			relErr := release(context.WithoutCancel(ctx), res, signalOf(ctx, err, p != nil))
			if p != nil {
				panic(p)
			}
			if err == nil {
				err = relErr
			}
		}()

		return body(ctx, res).produce(ctx, emit)
	})
}

// Subscription is one run of a stream.
type Subscription[T any] struct {
	items  chan T
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Subscribe starts the stream. Items arrive on C, which is closed when the
// stream terminates.
func (s *Stream[T]) Subscribe(ctx context.Context) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)

	sub := &Subscription[T]{
		items:  make(chan T),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(sub.done)
		defer cancel()

		sub.err = s.run(ctx, func(item T) error {
			select {
			case sub.items <- item:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(sub.items)
	}()

	return sub
}

func (s *Stream[T]) run(ctx context.Context, emit Emit[T]) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("stream panicked: %v", p)
		}
	}()

	return s.produce(ctx, emit)
}

func (s *Subscription[T]) C() <-chan T {
	return s.items
}

// Cancel stops the stream. Finalizers still run.
func (s *Subscription[T]) Cancel() {
	s.cancel()
}

// Done is closed once the stream terminated and all finalizers ran.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err is the terminal error, valid after Done is closed.
func (s *Subscription[T]) Err() error {
	<-s.done
	return s.err
}

// Collect subscribes and gathers every item.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	sub := s.Subscribe(ctx)

	var items []T
	for item := range sub.C() {
		items = append(items, item)
	}
	return items, sub.Err()
}
