package txmanager

import (
	"context"

	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/stream"
)

// Stream is Execute for streams: every subscription runs body in its own
// scope, session and transaction. The transaction commits when the
// subscription completes and aborts on error or cancellation, and the
// session is released when the subscription terminates.
func Stream[T any](m *Manager, body func(ctx context.Context) *stream.Stream[T], opts ...ExecOption) *stream.Stream[T] {
	cfg := newExecConfig(opts)

	return stream.Using(
		func(ctx context.Context) (context.Context, *unit, error) {
			return m.enter(ctx, cfg, scope.Fork)
		},
		func(ctx context.Context, _ *unit) *stream.Stream[T] {
			return body(ctx)
		},
		func(ctx context.Context, u *unit, sig stream.Signal) error {
			return m.leave(ctx, u, sig == stream.SignalComplete)
		},
	)
}
