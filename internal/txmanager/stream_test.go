package txmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/internal/stream"
	"github.com/nikmy/mongotx/pkg/errors"
)

func TestStream_CommitOnComplete(t *testing.T) {
	e := newEnv(t, SyncNever)

	s := Stream(e.mgr, func(ctx context.Context) *stream.Stream[string] {
		return stream.New(func(ctx context.Context, emit stream.Emit[string]) error {
			for _, id := range []string{"a", "b"} {
				if _, err := e.coll.InsertOne(ctx, bson.M{"_id": id}); err != nil {
					return err
				}
				if err := emit(id); err != nil {
					return err
				}
			}
			return nil
		})
	})

	require.Zero(t, e.srv.Stats().SessionsStarted)

	ids, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
	require.True(t, e.visible(t, "a"))
	require.True(t, e.visible(t, "b"))

	stats := e.srv.Stats()
	require.Equal(t, 1, stats.SessionsStarted)
	require.Equal(t, 1, stats.SessionsEnded)
	require.Equal(t, 1, stats.Commits)
}

func TestStream_AbortOnErrorAndCancel(t *testing.T) {
	errBody := errors.Error("body failed")

	insertThen := func(e env, tail func(ctx context.Context, emit stream.Emit[int]) error) *stream.Stream[int] {
		return Stream(e.mgr, func(ctx context.Context) *stream.Stream[int] {
			return stream.New(func(ctx context.Context, emit stream.Emit[int]) error {
				if _, err := e.coll.InsertOne(ctx, bson.M{"_id": "a"}); err != nil {
					return err
				}
				return tail(ctx, emit)
			})
		})
	}

	t.Run("error", func(t *testing.T) {
		e := newEnv(t, SyncNever)
		s := insertThen(e, func(context.Context, stream.Emit[int]) error {
			return errBody
		})

		_, err := s.Collect(context.Background())
		require.ErrorIs(t, err, errBody)
		require.False(t, e.visible(t, "a"))

		stats := e.srv.Stats()
		require.Equal(t, 1, stats.Aborts)
		require.Equal(t, 1, stats.SessionsEnded)
	})

	t.Run("cancel", func(t *testing.T) {
		e := newEnv(t, SyncNever)
		s := insertThen(e, func(ctx context.Context, emit stream.Emit[int]) error {
			for i := 0; ; i++ {
				if err := emit(i); err != nil {
					return err
				}
			}
		})

		sub := s.Subscribe(context.Background())
		<-sub.C()
		sub.Cancel()
		for range sub.C() {
		}

		require.ErrorIs(t, sub.Err(), context.Canceled)
		require.False(t, e.visible(t, "a"))

		stats := e.srv.Stats()
		require.Equal(t, 1, stats.Aborts)
		require.Equal(t, 1, stats.SessionsEnded)
		require.Zero(t, stats.Commits)
	})
}

func TestStream_SubscriptionsDoNotShareSessions(t *testing.T) {
	e := newEnv(t, SyncNever)

	s := Stream(e.mgr, func(ctx context.Context) *stream.Stream[*session.Handle] {
		return stream.New(func(ctx context.Context, emit stream.Emit[*session.Handle]) error {
			h, _ := e.store.Current(ctx)
			return emit(h)
		})
	})

	first := s.Subscribe(context.Background())
	second := s.Subscribe(context.Background())

	h1, h2 := <-first.C(), <-second.C()
	require.NotNil(t, h1)
	require.NotNil(t, h2)
	require.NotSame(t, h1, h2)

	require.NoError(t, first.Err())
	require.NoError(t, second.Err())
	require.True(t, h1.IsClosed())
	require.True(t, h2.IsClosed())
	require.Equal(t, 2, e.srv.Stats().SessionsEnded)
}
