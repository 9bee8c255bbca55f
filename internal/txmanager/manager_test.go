package txmanager

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/internal/causal"
	"github.com/nikmy/mongotx/internal/coordinator"
	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/driver/memdriver"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/proxy"
	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

type env struct {
	srv   *memdriver.Server
	store *scope.Store
	mgr   *Manager
	reg   *prometheus.Registry

	coll   *proxy.Collection
	native driver.Collection
}

func newEnv(t *testing.T, mode SyncMode) env {
	t.Helper()

	srv := memdriver.NewServer()
	store := scope.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := logger.NewStub()

	cfg := DefaultConfig()
	cfg.Synchronization = mode
	cfg.Retry = coordinator.RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
	mgr := New(srv.Client(), store, cfg, m, log)

	native := srv.Client().Database("test").Collection("docs")
	router := proxy.NewRouter(proxy.Chain{store, mgr.Synchronizer()}, causal.New(log), m, log)

	return env{
		srv:    srv,
		store:  store,
		mgr:    mgr,
		reg:    reg,
		coll:   router.Collection(native),
		native: native,
	}
}

func (e env) visible(t *testing.T, id string) bool {
	t.Helper()

	err := e.native.FindOne(context.Background(), bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (e env) openSessions(t *testing.T) float64 {
	t.Helper()

	families, err := e.reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "mongotx_session_open" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

// observed captures what a body saw of its scope.
type observed struct {
	tok scope.Token
	h   *session.Handle
}

func (e env) observe(ctx context.Context, into *observed) {
	into.tok, _ = scope.FromContext(ctx)
	into.h, _ = e.store.Current(ctx)
}

func TestExecute_Commit(t *testing.T) {
	e := newEnv(t, SyncNever)
	ctx := context.Background()

	var seen observed
	err := e.mgr.Execute(ctx, func(ctx context.Context) error {
		e.observe(ctx, &seen)

		_, err := e.coll.InsertOne(ctx, bson.M{"_id": "d1"})
		require.NoError(t, err)
		require.False(t, e.visible(t, "d1"))

		n, err := e.coll.CountDocuments(ctx, bson.M{"_id": "d1"})
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	require.True(t, e.visible(t, "d1"))
	require.NotNil(t, seen.h)
	require.True(t, seen.h.IsClosed())
	require.Nil(t, seen.h.Transaction())

	_, bound := e.store.Lookup(seen.tok)
	require.False(t, bound)

	stats := e.srv.Stats()
	require.Equal(t, 1, stats.SessionsStarted)
	require.Equal(t, 1, stats.SessionsEnded)
	require.Equal(t, 1, stats.Commits)
	require.Zero(t, e.openSessions(t))
}

func TestExecute_ScopedCleanup(t *testing.T) {
	errBody := errors.Error("body failed")

	tests := []struct {
		name  string
		body  func(e env) func(ctx context.Context) error
		check func(t *testing.T, run func() error)
	}{
		{
			name: "error",
			body: func(e env) func(ctx context.Context) error {
				return func(ctx context.Context) error {
					if _, err := e.coll.InsertOne(ctx, bson.M{"_id": "d1"}); err != nil {
						return err
					}
					return errBody
				}
			},
			check: func(t *testing.T, run func() error) {
				require.ErrorIs(t, run(), errBody)
			},
		},
		{
			name: "panic",
			body: func(e env) func(ctx context.Context) error {
				return func(ctx context.Context) error {
					if _, err := e.coll.InsertOne(ctx, bson.M{"_id": "d1"}); err != nil {
						return err
					}
					panic("body panicked")
				}
			},
			check: func(t *testing.T, run func() error) {
				require.PanicsWithValue(t, "body panicked", func() { _ = run() })
			},
		},
		{
			name: "cancel",
			body: func(e env) func(ctx context.Context) error {
				return func(ctx context.Context) error {
					if _, err := e.coll.InsertOne(ctx, bson.M{"_id": "d1"}); err != nil {
						return err
					}
					<-ctx.Done()
					return ctx.Err()
				}
			},
			check: func(t *testing.T, run func() error) {
				require.ErrorIs(t, run(), context.DeadlineExceeded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, SyncNever)
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			var seen observed
			body := tt.body(e)
			tt.check(t, func() error {
				return e.mgr.Execute(ctx, func(ctx context.Context) error {
					e.observe(ctx, &seen)
					return body(ctx)
				})
			})

			require.NotNil(t, seen.h)
			require.True(t, seen.h.IsClosed())
			require.Nil(t, seen.h.Transaction())
			_, bound := e.store.Lookup(seen.tok)
			require.False(t, bound)
			require.False(t, e.visible(t, "d1"))

			stats := e.srv.Stats()
			require.Equal(t, 1, stats.Aborts)
			require.Equal(t, 1, stats.SessionsEnded)
			require.Zero(t, stats.Commits)
		})
	}
}

func TestExecute_TransientCommitRetried(t *testing.T) {
	e := newEnv(t, SyncNever)
	ctx := context.Background()

	e.srv.FailCommits(memdriver.TransientError())

	err := e.mgr.Execute(ctx, func(ctx context.Context) error {
		_, err := e.coll.InsertOne(ctx, bson.M{"_id": "d2"})
		return err
	})
	require.NoError(t, err)
	require.True(t, e.visible(t, "d2"))
	require.Equal(t, 2, e.srv.Stats().CommitAttempts)
}

func TestExecute_CommitFailure(t *testing.T) {
	e := newEnv(t, SyncNever)
	ctx := context.Background()

	e.srv.FailCommits(memdriver.TransientError(), memdriver.TransientError(), memdriver.TransientError())

	err := e.mgr.Execute(ctx, func(ctx context.Context) error {
		_, err := e.coll.InsertOne(ctx, bson.M{"_id": "d3"})
		return err
	})
	require.ErrorIs(t, err, coordinator.ErrCommitFailed)
	require.ErrorIs(t, err, coordinator.ErrTransientTransaction)
	require.False(t, e.visible(t, "d3"))
	require.Equal(t, 1, e.srv.Stats().SessionsEnded)
}

func TestExecute_NestedBindingRejected(t *testing.T) {
	e := newEnv(t, SyncNever)
	ctx := context.Background()

	err := e.mgr.Execute(ctx, func(ctx context.Context) error {
		return e.mgr.Execute(ctx, func(context.Context) error {
			t.Fatal("inner body must not run")
			return nil
		})
	})
	require.ErrorIs(t, err, scope.ErrAlreadyBound)

	stats := e.srv.Stats()
	require.Equal(t, 2, stats.SessionsStarted)
	require.Equal(t, 2, stats.SessionsEnded)
	require.Equal(t, 1, stats.Aborts)
}

func TestExecute_WithHandle(t *testing.T) {
	e := newEnv(t, SyncNever)
	ctx := context.Background()

	h, err := session.Open(ctx, e.srv.Client(), session.Options{CausalConsistency: true})
	require.NoError(t, err)

	err = e.mgr.Execute(ctx, func(ctx context.Context) error {
		cur, ok := e.store.Current(ctx)
		require.True(t, ok)
		require.Same(t, h, cur)

		_, err := e.coll.InsertOne(ctx, bson.M{"_id": "d4"})
		return err
	}, WithHandle(h))
	require.NoError(t, err)

	require.False(t, h.IsClosed())
	require.NotNil(t, h.OperationTime())
	require.True(t, e.visible(t, "d4"))
	require.NoError(t, h.Close(ctx))
}

func TestExecute_OpenFails(t *testing.T) {
	e := newEnv(t, SyncNever)
	ctx := context.Background()

	require.NoError(t, e.srv.Client().Disconnect(ctx))

	ran := false
	err := e.mgr.Execute(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, memdriver.ErrDisconnected)
	require.False(t, ran)
}

func TestSyncMode_UnmarshalText(t *testing.T) {
	var mode SyncMode
	require.NoError(t, mode.UnmarshalText([]byte("on_actual_transaction")))
	require.Equal(t, SyncOnActual, mode)

	require.NoError(t, mode.UnmarshalText(nil))
	require.Equal(t, SyncNever, mode)

	require.ErrorIs(t, mode.UnmarshalText([]byte("sometimes")), ErrUnknownSyncMode)
}
