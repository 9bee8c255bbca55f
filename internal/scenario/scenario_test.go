package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nikmy/mongotx/internal/coordinator"
	"github.com/nikmy/mongotx/internal/driver/memdriver"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/template"
	"github.com/nikmy/mongotx/internal/txmanager"
	"github.com/nikmy/mongotx/pkg/logger"
)

func newRunner(t *testing.T, withTxm bool) (*Runner, *memdriver.Server) {
	t.Helper()

	srv := memdriver.NewServer()
	srv.SetSecondaryReads(true)

	log := logger.NewStub()
	m := metrics.New(prometheus.NewRegistry())

	opts := []template.Option{template.WithMetrics(m), template.WithLogger(log)}
	if withTxm {
		cfg := txmanager.DefaultConfig()
		cfg.Retry = coordinator.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
		opts = append(opts, template.WithTransactions(txmanager.New(srv.Client(), scope.NewStore(), cfg, m, log)))
	}

	return New(template.New(srv.Client(), "scenarios", opts...), "", log), srv
}

func TestRun(t *testing.T) {
	r, srv := newRunner(t, true)
	srv.FailCommits(memdriver.TransientError())

	reports := r.Run(context.Background())
	require.Len(t, reports, 2)
	for _, rep := range reports {
		require.NoError(t, rep.Err, rep.Name)
	}

	stats := srv.Stats()
	require.Equal(t, 2, stats.CommitAttempts)
	require.Equal(t, stats.SessionsStarted, stats.SessionsEnded)
}

func TestRun_WithoutTransactions(t *testing.T) {
	r, _ := newRunner(t, false)

	reports := r.Run(context.Background())
	require.Len(t, reports, 2)
	require.NoError(t, reports[0].Err)
	require.ErrorIs(t, reports[1].Err, template.ErrNoTransactions)
}

func TestRun_Canceled(t *testing.T) {
	r, _ := newRunner(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Empty(t, r.Run(ctx))
}
