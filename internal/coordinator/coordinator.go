// Package coordinator drives the transaction state machine of a session:
// Inactive -> Active -> Committed | Aborted | Failed.
package coordinator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

type Coordinator struct {
	policy  RetryPolicy
	metrics *metrics.Metrics
	log     logger.Logger
}

func New(policy RetryPolicy, m *metrics.Metrics, log logger.Logger) *Coordinator {
	return &Coordinator{
		policy:  policy.withDefaults(),
		metrics: m,
		log:     log.With("coordinator"),
	}
}

// Current returns the active transaction of h.
func (c *Coordinator) Current(h *session.Handle) (*Record, bool) {
	r, ok := h.Transaction().(*Record)
	if !ok || r.State() != Active {
		return nil, false
	}
	return r, true
}

// Start opens a transaction on h. opts override the session defaults.
func (c *Coordinator) Start(_ context.Context, h *session.Handle, opts session.TxnOptions) (*Record, error) {
	if h.IsClosed() {
		return nil, errors.Wrapf(session.ErrSessionClosed, "session %s", h.ID())
	}

	r := &Record{
		id:        uuid.NewString(),
		handle:    h,
		options:   h.Options().Transaction.Merge(opts),
		startedAt: time.Now(),
		state:     Inactive,
	}

	if !h.Attach(r) {
		return nil, errors.Wrapf(ErrTransactionInProgress, "session %s", h.ID())
	}

	if err := h.Driver().StartTransaction(r.options.Driver()); err != nil {
		h.Detach(r)
		return nil, errors.WrapFailf(err, "start transaction on session %s", h.ID())
	}

	r.setState(Active)
	c.log.Debugf("session %s: transaction %s started", h.ID(), r.id)
	return r, nil
}

// Commit commits the active transaction of h, retrying retryable failures
// per the retry policy. A commit that still fails leaves the record Failed
// and returns ErrCommitFailed.
func (c *Coordinator) Commit(ctx context.Context, h *session.Handle) error {
	r, ok := c.Current(h)
	if !ok {
		return errors.Wrapf(ErrNoActiveTransaction, "commit on session %s", h.ID())
	}

	var (
		attempt int
		last    error
		start   = time.Now()
	)

	commit := func() error {
		attempt++
		c.metrics.CommitAttempt()

		err := h.Driver().CommitTransaction(ctx)
		switch {
		case err == nil:
			return nil
		case attempt > 1 && driver.IsCommittedAlready(err):
			return nil
		}

		last = err
		if !driver.IsRetryableCommit(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warnf("transaction %s: commit attempt %d failed, retry in %s: %s", r.id, attempt, wait, err)
	}

	err := backoff.RetryNotify(commit, c.policy.backOff(ctx), notify)
	c.metrics.Commit(time.Since(start))
	h.Detach(r)

	if err == nil {
		if h.Causal() {
			sess := h.Driver()
			h.Advance(sess.OperationTime(), sess.ClusterTime())
		}
		r.setState(Committed)
		c.metrics.Transaction(metrics.OutcomeCommitted)
		c.log.Debugf("session %s: transaction %s committed after %d attempt(s)", h.ID(), r.id, attempt)
		return nil
	}

	r.setState(Failed)
	c.metrics.Transaction(metrics.OutcomeFailed)

	cause := err
	if ctxErr := ctx.Err(); ctxErr != nil && last != nil && !errors.Is(last, ctxErr) {
		cause = errors.Join(last, ctxErr)
	}
	if driver.HasLabel(last, driver.LabelTransientTransaction) {
		cause = errors.Mark(cause, ErrTransientTransaction)
	}

	c.log.Error(errors.WrapFailf(cause, "commit transaction %s after %d attempt(s)", r.id, attempt))
	return errors.Mark(cause, ErrCommitFailed)
}

// Abort rolls back the active transaction of h. A driver error is logged
// and dropped.
func (c *Coordinator) Abort(ctx context.Context, h *session.Handle) error {
	r, ok := c.Current(h)
	if !ok {
		return errors.Wrapf(ErrNoActiveTransaction, "abort on session %s", h.ID())
	}

	if err := h.Driver().AbortTransaction(ctx); err != nil {
		c.log.Warn(errors.WrapFailf(err, "abort transaction %s", r.id))
	}

	h.Detach(r)
	r.setState(Aborted)
	c.metrics.Transaction(metrics.OutcomeAborted)
	c.log.Debugf("session %s: transaction %s aborted", h.ID(), r.id)
	return nil
}
