// Package causal keeps the causal consistency state of a session handle in
// step with the driver session it wraps.
package causal

import (
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

type Tracker struct {
	log logger.Logger
}

func New(log logger.Logger) *Tracker {
	return &Tracker{log: log.With("causal")}
}

// Prepare pushes the times stored in h into its driver session, so the next
// operation carries afterClusterTime of at least h.MinReadTime().
func (t *Tracker) Prepare(h *session.Handle) error {
	if !h.Causal() {
		return nil
	}

	sess := h.Driver()
	if opTime := h.OperationTime(); opTime != nil {
		if err := sess.AdvanceOperationTime(opTime); err != nil {
			return errors.WrapFail(err, "advance operation time")
		}
	}
	if ct := h.ClusterTime(); ct != nil {
		if err := sess.AdvanceClusterTime(ct); err != nil {
			return errors.WrapFail(err, "advance cluster time")
		}
	}
	return nil
}

// Observe merges the times acknowledged by the server for the last
// operation into h. It reads what the driver already parsed from the
// response and never talks to the server.
func (t *Tracker) Observe(h *session.Handle) {
	if !h.Causal() {
		return
	}

	sess := h.Driver()
	opTime := sess.OperationTime()
	if h.Advance(opTime, sess.ClusterTime()) && opTime != nil {
		t.log.Debugf("session %s: operation time %d.%d", h.ID(), opTime.T, opTime.I)
	}
}
