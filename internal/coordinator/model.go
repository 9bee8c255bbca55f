package coordinator

import (
	"sync"
	"time"

	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
)

var (
	ErrTransactionInProgress = errors.Error("transaction already in progress")
	ErrNoActiveTransaction   = errors.Error("no active transaction")
	ErrCommitFailed          = errors.Error("commit failed")
	ErrTransientTransaction  = errors.Error("transient transaction error")
)

type State int

const (
	Inactive State = iota
	Active
	Committed
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal states are never left.
func (s State) Terminal() bool {
	return s == Committed || s == Aborted || s == Failed
}

// Record is one transaction on one session. Only the Coordinator changes
// its state.
type Record struct {
	id        string
	handle    *session.Handle
	options   session.TxnOptions
	startedAt time.Time

	mu    sync.Mutex
	state State
}

var _ session.Transaction = (*Record)(nil)

func (r *Record) ID() string {
	return r.id
}

func (r *Record) Handle() *session.Handle {
	return r.handle
}

func (r *Record) Options() session.TxnOptions {
	return r.options
}

func (r *Record) StartedAt() time.Time {
	return r.startedAt
}

func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// SessionEnded moves an active record to Aborted: the server rolls the
// transaction back when its session ends.
func (r *Record) SessionEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Active {
		r.state = Aborted
	}
}

func (r *Record) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = s
}
