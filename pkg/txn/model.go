package txn

import (
	"context"
	"time"

	"github.com/nikmy/mongotx/pkg/errors"
)

var (
	ErrNoTransaction       = errors.Error("no existing transaction found for propagation 'mandatory'")
	ErrExistingTransaction = errors.Error("existing transaction found for propagation 'never'")
	ErrCompleted           = errors.Error("transaction is already completed")
	ErrRolledBack          = errors.Error("transaction rolled back because it has been marked as rollback-only")
	ErrNoSynchronization   = errors.Error("transaction synchronization is not active")
)

// Resource is a transactional resource driven by a Manager. The resource
// keeps its own transaction in the context returned by BeginResource and
// finds it there in the other calls.
type Resource interface {
	// Existing reports whether ctx already carries a transaction of this
	// resource.
	Existing(ctx context.Context) bool

	// BeginResource starts a resource transaction. With RequiresNew it must
	// start a new one even if ctx carries another.
	BeginResource(ctx context.Context, def Definition) (context.Context, error)
	CommitResource(ctx context.Context) error
	RollbackResource(ctx context.Context) error

	// CleanupResource runs once after commit or rollback, whatever their
	// outcome.
	CleanupResource(ctx context.Context)
}

type Propagation int

const (
	// Required joins the current transaction or starts a new one.
	Required Propagation = iota

	// RequiresNew always starts a new transaction, hiding the current one
	// until it completes.
	RequiresNew

	// Supports joins the current transaction or runs without one.
	Supports

	// Mandatory joins the current transaction, fails if there is none.
	Mandatory

	// Never fails if there is a current transaction.
	Never
)

func (p Propagation) String() string {
	switch p {
	case Required:
		return "required"
	case RequiresNew:
		return "requires_new"
	case Supports:
		return "supports"
	case Mandatory:
		return "mandatory"
	case Never:
		return "never"
	default:
		return "unknown"
	}
}

type Definition struct {
	Name        string
	Propagation Propagation
	Isolation   IsolationLevel
	Consistency ConsistencyModel
	ReadOnly    bool

	// Timeout bounds the whole transaction when positive.
	Timeout time.Duration
}

type ConsistencyModel int

const (
	// CausalConsistency means that
	// all logically depending operations
	// are sequential consistent
	CausalConsistency ConsistencyModel = iota

	// SequentialConsistency means that
	// any concurrent operations execution
	// result is equivalent to some
	// sequential execution of those
	// operations
	SequentialConsistency

	// Linearizable means that
	// operations order is consistent
	// with real time order
	Linearizable
)

type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	SnapshotIsolation
	Serializable
)
