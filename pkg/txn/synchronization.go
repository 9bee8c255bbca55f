package txn

import (
	"context"
	"sync"
	"sync/atomic"
)

type CompletionStatus int

const (
	StatusCommitted CompletionStatus = iota
	StatusRolledBack
	StatusUnknown
)

func (s CompletionStatus) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Synchronization takes part in the completion of a transaction it did not
// start.
type Synchronization interface {
	// BeforeCommit runs before the resource commit. An error rolls the
	// transaction back.
	BeforeCommit(ctx context.Context, readOnly bool) error

	// BeforeCompletion runs before commit or rollback.
	BeforeCompletion(ctx context.Context)

	// AfterCompletion runs once the outcome is known.
	AfterCompletion(ctx context.Context, status CompletionStatus)
}

type stateKey struct{}

// state is shared by every participant of one transaction.
type state struct {
	def    Definition
	actual bool

	rollbackOnly atomic.Bool
	completed    atomic.Bool

	mu        sync.Mutex
	syncs     []Synchronization
	resources map[any]any
}

// stateFrom returns the transaction ctx runs in, nil once it completed.
func stateFrom(ctx context.Context) *state {
	st, _ := ctx.Value(stateKey{}).(*state)
	if st == nil || st.completed.Load() {
		return nil
	}
	return st
}

func (s *state) synchronizations() []Synchronization {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Synchronization(nil), s.syncs...)
}

// IsActive reports whether synchronizations can be registered with ctx.
func IsActive(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

// IsActual reports whether ctx runs inside a real transaction rather than
// an empty Supports/Never scope.
func IsActual(ctx context.Context) bool {
	st := stateFrom(ctx)
	return st != nil && st.actual
}

// Current returns the definition of the transaction ctx runs in.
func Current(ctx context.Context) (Definition, bool) {
	st := stateFrom(ctx)
	if st == nil {
		return Definition{}, false
	}
	return st.def, true
}

func RegisterSynchronization(ctx context.Context, s Synchronization) error {
	st := stateFrom(ctx)
	if st == nil {
		return ErrNoSynchronization
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.syncs = append(st.syncs, s)
	return nil
}

// BindResource attaches value to the transaction ctx runs in. It lives
// until the transaction completes.
func BindResource(ctx context.Context, key, value any) error {
	st := stateFrom(ctx)
	if st == nil {
		return ErrNoSynchronization
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.resources == nil {
		st.resources = make(map[any]any)
	}
	st.resources[key] = value
	return nil
}

// UnbindResource detaches the value bound under key, if any.
func UnbindResource(ctx context.Context, key any) {
	st := stateFrom(ctx)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.resources, key)
}

func ResourceFor(ctx context.Context, key any) (any, bool) {
	st := stateFrom(ctx)
	if st == nil {
		return nil, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	v, ok := st.resources[key]
	return v, ok
}
