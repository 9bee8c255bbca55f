// Package session holds the client-side view of one logical server session:
// its identity, causal consistency state and the transaction it runs.
package session

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/pkg/errors"
)

var ErrSessionClosed = errors.Error("session is closed")

type TxnOptions struct {
	ReadConcern    *readconcern.ReadConcern
	WriteConcern   *writeconcern.WriteConcern
	ReadPreference *readpref.ReadPref
	MaxCommitTime  time.Duration
}

// Driver converts o to driver options, nil when nothing is set.
func (o TxnOptions) Driver() *options.TransactionOptions {
	if o == (TxnOptions{}) {
		return nil
	}

	opts := options.Transaction()
	if o.ReadConcern != nil {
		opts.SetReadConcern(o.ReadConcern)
	}
	if o.WriteConcern != nil {
		opts.SetWriteConcern(o.WriteConcern)
	}
	if o.ReadPreference != nil {
		opts.SetReadPreference(o.ReadPreference)
	}
	if o.MaxCommitTime > 0 {
		opts.SetMaxCommitTime(&o.MaxCommitTime)
	}
	return opts
}

// Merge returns o with the fields set in override replaced.
func (o TxnOptions) Merge(override TxnOptions) TxnOptions {
	if override.ReadConcern != nil {
		o.ReadConcern = override.ReadConcern
	}
	if override.WriteConcern != nil {
		o.WriteConcern = override.WriteConcern
	}
	if override.ReadPreference != nil {
		o.ReadPreference = override.ReadPreference
	}
	if override.MaxCommitTime > 0 {
		o.MaxCommitTime = override.MaxCommitTime
	}
	return o
}

type Options struct {
	CausalConsistency bool

	ReadConcern    *readconcern.ReadConcern
	WriteConcern   *writeconcern.WriteConcern
	ReadPreference *readpref.ReadPref

	// Transaction holds defaults for transactions started on the session.
	Transaction TxnOptions

	// CausalFrom seeds the new session with the causal state of another
	// one, so that its first read observes everything the other has seen.
	CausalFrom *Handle
}

// Transaction is what a handle knows about the transaction it runs.
type Transaction interface {
	ID() string
	// SessionEnded is called when the handle closes while the transaction
	// is still attached. The server aborts it together with the session.
	SessionEnded()
}

type Handle struct {
	id   string
	sess driver.Session
	opts Options

	mu            sync.Mutex
	operationTime *primitive.Timestamp
	clusterTime   bson.Raw
	clusterTS     primitive.Timestamp
	txn           Transaction

	closed atomic.Bool
}

// Open starts a server session. It costs one round trip.
func Open(ctx context.Context, client driver.Client, opts Options) (*Handle, error) {
	sess, err := client.StartSession(ctx, driver.SessionOptions{
		CausalConsistency: opts.CausalConsistency,
		ReadConcern:       opts.ReadConcern,
		WriteConcern:      opts.WriteConcern,
		ReadPreference:    opts.ReadPreference,
	})
	if err != nil {
		return nil, errors.WrapFail(err, "start session")
	}

	return Wrap(sess, opts), nil
}

// Wrap adopts a session started elsewhere.
func Wrap(sess driver.Session, opts Options) *Handle {
	h := &Handle{
		id:   sessionID(sess.ID()),
		sess: sess,
		opts: opts,
	}

	if from := opts.CausalFrom; from != nil {
		h.Advance(from.OperationTime(), from.ClusterTime())
	}
	h.opts.CausalFrom = nil

	return h
}

func sessionID(raw bson.Raw) string {
	v, err := raw.LookupErr("id")
	if err != nil {
		return uuid.NewString()
	}

	_, data, ok := v.BinaryOK()
	if !ok {
		return uuid.NewString()
	}

	if id, err := uuid.FromBytes(data); err == nil {
		return id.String()
	}
	return hex.EncodeToString(data)
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Causal() bool {
	return h.opts.CausalConsistency
}

func (h *Handle) Options() Options {
	return h.opts
}

// Driver exposes the underlying driver session.
func (h *Handle) Driver() driver.Session {
	return h.sess
}

// Bind returns ctx routed through this session.
func (h *Handle) Bind(ctx context.Context) context.Context {
	return h.sess.Bind(ctx)
}

func (h *Handle) IsClosed() bool {
	return h.closed.Load()
}

// Close ends the server session. Closing twice is an error. Cursors
// obtained through the session must be drained before Close.
func (h *Handle) Close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}

	h.mu.Lock()
	t := h.txn
	h.txn = nil
	h.mu.Unlock()

	h.sess.EndSession(ctx)
	if t != nil {
		t.SessionEnded()
	}
	return nil
}

func (h *Handle) OperationTime() *primitive.Timestamp {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.operationTime == nil {
		return nil
	}
	ts := *h.operationTime
	return &ts
}

func (h *Handle) ClusterTime() bson.Raw {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.clusterTime
}

// MinReadTime is the afterClusterTime every read on a causally
// consistent session must satisfy, nil otherwise.
func (h *Handle) MinReadTime() *primitive.Timestamp {
	if !h.Causal() {
		return nil
	}
	return h.OperationTime()
}

// Advance merges acknowledged times into the handle. Each value replaces
// the stored one only when strictly greater. Reports whether anything
// changed.
func (h *Handle) Advance(opTime *primitive.Timestamp, clusterTime bson.Raw) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	advanced := false
	if driver.After(opTime, h.operationTime) {
		ts := *opTime
		h.operationTime = &ts
		advanced = true
	}

	if ts, ok := driver.ClusterTimestamp(clusterTime); ok {
		if h.clusterTime == nil || primitive.CompareTimestamp(ts, h.clusterTS) > 0 {
			h.clusterTime = append(bson.Raw(nil), clusterTime...)
			h.clusterTS = ts
			advanced = true
		}
	}

	return advanced
}

// Transaction returns the active transaction, nil if there is none.
func (h *Handle) Transaction() Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.txn
}

// Attach makes t the active transaction. It fails when another one is
// already active.
func (h *Handle) Attach(t Transaction) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.txn != nil {
		return false
	}
	h.txn = t
	return true
}

// Detach clears t if it is still the active transaction.
func (h *Handle) Detach(t Transaction) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.txn == t {
		h.txn = nil
	}
}

// Supplier hands out a session for one unit of work.
type Supplier func(ctx context.Context) (*Handle, error)

// Opener returns a Supplier that starts a new session on every call.
func Opener(client driver.Client, opts Options) Supplier {
	return func(ctx context.Context) (*Handle, error) {
		return Open(ctx, client, opts)
	}
}
