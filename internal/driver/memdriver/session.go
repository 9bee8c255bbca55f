package memdriver

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/pkg/errors"
)

var (
	ErrTransactionInProgress = errors.Error("memdriver: transaction already in progress")
	ErrNoTransaction         = errors.Error("memdriver: no transaction started")
)

type sessionKey struct{}

type pendingWrite struct {
	ns    string
	apply mutation
}

// session fields are guarded by the server mutex.
type session struct {
	srv    *Server
	id     uuid.UUID
	causal bool

	operationTime *primitive.Timestamp
	clusterTime   primitive.Timestamp
	hasCluster    bool

	inTxn   bool
	pending []pendingWrite
	ended   bool
}

func newSession(srv *Server, causal bool) *session {
	return &session{srv: srv, id: uuid.New(), causal: causal}
}

func (s *session) ID() bson.Raw {
	raw, _ := bson.Marshal(bson.D{{Key: "id", Value: primitive.Binary{Subtype: 4, Data: s.id[:]}}})
	return raw
}

func (s *session) StartTransaction(*options.TransactionOptions) error {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	switch {
	case s.ended:
		return ErrSessionEnded
	case s.inTxn:
		return ErrTransactionInProgress
	}

	s.inTxn = true
	s.pending = nil
	return nil
}

func (s *session) CommitTransaction(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	switch {
	case s.ended:
		return ErrSessionEnded
	case !s.inTxn:
		return ErrNoTransaction
	}

	s.srv.stats.CommitAttempts++
	if len(s.srv.commitFailures) > 0 {
		err := s.srv.commitFailures[0]
		s.srv.commitFailures = s.srv.commitFailures[1:]
		return err
	}

	ts := s.srv.advance()
	for _, w := range s.pending {
		if _, err := w.apply(s.srv.table(w.ns), ts); err != nil {
			return errors.WrapFail(err, "apply transaction write")
		}
	}

	s.inTxn = false
	s.pending = nil
	s.srv.stats.Commits++
	s.observe(ts)
	return nil
}

func (s *session) AbortTransaction(context.Context) error {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	switch {
	case s.ended:
		return ErrSessionEnded
	case !s.inTxn:
		return ErrNoTransaction
	}

	s.abort()
	return nil
}

func (s *session) abort() {
	s.inTxn = false
	s.pending = nil
	s.srv.stats.Aborts++
}

func (s *session) EndSession(context.Context) {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	if s.ended {
		return
	}
	if s.inTxn {
		s.abort()
	}
	s.ended = true
	s.srv.stats.SessionsEnded++
}

func (s *session) OperationTime() *primitive.Timestamp {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	if s.operationTime == nil {
		return nil
	}
	ts := *s.operationTime
	return &ts
}

func (s *session) ClusterTime() bson.Raw {
	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	if !s.hasCluster {
		return nil
	}
	return driver.NewClusterTime(s.clusterTime)
}

func (s *session) AdvanceOperationTime(ts *primitive.Timestamp) error {
	if ts == nil {
		return errors.Error("memdriver: nil operation time")
	}

	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	if driver.After(ts, s.operationTime) {
		next := *ts
		s.operationTime = &next
	}
	return nil
}

func (s *session) AdvanceClusterTime(ct bson.Raw) error {
	ts, ok := driver.ClusterTimestamp(ct)
	if !ok {
		return errors.Error("memdriver: malformed cluster time")
	}

	s.srv.mu.Lock()
	defer s.srv.mu.Unlock()

	s.advanceCluster(ts)
	return nil
}

func (s *session) Bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func (s *session) advanceCluster(ts primitive.Timestamp) {
	if !s.hasCluster || primitive.CompareTimestamp(ts, s.clusterTime) > 0 {
		s.clusterTime = ts
		s.hasCluster = true
	}
}

// observe records the server acknowledgment of an operation served at ts.
func (s *session) observe(ts primitive.Timestamp) {
	if driver.After(&ts, s.operationTime) {
		s.operationTime = &ts
	}
	s.advanceCluster(s.srv.now())
}

// afterClusterTime is the read concern a causally consistent session
// attaches to reads.
func (s *session) afterClusterTime() *primitive.Timestamp {
	if !s.causal {
		return nil
	}
	return s.operationTime
}
