// Package memdriver is an in-process stand-in for a MongoDB replica set:
// one primary, one secondary that can be held behind, sessions with
// causal consistency, multi-document transactions and commit fault
// injection. It implements the driver interfaces so that the session
// layer can be exercised without a deployment.
package memdriver

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/pkg/errors"
)

var (
	ErrSessionEnded   = errors.Error("memdriver: ended session was used")
	ErrForeignSession = errors.Error("memdriver: session belongs to another server")
	ErrDisconnected   = errors.Error("memdriver: client is disconnected")
)

// Stats counts session-level events seen by the server.
type Stats struct {
	SessionsStarted int
	SessionsEnded   int
	Commits         int
	CommitAttempts  int
	Aborts          int
}

type Server struct {
	mu sync.Mutex

	epoch uint32
	tick  uint32

	tables map[string]*table

	secondaryReads   bool
	secondaryApplied primitive.Timestamp

	commitFailures []error
	stats          Stats
	disconnected   bool
}

func NewServer() *Server {
	return &Server{
		epoch:  uint32(time.Now().Unix()),
		tables: make(map[string]*table),
	}
}

// Client returns a driver.Client talking to this server.
func (s *Server) Client() driver.Client {
	return &client{srv: s}
}

// SetSecondaryReads routes every non-transactional read to the secondary
// and freezes its replication at the current cluster time. Reads carrying
// afterClusterTime make the secondary catch up to that time first.
func (s *Server) SetSecondaryReads(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secondaryReads = on
	s.secondaryApplied = s.now()
}

// FailCommits makes the next len(errs) commitTransaction calls fail with
// the given errors, in order. The transaction stays open so the commit
// can be retried.
func (s *Server) FailCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitFailures = append(s.commitFailures, errs...)
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// ClusterTime returns the current cluster time of the primary.
func (s *Server) ClusterTime() primitive.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.now()
}

// TransientError is a commit failure labeled TransientTransactionError.
func TransientError() error {
	return mongo.CommandError{
		Code:    112,
		Name:    "WriteConflict",
		Message: "simulated write conflict",
		Labels:  []string{driver.LabelTransientTransaction},
	}
}

// UnknownCommitResultError is a commit failure whose outcome is unknown.
func UnknownCommitResultError() error {
	return mongo.CommandError{
		Code:    50,
		Name:    "MaxTimeMSExpired",
		Message: "simulated commit timeout",
		Labels:  []string{driver.LabelUnknownCommitResult},
	}
}

func (s *Server) now() primitive.Timestamp {
	return primitive.Timestamp{T: s.epoch, I: s.tick}
}

func (s *Server) advance() primitive.Timestamp {
	s.tick++
	return s.now()
}

func (s *Server) table(ns string) *table {
	t, ok := s.tables[ns]
	if !ok {
		t = &table{}
		s.tables[ns] = t
	}
	return t
}

func (s *Server) sessionFrom(ctx context.Context) (*session, error) {
	sess, ok := ctx.Value(sessionKey{}).(*session)
	if !ok {
		return nil, nil
	}
	if sess.srv != s {
		return nil, ErrForeignSession
	}
	if sess.ended {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

func duplicateKey(id any) error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{
			Code:    11000,
			Message: "E11000 duplicate key error, _id: " + bsonString(id),
		}},
	}
}

func bsonString(v any) string {
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return "?"
	}
	return bson.Raw(raw).Lookup("v").String()
}

type client struct {
	srv *Server
}

func (c *client) StartSession(ctx context.Context, opts driver.SessionOptions) (driver.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	if c.srv.disconnected {
		return nil, ErrDisconnected
	}

	c.srv.stats.SessionsStarted++
	return newSession(c.srv, opts.CausalConsistency), nil
}

func (c *client) Database(name string) driver.Database {
	return &database{srv: c.srv, name: name}
}

func (c *client) Ping(ctx context.Context) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	if c.srv.disconnected {
		return ErrDisconnected
	}
	return ctx.Err()
}

func (c *client) Disconnect(context.Context) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	c.srv.disconnected = true
	return nil
}

type database struct {
	srv  *Server
	name string
}

func (d *database) Name() string {
	return d.name
}

func (d *database) Collection(name string) driver.Collection {
	return &collection{srv: d.srv, db: d.name, name: name}
}

func (d *database) RunCommand(ctx context.Context, cmd any) *mongo.SingleResult {
	m, err := toM(cmd)
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}

	if _, ok := m["ping"]; !ok {
		return mongo.NewSingleResultFromDocument(bson.D{}, errors.Wrap(ErrUnsupported, "command"), nil)
	}

	d.srv.mu.Lock()
	defer d.srv.mu.Unlock()

	if d.srv.disconnected {
		return mongo.NewSingleResultFromDocument(bson.D{}, ErrDisconnected, nil)
	}

	sess, err := d.srv.sessionFrom(ctx)
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}
	if sess != nil {
		sess.observe(d.srv.now())
	}

	return mongo.NewSingleResultFromDocument(bson.D{{Key: "ok", Value: 1}}, nil, nil)
}
