package mongodrv

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

var ErrConnect = errors.Error("mongo is unreachable")

type dialFunc func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error)

// Connect dials the deployment described by cfg and pings the primary,
// retrying cfg.Connect.Attempts times.
func Connect(ctx context.Context, cfg Config, log logger.Logger) (*Client, error) {
	return connect(ctx, cfg, log, dial)
}

func dial(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	err = client.Ping(ctx, readpref.Primary())
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

func connect(ctx context.Context, cfg Config, log logger.Logger, dial dialFunc) (*Client, error) {
	log = log.With("mongo")
	opts := clientOptions(cfg, log)
	attempts := max(cfg.Connect.Attempts, 1)

	var (
		client  *mongo.Client
		attempt int
		lastErr error
	)

	op := func() error {
		attempt++
		c, err := dial(ctx, opts)
		if err != nil {
			lastErr = err
			return err
		}
		client = c
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warnf("connect attempt %d/%d failed, retry in %s: %s", attempt, attempts, wait, err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Connect.Interval), uint64(attempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(op, b, notify)
	if err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = errors.Join(lastErr, err)
		}
		return nil, errors.Join(ErrConnect, err)
	}

	return &Client{c: client}, nil
}

func clientOptions(cfg Config, log logger.Logger) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(cfg.URL).
		SetTimeout(cfg.Timeout)

	if cfg.Auth.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		})
	}
	if cfg.Pool.MaxSize != 0 {
		opts.SetMaxPoolSize(cfg.Pool.MaxSize)
	}
	if cfg.Pool.MinSize != 0 {
		opts.SetMinPoolSize(cfg.Pool.MinSize)
	}
	if cfg.LogCommands {
		opts.SetMonitor(commandMonitor(log))
	}
	return opts
}

func commandMonitor(log logger.Logger) *event.CommandMonitor {
	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			log.Debugf("command %s #%d started on %s", e.CommandName, e.RequestID, e.DatabaseName)
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			log.Debugf("command %s #%d succeeded in %s", e.CommandName, e.RequestID, e.Duration)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			log.Debugf("command %s #%d failed in %s: %s", e.CommandName, e.RequestID, e.Duration, e.Failure)
		},
	}
}

// Client adapts *mongo.Client to driver.Client.
type Client struct {
	c *mongo.Client
}

// Native exposes the wrapped driver client.
func (c *Client) Native() *mongo.Client {
	return c.c
}

func (c *Client) StartSession(ctx context.Context, opts driver.SessionOptions) (driver.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessOpts := options.Session().SetCausalConsistency(opts.CausalConsistency)
	if opts.ReadConcern != nil {
		sessOpts.SetDefaultReadConcern(opts.ReadConcern)
	}
	if opts.WriteConcern != nil {
		sessOpts.SetDefaultWriteConcern(opts.WriteConcern)
	}
	if opts.ReadPreference != nil {
		sessOpts.SetDefaultReadPreference(opts.ReadPreference)
	}

	s, err := c.c.StartSession(sessOpts)
	if err != nil {
		return nil, errors.WrapFail(err, "start mongo session")
	}

	return &session{s: s}, nil
}

func (c *Client) Database(name string) driver.Database {
	return &database{db: c.c.Database(name)}
}

func (c *Client) Ping(ctx context.Context) error {
	return errors.WrapFail(c.c.Ping(ctx, readpref.Primary()), "ping mongo")
}

func (c *Client) Disconnect(ctx context.Context) error {
	return errors.WrapFail(c.c.Disconnect(ctx), "close mongo db connection")
}

type database struct {
	db *mongo.Database
}

func (d *database) Name() string {
	return d.db.Name()
}

func (d *database) Collection(name string) driver.Collection {
	return &collection{Collection: d.db.Collection(name)}
}

func (d *database) RunCommand(ctx context.Context, cmd any) *mongo.SingleResult {
	return d.db.RunCommand(ctx, cmd)
}

// collection reuses every operation of *mongo.Collection as is.
type collection struct {
	*mongo.Collection
}

func (c *collection) Database() string {
	return c.Collection.Database().Name()
}

type session struct {
	s mongo.Session
}

func (s *session) ID() bson.Raw {
	return s.s.ID()
}

func (s *session) StartTransaction(opts *options.TransactionOptions) error {
	if opts == nil {
		return s.s.StartTransaction()
	}
	return s.s.StartTransaction(opts)
}

func (s *session) CommitTransaction(ctx context.Context) error {
	return s.s.CommitTransaction(ctx)
}

func (s *session) AbortTransaction(ctx context.Context) error {
	return s.s.AbortTransaction(ctx)
}

func (s *session) EndSession(ctx context.Context) {
	s.s.EndSession(ctx)
}

func (s *session) Bind(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, s.s)
}

func (s *session) OperationTime() *primitive.Timestamp {
	return s.s.OperationTime()
}

func (s *session) ClusterTime() bson.Raw {
	return s.s.ClusterTime()
}

func (s *session) AdvanceOperationTime(ts *primitive.Timestamp) error {
	return s.s.AdvanceOperationTime(ts)
}

func (s *session) AdvanceClusterTime(ct bson.Raw) error {
	return s.s.AdvanceClusterTime(ct)
}
