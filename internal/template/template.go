// Package template is the entry point for application data access:
// collections and databases whose operations pick up the session of the
// current scope, and helpers that run work with a session or inside a
// transaction.
package template

import (
	"context"

	"github.com/nikmy/mongotx/internal/causal"
	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/proxy"
	"github.com/nikmy/mongotx/internal/scope"
	"github.com/nikmy/mongotx/internal/txmanager"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

var ErrNoTransactions = errors.Error("template has no transaction manager")

type config struct {
	txm       *txmanager.Manager
	resolvers []proxy.Resolver
	metrics   *metrics.Metrics
	log       logger.Logger
}

type Option func(*config)

// WithTransactions lets the template run transactions through m and
// resolve sessions m synchronizes with outer transactions. The template
// shares the scope store of m.
func WithTransactions(m *txmanager.Manager) Option {
	return func(c *config) {
		c.txm = m
	}
}

// WithResolver consults r after the scope store.
func WithResolver(r proxy.Resolver) Option {
	return func(c *config) {
		c.resolvers = append(c.resolvers, r)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

type Template struct {
	client  driver.Client
	db      driver.Database
	store   *scope.Store
	router  *proxy.Router
	txm     *txmanager.Manager
	metrics *metrics.Metrics
	log     logger.Logger
}

func New(client driver.Client, database string, opts ...Option) *Template {
	cfg := config{log: logger.NewStub()}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := scope.NewStore()
	chain := proxy.Chain{store}
	if cfg.txm != nil {
		store = cfg.txm.Store()
		chain = proxy.Chain{store, cfg.txm.Synchronizer()}
	}
	chain = append(chain, cfg.resolvers...)

	return &Template{
		client:  client,
		db:      client.Database(database),
		store:   store,
		router:  proxy.NewRouter(chain, causal.New(cfg.log), cfg.metrics, cfg.log),
		txm:     cfg.txm,
		metrics: cfg.metrics,
		log:     cfg.log.With("template"),
	}
}

// Collection returns the named collection with session routing.
func (t *Template) Collection(name string) *proxy.Collection {
	return t.router.Collection(t.db.Collection(name))
}

func (t *Template) Database() *proxy.Database {
	return t.router.Database(t.db)
}

// NativeCollection returns the driver collection as is. Calls on it run
// without a session unless the caller binds one explicitly.
func (t *Template) NativeCollection(name string) driver.Collection {
	return t.db.Collection(name)
}

// NativeDatabase returns the driver database as is, see NativeCollection.
func (t *Template) NativeDatabase() driver.Database {
	return t.db
}

func (t *Template) Store() *scope.Store {
	return t.store
}

// InTransaction runs body in a transaction on a session of its own.
func (t *Template) InTransaction(ctx context.Context, body func(ctx context.Context, t *Template) error, opts ...txmanager.ExecOption) error {
	if t.txm == nil {
		return ErrNoTransactions
	}
	return t.txm.Execute(ctx, func(ctx context.Context) error {
		return body(ctx, t)
	}, opts...)
}
