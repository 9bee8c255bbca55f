// Package proxy routes collection and database calls to the session bound
// to the caller's scope. A call made outside any scope goes to the driver
// as is; results are never altered, only the overload changes.
package proxy

import (
	"context"
	"fmt"

	"github.com/nikmy/mongotx/internal/causal"
	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/metrics"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
)

// Descriptor describes one outgoing call.
type Descriptor struct {
	Op        string
	Namespace string
	Payload   any
	Write     bool
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s", d.Op, d.Namespace)
}

type Router struct {
	resolver Resolver
	tracker  *causal.Tracker
	metrics  *metrics.Metrics
	log      logger.Logger
}

func NewRouter(resolver Resolver, tracker *causal.Tracker, m *metrics.Metrics, log logger.Logger) *Router {
	return &Router{
		resolver: resolver,
		tracker:  tracker,
		metrics:  m,
		log:      log.With("proxy"),
	}
}

func (r *Router) Collection(coll driver.Collection) *Collection {
	return &Collection{
		coll:   coll,
		router: r,
		ns:     coll.Database() + "." + coll.Name(),
	}
}

func (r *Router) Database(db driver.Database) *Database {
	return &Database{db: db, router: r}
}

// resolve picks the session for d, nil when the call goes without one.
func (r *Router) resolve(ctx context.Context, d Descriptor) (*session.Handle, error) {
	h, ok, err := r.resolver.Resolve(ctx)
	if err != nil {
		return nil, errors.WrapFailf(err, "resolve session for %s", d)
	}

	if !ok {
		r.metrics.Operation(d.Op, metrics.RoutePlain)
		r.log.Debugf("%s: no session", d)
		return nil, nil
	}

	r.metrics.Operation(d.Op, metrics.RouteSession)
	r.log.Debugf("%s: session %s", d, h.ID())
	return h, nil
}

func (r *Router) operations(ctx context.Context, coll driver.Collection, d Descriptor) (Operations, error) {
	h, err := r.resolve(ctx, d)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return Plain(coll), nil
	}
	return Qualified(coll, h, r.tracker), nil
}
