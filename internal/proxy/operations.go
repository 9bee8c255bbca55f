package proxy

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongotx/internal/causal"
	"github.com/nikmy/mongotx/internal/driver"
	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
)

// Operations is the collection surface the proxy routes. It has two
// implementations: one forwarding calls as is and one running them on a
// session.
type Operations interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	Distinct(ctx context.Context, field string, filter any, opts ...*options.DistinctOptions) ([]any, error)
	Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error)

	InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)

	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
}

// Plain forwards every call to coll unchanged.
func Plain(coll driver.Collection) Operations {
	return plainOps{coll}
}

type plainOps struct {
	driver.Collection
}

// Qualified runs every call on coll through h.
func Qualified(coll driver.Collection, h *session.Handle, tracker *causal.Tracker) Operations {
	return sessionOps{
		coll:    coll,
		binding: binding{h: h, tracker: tracker},
	}
}

type binding struct {
	h       *session.Handle
	tracker *causal.Tracker
}

func (b binding) bind(ctx context.Context) (context.Context, error) {
	if b.h.IsClosed() {
		return nil, errors.Wrapf(session.ErrSessionClosed, "session %s", b.h.ID())
	}
	if err := b.tracker.Prepare(b.h); err != nil {
		return nil, err
	}
	return b.h.Bind(ctx), nil
}

func (b binding) observe() {
	b.tracker.Observe(b.h)
}

func errorResult(err error) *mongo.SingleResult {
	return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
}

type sessionOps struct {
	binding
	coll driver.Collection
}

func (o sessionOps) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.Find(ctx, filter, opts...)
}

func (o sessionOps) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	ctx, err := o.bind(ctx)
	if err != nil {
		return errorResult(err)
	}
	defer o.observe()

	return o.coll.FindOne(ctx, filter, opts...)
}

func (o sessionOps) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return 0, err
	}
	defer o.observe()

	return o.coll.CountDocuments(ctx, filter, opts...)
}

func (o sessionOps) Distinct(ctx context.Context, field string, filter any, opts ...*options.DistinctOptions) ([]any, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.Distinct(ctx, field, filter, opts...)
}

func (o sessionOps) Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.Aggregate(ctx, pipeline, opts...)
}

func (o sessionOps) InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.InsertOne(ctx, doc, opts...)
}

func (o sessionOps) InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.InsertMany(ctx, docs, opts...)
}

func (o sessionOps) UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.UpdateOne(ctx, filter, update, opts...)
}

func (o sessionOps) UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.UpdateMany(ctx, filter, update, opts...)
}

func (o sessionOps) ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (o sessionOps) DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.DeleteOne(ctx, filter, opts...)
}

func (o sessionOps) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	ctx, err := o.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer o.observe()

	return o.coll.DeleteMany(ctx, filter, opts...)
}

func (o sessionOps) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	ctx, err := o.bind(ctx)
	if err != nil {
		return errorResult(err)
	}
	defer o.observe()

	return o.coll.FindOneAndUpdate(ctx, filter, update, opts...)
}

func (o sessionOps) FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	ctx, err := o.bind(ctx)
	if err != nil {
		return errorResult(err)
	}
	defer o.observe()

	return o.coll.FindOneAndDelete(ctx, filter, opts...)
}
