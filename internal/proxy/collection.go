package proxy

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongotx/internal/driver"
)

// Collection picks Plain or Qualified operations on every call.
type Collection struct {
	coll   driver.Collection
	router *Router
	ns     string
}

var _ Operations = (*Collection)(nil)

func (c *Collection) Name() string {
	return c.coll.Name()
}

func (c *Collection) Namespace() string {
	return c.ns
}

func (c *Collection) describe(op string, payload any, write bool) Descriptor {
	return Descriptor{Op: op, Namespace: c.ns, Payload: payload, Write: write}
}

func (c *Collection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("find", filter, false))
	if err != nil {
		return nil, err
	}
	return ops.Find(ctx, filter, opts...)
}

func (c *Collection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	ops, err := c.router.operations(ctx, c.coll, c.describe("findOne", filter, false))
	if err != nil {
		return errorResult(err)
	}
	return ops.FindOne(ctx, filter, opts...)
}

func (c *Collection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("countDocuments", filter, false))
	if err != nil {
		return 0, err
	}
	return ops.CountDocuments(ctx, filter, opts...)
}

func (c *Collection) Distinct(ctx context.Context, field string, filter any, opts ...*options.DistinctOptions) ([]any, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("distinct", filter, false))
	if err != nil {
		return nil, err
	}
	return ops.Distinct(ctx, field, filter, opts...)
}

func (c *Collection) Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("aggregate", pipeline, false))
	if err != nil {
		return nil, err
	}
	return ops.Aggregate(ctx, pipeline, opts...)
}

func (c *Collection) InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("insertOne", doc, true))
	if err != nil {
		return nil, err
	}
	return ops.InsertOne(ctx, doc, opts...)
}

func (c *Collection) InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("insertMany", docs, true))
	if err != nil {
		return nil, err
	}
	return ops.InsertMany(ctx, docs, opts...)
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("updateOne", update, true))
	if err != nil {
		return nil, err
	}
	return ops.UpdateOne(ctx, filter, update, opts...)
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("updateMany", update, true))
	if err != nil {
		return nil, err
	}
	return ops.UpdateMany(ctx, filter, update, opts...)
}

func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("replaceOne", replacement, true))
	if err != nil {
		return nil, err
	}
	return ops.ReplaceOne(ctx, filter, replacement, opts...)
}

func (c *Collection) DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("deleteOne", filter, true))
	if err != nil {
		return nil, err
	}
	return ops.DeleteOne(ctx, filter, opts...)
}

func (c *Collection) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	ops, err := c.router.operations(ctx, c.coll, c.describe("deleteMany", filter, true))
	if err != nil {
		return nil, err
	}
	return ops.DeleteMany(ctx, filter, opts...)
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	ops, err := c.router.operations(ctx, c.coll, c.describe("findOneAndUpdate", update, true))
	if err != nil {
		return errorResult(err)
	}
	return ops.FindOneAndUpdate(ctx, filter, update, opts...)
}

func (c *Collection) FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	ops, err := c.router.operations(ctx, c.coll, c.describe("findOneAndDelete", filter, true))
	if err != nil {
		return errorResult(err)
	}
	return ops.FindOneAndDelete(ctx, filter, opts...)
}
