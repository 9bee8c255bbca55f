// Package driver describes the part of a MongoDB driver the session layer
// relies on. Every Collection method is the session-oblivious entry point;
// calling it with a context returned by Session.Bind selects the
// session-qualified overload.
package driver

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type Client interface {
	// StartSession costs one round trip to obtain a server session id.
	StartSession(ctx context.Context, opts SessionOptions) (Session, error)
	Database(name string) Database
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

type SessionOptions struct {
	CausalConsistency bool

	ReadConcern    *readconcern.ReadConcern
	WriteConcern   *writeconcern.WriteConcern
	ReadPreference *readpref.ReadPref
}

type Session interface {
	ID() bson.Raw

	StartTransaction(opts *options.TransactionOptions) error
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	EndSession(ctx context.Context)

	// OperationTime and ClusterTime expose what the server acknowledged
	// in the most recent response on this session.
	OperationTime() *primitive.Timestamp
	ClusterTime() bson.Raw
	AdvanceOperationTime(ts *primitive.Timestamp) error
	AdvanceClusterTime(ct bson.Raw) error

	// Bind returns a context that routes driver calls through this session.
	Bind(ctx context.Context) context.Context
}

type Database interface {
	Name() string
	Collection(name string) Collection
	RunCommand(ctx context.Context, cmd any) *mongo.SingleResult
}

type Collection interface {
	Name() string
	Database() string

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
