package memdriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongotx/internal/driver"
)

type doc struct {
	ID  string `bson:"_id"`
	N   int    `bson:"n"`
	Tag string `bson:"tag,omitempty"`
}

func setup(t *testing.T) (*Server, driver.Collection) {
	t.Helper()
	srv := NewServer()
	return srv, srv.Client().Database("test").Collection("docs")
}

func findAll(t *testing.T, ctx context.Context, coll driver.Collection, filter any) []doc {
	t.Helper()

	cur, err := coll.Find(ctx, filter)
	require.NoError(t, err)

	var docs []doc
	require.NoError(t, cur.All(ctx, &docs))
	return docs
}

func TestCollection_InsertFind(t *testing.T) {
	ctx := context.Background()
	_, coll := setup(t)

	_, err := coll.InsertMany(ctx, []any{
		doc{ID: "a", N: 1},
		doc{ID: "b", N: 2, Tag: "x"},
		doc{ID: "c", N: 3, Tag: "x"},
	})
	require.NoError(t, err)

	type testcase struct {
		name   string
		filter any
		want   []string
	}

	tests := [...]testcase{
		{name: "all", filter: bson.M{}, want: []string{"a", "b", "c"}},
		{name: "eq", filter: bson.M{"_id": "b"}, want: []string{"b"}},
		{name: "gte", filter: bson.M{"n": bson.M{"$gte": 2}}, want: []string{"b", "c"}},
		{name: "in", filter: bson.M{"_id": bson.M{"$in": bson.A{"a", "c"}}}, want: []string{"a", "c"}},
		{name: "exists", filter: bson.M{"tag": bson.M{"$exists": false}}, want: []string{"a"}},
		{name: "or", filter: bson.M{"$or": bson.A{bson.M{"n": 1}, bson.M{"n": 3}}}, want: []string{"a", "c"}},
		{name: "none", filter: bson.M{"n": 42}, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, d := range findAll(t, ctx, coll, tc.filter) {
				got = append(got, d.ID)
			}
			require.ElementsMatch(t, tc.want, got)
		})
	}

	n, err := coll.CountDocuments(ctx, bson.M{"tag": "x"})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = coll.InsertOne(ctx, doc{ID: "a"})
	require.True(t, mongo.IsDuplicateKeyError(err))
}

func TestCollection_Updates(t *testing.T) {
	ctx := context.Background()
	_, coll := setup(t)

	_, err := coll.InsertOne(ctx, doc{ID: "a", N: 1})
	require.NoError(t, err)

	res, err := coll.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$inc": bson.M{"n": 4}})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.MatchedCount)
	require.EqualValues(t, 1, res.ModifiedCount)

	res, err = coll.UpdateOne(ctx, bson.M{"_id": "b"}, bson.M{"$set": bson.M{"n": 7}}, options.Update().SetUpsert(true))
	require.NoError(t, err)
	require.Equal(t, "b", res.UpsertedID)

	var got doc
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"_id": "a"},
		bson.M{"$set": bson.M{"tag": "y"}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&got)
	require.NoError(t, err)
	require.Equal(t, doc{ID: "a", N: 5, Tag: "y"}, got)

	var deleted doc
	err = coll.FindOneAndDelete(ctx, bson.M{"_id": "b"}).Decode(&deleted)
	require.NoError(t, err)
	require.Equal(t, doc{ID: "b", N: 7}, deleted)

	err = coll.FindOne(ctx, bson.M{"_id": "b"}).Err()
	require.ErrorIs(t, err, mongo.ErrNoDocuments)

	_, err = coll.UpdateOne(ctx, bson.M{}, bson.M{"n": 1})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestSecondaryReads(t *testing.T) {
	ctx := context.Background()
	srv, coll := setup(t)
	client := srv.Client()

	srv.SetSecondaryReads(true)

	causal, err := client.StartSession(ctx, driver.SessionOptions{CausalConsistency: true})
	require.NoError(t, err)
	defer causal.EndSession(ctx)

	plain, err := client.StartSession(ctx, driver.SessionOptions{})
	require.NoError(t, err)
	defer plain.EndSession(ctx)

	_, err = coll.InsertOne(causal.Bind(ctx), doc{ID: "d1", N: 1})
	require.NoError(t, err)

	written := causal.OperationTime()
	require.NotNil(t, written)

	// the secondary is behind, nothing forces it to catch up
	require.ErrorIs(t, coll.FindOne(ctx, bson.M{"_id": "d1"}).Err(), mongo.ErrNoDocuments)

	require.NoError(t, plain.AdvanceOperationTime(written))
	require.ErrorIs(t, coll.FindOne(plain.Bind(ctx), bson.M{"_id": "d1"}).Err(), mongo.ErrNoDocuments)

	require.NoError(t, coll.FindOne(causal.Bind(ctx), bson.M{"_id": "d1"}).Err())
	require.False(t, driver.After(written, causal.OperationTime()))
}

func TestTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	srv, coll := setup(t)

	sess, err := srv.Client().StartSession(ctx, driver.SessionOptions{})
	require.NoError(t, err)
	defer sess.EndSession(ctx)

	require.NoError(t, sess.StartTransaction(nil))
	require.ErrorIs(t, sess.StartTransaction(nil), ErrTransactionInProgress)

	sctx := sess.Bind(ctx)
	_, err = coll.InsertOne(sctx, doc{ID: "a", N: 1})
	require.NoError(t, err)
	_, err = coll.UpdateOne(sctx, bson.M{"_id": "a"}, bson.M{"$inc": bson.M{"n": 1}})
	require.NoError(t, err)

	require.Len(t, findAll(t, sctx, coll, bson.M{}), 1)
	require.Empty(t, findAll(t, ctx, coll, bson.M{}))

	before := srv.ClusterTime()
	require.NoError(t, sess.CommitTransaction(ctx))

	require.Equal(t, []doc{{ID: "a", N: 2}}, findAll(t, ctx, coll, bson.M{}))
	require.True(t, driver.After(sess.OperationTime(), &before))
	require.Equal(t, 1, srv.Stats().Commits)

	require.ErrorIs(t, sess.CommitTransaction(ctx), ErrNoTransaction)
}

func TestTransaction_FailCommits(t *testing.T) {
	ctx := context.Background()
	srv, coll := setup(t)

	sess, err := srv.Client().StartSession(ctx, driver.SessionOptions{})
	require.NoError(t, err)
	defer sess.EndSession(ctx)

	srv.FailCommits(TransientError(), UnknownCommitResultError())

	require.NoError(t, sess.StartTransaction(nil))
	_, err = coll.InsertOne(sess.Bind(ctx), doc{ID: "a"})
	require.NoError(t, err)

	err = sess.CommitTransaction(ctx)
	require.True(t, driver.HasLabel(err, driver.LabelTransientTransaction))
	require.True(t, driver.IsRetryableCommit(err))

	err = sess.CommitTransaction(ctx)
	require.True(t, driver.HasLabel(err, driver.LabelUnknownCommitResult))

	require.NoError(t, sess.CommitTransaction(ctx))
	require.Len(t, findAll(t, ctx, coll, bson.M{}), 1)

	stats := srv.Stats()
	require.Equal(t, 3, stats.CommitAttempts)
	require.Equal(t, 1, stats.Commits)
}

func TestSession_EndAborts(t *testing.T) {
	ctx := context.Background()
	srv, coll := setup(t)

	sess, err := srv.Client().StartSession(ctx, driver.SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, sess.StartTransaction(nil))
	_, err = coll.InsertOne(sess.Bind(ctx), doc{ID: "a"})
	require.NoError(t, err)

	sess.EndSession(ctx)
	sess.EndSession(ctx)

	require.Empty(t, findAll(t, ctx, coll, bson.M{}))

	_, err = coll.InsertOne(sess.Bind(ctx), doc{ID: "b"})
	require.ErrorIs(t, err, ErrSessionEnded)

	stats := srv.Stats()
	require.Equal(t, 1, stats.SessionsStarted)
	require.Equal(t, 1, stats.SessionsEnded)
	require.Equal(t, 1, stats.Aborts)
}

func TestSession_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	srv := NewServer()

	sess, err := srv.Client().StartSession(ctx, driver.SessionOptions{CausalConsistency: true})
	require.NoError(t, err)
	defer sess.EndSession(ctx)

	hi := primitive.Timestamp{T: 10, I: 5}
	lo := primitive.Timestamp{T: 10, I: 1}

	require.NoError(t, sess.AdvanceOperationTime(&hi))
	require.NoError(t, sess.AdvanceOperationTime(&lo))
	require.Equal(t, hi, *sess.OperationTime())

	require.NoError(t, sess.AdvanceClusterTime(driver.NewClusterTime(hi)))
	require.NoError(t, sess.AdvanceClusterTime(driver.NewClusterTime(lo)))

	ts, ok := driver.ClusterTimestamp(sess.ClusterTime())
	require.True(t, ok)
	require.Equal(t, hi, ts)

	require.Error(t, sess.AdvanceClusterTime(bson.Raw{}))
}

func TestForeignSession(t *testing.T) {
	ctx := context.Background()
	_, coll := setup(t)

	other, err := NewServer().Client().StartSession(ctx, driver.SessionOptions{})
	require.NoError(t, err)

	_, err = coll.InsertOne(other.Bind(ctx), doc{ID: "a"})
	require.ErrorIs(t, err, ErrForeignSession)
}
