package memdriver

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikmy/mongotx/pkg/errors"
)

type writeResult struct {
	matched    int64
	modified   int64
	deleted    int64
	inserted   []any
	upsertedID any
	before     bson.M
	after      bson.M
}

type mutation func(t *table, ts primitive.Timestamp) (writeResult, error)

type collection struct {
	srv  *Server
	db   string
	name string
}

func (c *collection) Name() string {
	return c.name
}

func (c *collection) Database() string {
	return c.db
}

func (c *collection) ns() string {
	return c.db + "." + c.name
}

// read returns the documents visible to ctx that match filter.
func (c *collection) read(ctx context.Context, filter any) ([]bson.M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := toM(filter)
	if err != nil {
		return nil, err
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	sess, err := c.srv.sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	var (
		t  = c.srv.table(c.ns())
		ts = c.srv.now()
	)

	switch {
	case sess != nil && sess.inTxn:
		t = c.overlay(sess)
		ts = pendingTS
	case c.srv.secondaryReads:
		if after := sess.afterClusterTimeOrNil(); after != nil &&
			primitive.CompareTimestamp(*after, c.srv.secondaryApplied) > 0 {
			c.srv.secondaryApplied = *after
		}
		ts = c.srv.secondaryApplied
	}

	matched, err := t.match(ts, f)
	if err != nil {
		return nil, err
	}

	if sess != nil && !sess.inTxn {
		sess.observe(ts)
	}

	docs := make([]bson.M, 0, len(matched))
	for _, m := range matched {
		docs = append(docs, cloneM(m.doc))
	}
	return docs, nil
}

func (s *session) afterClusterTimeOrNil() *primitive.Timestamp {
	if s == nil {
		return nil
	}
	return s.afterClusterTime()
}

// overlay is the committed state of the collection with the session's
// uncommitted writes applied on top.
func (c *collection) overlay(sess *session) *table {
	t := c.srv.table(c.ns()).clone()
	for _, w := range sess.pending {
		if w.ns == c.ns() {
			_, _ = w.apply(t, pendingTS)
		}
	}
	return t
}

func (c *collection) write(ctx context.Context, m mutation) (writeResult, error) {
	if err := ctx.Err(); err != nil {
		return writeResult{}, err
	}

	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	sess, err := c.srv.sessionFrom(ctx)
	if err != nil {
		return writeResult{}, err
	}

	if sess != nil && sess.inTxn {
		res, err := m(c.overlay(sess), pendingTS)
		if err != nil {
			return writeResult{}, err
		}
		sess.pending = append(sess.pending, pendingWrite{ns: c.ns(), apply: m})
		return res, nil
	}

	ts := c.srv.advance()
	res, err := m(c.srv.table(c.ns()), ts)
	if err != nil {
		return writeResult{}, err
	}

	if sess != nil {
		sess.observe(ts)
	}
	return res, nil
}

func toDocs(docs []bson.M) []any {
	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	return out
}

func (c *collection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	docs, err := c.read(ctx, filter)
	if err != nil {
		return nil, err
	}

	for _, o := range opts {
		if o != nil && o.Skip != nil {
			docs = docs[min(int(*o.Skip), len(docs)):]
		}
		if o != nil && o.Limit != nil && *o.Limit > 0 && int(*o.Limit) < len(docs) {
			docs = docs[:*o.Limit]
		}
	}

	return mongo.NewCursorFromDocuments(toDocs(docs), nil, nil)
}

func (c *collection) FindOne(ctx context.Context, filter any, _ ...*options.FindOneOptions) *mongo.SingleResult {
	docs, err := c.read(ctx, filter)
	return singleResult(docs, err)
}

func singleResult(docs []bson.M, err error) *mongo.SingleResult {
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}
	if len(docs) == 0 {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(docs[0], nil, nil)
}

func (c *collection) CountDocuments(ctx context.Context, filter any, _ ...*options.CountOptions) (int64, error) {
	docs, err := c.read(ctx, filter)
	return int64(len(docs)), err
}

func (c *collection) Distinct(ctx context.Context, field string, filter any, _ ...*options.DistinctOptions) ([]any, error) {
	docs, err := c.read(ctx, filter)
	if err != nil {
		return nil, err
	}

	var values []any
	for _, d := range docs {
		v, ok := path(d, field)
		if !ok {
			continue
		}

		seen := false
		for _, existing := range values {
			if equal(existing, v) {
				seen = true
				break
			}
		}
		if !seen {
			values = append(values, v)
		}
	}
	return values, nil
}

// Aggregate supports pipelines made of $match and $limit stages.
func (c *collection) Aggregate(ctx context.Context, pipeline any, _ ...*options.AggregateOptions) (*mongo.Cursor, error) {
	wrapped, err := toM(bson.M{"p": pipeline})
	if err != nil {
		return nil, errors.WrapFail(err, "parse pipeline")
	}

	stages, _ := asA(wrapped["p"])
	docs, err := c.read(ctx, nil)
	if err != nil {
		return nil, err
	}

	for _, raw := range stages {
		stage, ok := asM(raw)
		if !ok {
			return nil, errors.Wrap(ErrUnsupported, "pipeline stage is not a document")
		}

		for op, arg := range stage {
			switch op {
			case "$match":
				filter, ok := asM(arg)
				if !ok {
					return nil, errors.Wrap(ErrUnsupported, "$match expects a document")
				}
				kept := docs[:0]
				for _, d := range docs {
					ok, err := matches(d, filter)
					if err != nil {
						return nil, err
					}
					if ok {
						kept = append(kept, d)
					}
				}
				docs = kept
			case "$limit":
				n, ok := number(arg)
				if !ok {
					return nil, errors.Wrap(ErrUnsupported, "$limit expects a number")
				}
				if int(n) < len(docs) {
					docs = docs[:int(n)]
				}
			default:
				return nil, errors.Wrapf(ErrUnsupported, "pipeline stage %s", op)
			}
		}
	}

	return mongo.NewCursorFromDocuments(toDocs(docs), nil, nil)
}

func (c *collection) InsertOne(ctx context.Context, doc any, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	m, err := toM(doc)
	if err != nil {
		return nil, err
	}

	res, err := c.write(ctx, insertMutation([]bson.M{m}))
	if err != nil {
		return nil, err
	}
	return &mongo.InsertOneResult{InsertedID: res.inserted[0]}, nil
}

func (c *collection) InsertMany(ctx context.Context, docs []any, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	ms := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		m, err := toM(d)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}

	res, err := c.write(ctx, insertMutation(ms))
	if err != nil {
		return nil, err
	}
	return &mongo.InsertManyResult{InsertedIDs: res.inserted}, nil
}

func insertMutation(docs []bson.M) mutation {
	// ids are assigned once so that replaying the mutation on commit
	// produces the same documents.
	for _, d := range docs {
		if _, ok := d["_id"]; !ok {
			d["_id"] = primitive.NewObjectID()
		}
	}

	return func(t *table, ts primitive.Timestamp) (writeResult, error) {
		var res writeResult
		for _, d := range docs {
			id, err := t.insert(cloneM(d), ts)
			if err != nil {
				return writeResult{}, err
			}
			res.inserted = append(res.inserted, id)
		}
		return res, nil
	}
}

func (c *collection) UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.update(ctx, filter, update, false, upsertOf(opts))
}

func (c *collection) UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.update(ctx, filter, update, true, upsertOf(opts))
}

func upsertOf(opts []*options.UpdateOptions) bool {
	upsert := false
	for _, o := range opts {
		if o != nil && o.Upsert != nil {
			upsert = *o.Upsert
		}
	}
	return upsert
}

func (c *collection) update(ctx context.Context, filter, update any, many, upsert bool) (*mongo.UpdateResult, error) {
	f, err := toM(filter)
	if err != nil {
		return nil, err
	}
	u, err := toM(update)
	if err != nil {
		return nil, err
	}
	if !hasOperators(u) {
		return nil, errors.Wrap(ErrUnsupported, "update document must contain key beginning with '$'")
	}

	res, err := c.write(ctx, modifyMutation(f, many, upsert, func(doc bson.M) (bson.M, error) {
		return applyUpdate(doc, u)
	}))
	if err != nil {
		return nil, err
	}

	return &mongo.UpdateResult{
		MatchedCount:  res.matched,
		ModifiedCount: res.modified,
		UpsertedCount: boolCount(res.upsertedID != nil),
		UpsertedID:    res.upsertedID,
	}, nil
}

func (c *collection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	f, err := toM(filter)
	if err != nil {
		return nil, err
	}
	r, err := toM(replacement)
	if err != nil {
		return nil, err
	}
	if hasOperators(r) {
		return nil, errors.Wrap(ErrUnsupported, "replacement document cannot contain keys beginning with '$'")
	}

	upsert := false
	for _, o := range opts {
		if o != nil && o.Upsert != nil {
			upsert = *o.Upsert
		}
	}

	res, err := c.write(ctx, modifyMutation(f, false, upsert, func(doc bson.M) (bson.M, error) {
		next := cloneM(r)
		if id, ok := doc["_id"]; ok {
			next["_id"] = id
		}
		return next, nil
	}))
	if err != nil {
		return nil, err
	}

	return &mongo.UpdateResult{
		MatchedCount:  res.matched,
		ModifiedCount: res.modified,
		UpsertedCount: boolCount(res.upsertedID != nil),
		UpsertedID:    res.upsertedID,
	}, nil
}

func boolCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func modifyMutation(filter bson.M, many, upsert bool, modify func(bson.M) (bson.M, error)) mutation {
	var upsertedID any
	if upsert {
		if id, ok := filter["_id"]; ok {
			upsertedID = id
		} else {
			upsertedID = primitive.NewObjectID()
		}
	}

	return func(t *table, ts primitive.Timestamp) (writeResult, error) {
		matched, err := t.match(pendingTS, filter)
		if err != nil {
			return writeResult{}, err
		}
		if !many && len(matched) > 1 {
			matched = matched[:1]
		}

		var res writeResult
		for _, m := range matched {
			next, err := modify(m.doc)
			if err != nil {
				return writeResult{}, err
			}

			res.matched++
			if res.before == nil {
				res.before, res.after = cloneM(m.doc), cloneM(next)
			}
			if !equal(m.doc, next) {
				res.modified++
				t.put(m.row, next, ts)
			}
		}

		if res.matched == 0 && upsert {
			seed := seedFromFilter(filter)
			seed["_id"] = upsertedID
			next, err := modify(seed)
			if err != nil {
				return writeResult{}, err
			}
			next["_id"] = upsertedID
			if _, err := t.insert(next, ts); err != nil {
				return writeResult{}, err
			}
			res.upsertedID = upsertedID
			res.after = cloneM(next)
		}
		return res, nil
	}
}

func (c *collection) DeleteOne(ctx context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.delete(ctx, filter, false)
}

func (c *collection) DeleteMany(ctx context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.delete(ctx, filter, true)
}

func (c *collection) delete(ctx context.Context, filter any, many bool) (*mongo.DeleteResult, error) {
	f, err := toM(filter)
	if err != nil {
		return nil, err
	}

	res, err := c.write(ctx, deleteMutation(f, many))
	if err != nil {
		return nil, err
	}
	return &mongo.DeleteResult{DeletedCount: res.deleted}, nil
}

func deleteMutation(filter bson.M, many bool) mutation {
	return func(t *table, ts primitive.Timestamp) (writeResult, error) {
		matched, err := t.match(pendingTS, filter)
		if err != nil {
			return writeResult{}, err
		}
		if !many && len(matched) > 1 {
			matched = matched[:1]
		}

		var res writeResult
		for _, m := range matched {
			if res.before == nil {
				res.before = cloneM(m.doc)
			}
			t.put(m.row, nil, ts)
			res.deleted++
		}
		return res, nil
	}
}

func (c *collection) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	f, err := toM(filter)
	if err != nil {
		return singleResult(nil, err)
	}
	u, err := toM(update)
	if err != nil {
		return singleResult(nil, err)
	}

	var (
		upsert      bool
		returnAfter bool
	)
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Upsert != nil {
			upsert = *o.Upsert
		}
		if o.ReturnDocument != nil {
			returnAfter = *o.ReturnDocument == options.After
		}
	}

	res, err := c.write(ctx, modifyMutation(f, false, upsert, func(doc bson.M) (bson.M, error) {
		return applyUpdate(doc, u)
	}))
	if err != nil {
		return singleResult(nil, err)
	}

	doc := res.before
	if returnAfter {
		doc = res.after
	}
	if doc == nil {
		return singleResult(nil, nil)
	}
	return singleResult([]bson.M{doc}, nil)
}

func (c *collection) FindOneAndDelete(ctx context.Context, filter any, _ ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	f, err := toM(filter)
	if err != nil {
		return singleResult(nil, err)
	}

	res, err := c.write(ctx, deleteMutation(f, false))
	if err != nil {
		return singleResult(nil, err)
	}
	if res.before == nil {
		return singleResult(nil, nil)
	}
	return singleResult([]bson.M{res.before}, nil)
}
