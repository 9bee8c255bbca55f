package memdriver

import (
	"math"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nikmy/mongotx/pkg/errors"
)

var (
	ErrUnsupported = errors.Error("memdriver: unsupported query")

	// pendingTS is the visibility timestamp of uncommitted writes inside
	// a transaction: newer than anything the clock can produce.
	pendingTS = primitive.Timestamp{T: math.MaxUint32, I: math.MaxUint32}
)

type version struct {
	ts  primitive.Timestamp
	doc bson.M // nil marks a delete
}

type row struct {
	id       any
	versions []version
}

func (r *row) at(ts primitive.Timestamp) bson.M {
	for i := len(r.versions) - 1; i >= 0; i-- {
		if primitive.CompareTimestamp(r.versions[i].ts, ts) <= 0 {
			return r.versions[i].doc
		}
	}
	return nil
}

type table struct {
	rows []*row
}

func (t *table) clone() *table {
	c := &table{rows: make([]*row, 0, len(t.rows))}
	for _, r := range t.rows {
		c.rows = append(c.rows, &row{id: r.id, versions: append([]version(nil), r.versions...)})
	}
	return c
}

type snapshotDoc struct {
	row *row
	doc bson.M
}

func (t *table) view(ts primitive.Timestamp) []snapshotDoc {
	var docs []snapshotDoc
	for _, r := range t.rows {
		if doc := r.at(ts); doc != nil {
			docs = append(docs, snapshotDoc{row: r, doc: doc})
		}
	}
	return docs
}

func (t *table) match(ts primitive.Timestamp, filter bson.M) ([]snapshotDoc, error) {
	var matched []snapshotDoc
	for _, d := range t.view(ts) {
		ok, err := matches(d.doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

func (t *table) lookup(id any) *row {
	for _, r := range t.rows {
		if equal(r.id, id) {
			return r
		}
	}
	return nil
}

func (t *table) put(r *row, doc bson.M, ts primitive.Timestamp) {
	r.versions = append(r.versions, version{ts: ts, doc: doc})
}

func (t *table) insert(doc bson.M, ts primitive.Timestamp) (any, error) {
	id, ok := doc["_id"]
	if !ok {
		id = primitive.NewObjectID()
		doc["_id"] = id
	}

	if r := t.lookup(id); r != nil {
		if r.at(pendingTS) != nil {
			return nil, duplicateKey(id)
		}
		t.put(r, doc, ts)
		return id, nil
	}

	t.rows = append(t.rows, &row{id: id, versions: []version{{ts: ts, doc: doc}}})
	return id, nil
}

func toM(v any) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}

	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, errors.WrapFail(err, "marshal document")
	}

	var m bson.M
	err = bson.Unmarshal(raw, &m)
	return m, errors.WrapFail(err, "unmarshal document")
}

func cloneM(m bson.M) bson.M {
	if m == nil {
		return nil
	}
	c, err := toM(m)
	if err != nil {
		return m
	}
	return c
}

func asM(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return d, true
	case bson.D:
		return d.Map(), true
	}
	return nil, false
}

func asA(v any) ([]any, bool) {
	switch a := v.(type) {
	case primitive.A:
		return a, true
	case []any:
		return a, true
	}
	return nil, false
}

func path(doc bson.M, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := asM(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, key string, value any) {
	parts := strings.Split(key, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := asM(cur[p])
		if !ok {
			next = bson.M{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func unsetPath(doc bson.M, key string) {
	parts := strings.Split(key, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := asM(cur[p])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$and", "$or":
			clauses, ok := asA(cond)
			if !ok {
				return false, errors.Wrapf(ErrUnsupported, "%s expects an array", key)
			}
			ok, err := matchClauses(doc, clauses, key == "$and")
			if err != nil || !ok {
				return false, err
			}
			continue
		}

		if strings.HasPrefix(key, "$") {
			return false, errors.Wrapf(ErrUnsupported, "top-level operator %s", key)
		}

		v, present := path(doc, key)
		ok, err := matchCond(v, present, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchClauses(doc bson.M, clauses []any, all bool) (bool, error) {
	for _, c := range clauses {
		m, ok := asM(c)
		if !ok {
			return false, errors.Wrap(ErrUnsupported, "clause is not a document")
		}
		ok, err := matches(doc, m)
		if err != nil {
			return false, err
		}
		if ok != all {
			return ok, nil
		}
	}
	return all, nil
}

func isOperatorDoc(m bson.M) bool {
	for k := range m {
		return strings.HasPrefix(k, "$")
	}
	return false
}

func matchCond(v any, present bool, cond any) (bool, error) {
	ops, ok := asM(cond)
	if !ok || !isOperatorDoc(ops) {
		return present && equal(v, cond), nil
	}

	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = present && equal(v, arg)
		case "$ne":
			ok = !present || !equal(v, arg)
		case "$exists":
			want, _ := arg.(bool)
			ok = present == want
		case "$in":
			values, isArr := asA(arg)
			if !isArr {
				return false, errors.Wrap(ErrUnsupported, "$in expects an array")
			}
			for _, candidate := range values {
				if present && equal(v, candidate) {
					ok = true
					break
				}
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present {
				break
			}
			c, comparable := compare(v, arg)
			if !comparable {
				break
			}
			switch op {
			case "$gt":
				ok = c > 0
			case "$gte":
				ok = c >= 0
			case "$lt":
				ok = c < 0
			case "$lte":
				ok = c <= 0
			}
		default:
			return false, errors.Wrapf(ErrUnsupported, "operator %s", op)
		}

		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}

	am, aok := asM(a)
	bm, bok := asM(b)
	if aok && bok {
		if len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if !equal(v, bm[k]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return strings.Compare(x, y), ok
	case primitive.DateTime:
		y, ok := b.(primitive.DateTime)
		return compareInt(int64(x), int64(y)), ok
	case primitive.Timestamp:
		y, ok := b.(primitive.Timestamp)
		return primitive.CompareTimestamp(x, y), ok
	}
	return 0, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func hasOperators(update bson.M) bool {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func applyUpdate(doc bson.M, update bson.M) (bson.M, error) {
	if !hasOperators(update) {
		return nil, errors.Wrap(ErrUnsupported, "update document must contain key beginning with '$'")
	}

	next := cloneM(doc)
	for op, arg := range update {
		fields, ok := asM(arg)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupported, "%s expects a document", op)
		}

		switch op {
		case "$set":
			for k, v := range fields {
				setPath(next, k, v)
			}
		case "$unset":
			for k := range fields {
				unsetPath(next, k)
			}
		case "$inc":
			for k, v := range fields {
				delta, ok := number(v)
				if !ok {
					return nil, errors.Wrapf(ErrUnsupported, "$inc of non-number field %s", k)
				}
				old, _ := path(next, k)
				cur, _ := number(old)
				setPath(next, k, cur+delta)
			}
		default:
			return nil, errors.Wrapf(ErrUnsupported, "update operator %s", op)
		}
	}
	return next, nil
}

// seedFromFilter collects the equality fields of a filter for upserts.
func seedFromFilter(filter bson.M) bson.M {
	seed := bson.M{}
	for k, v := range filter {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if m, ok := asM(v); ok && isOperatorDoc(m) {
			continue
		}
		setPath(seed, k, v)
	}
	return seed
}
