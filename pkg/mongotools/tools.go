package mongotools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/pkg/errors"
)

func SetAll(fieldKVs ...bson.M) bson.M {
	s := make(map[string]any, len(fieldKVs))
	for _, kv := range fieldKVs {
		for k, v := range kv {
			s[k] = v
		}
	}

	return bson.M{"$set": bson.M(s)}
}

func All() bson.M {
	return bson.M{}
}

func FilterByID(id string) bson.M {
	return bson.M{"_id": id}
}

func FilterFunc[T any](ctx context.Context, c *mongo.Cursor, filterFunc func(T) bool) ([]T, error) {
	defer c.Close(ctx)

	var filtered []T
	for c.Next(ctx) {
		var item T
		err := c.Decode(&item)
		if err != nil {
			return nil, errors.WrapFail(err, "decode item")
		}

		if filterFunc == nil || filterFunc(item) {
			filtered = append(filtered, item)
		}
	}

	return filtered, c.Err()
}

// FormatTimestamp renders ts as "T.I".
func FormatTimestamp(ts primitive.Timestamp) string {
	return fmt.Sprintf("%d.%d", ts.T, ts.I)
}

func ParseTimestamp(s string) (primitive.Timestamp, error) {
	tStr, iStr, ok := strings.Cut(s, ".")
	if !ok {
		return primitive.Timestamp{}, errors.Errorf("malformed timestamp %q", s)
	}

	t, err := strconv.ParseUint(tStr, 10, 32)
	if err != nil {
		return primitive.Timestamp{}, errors.WrapFailf(err, "parse timestamp seconds %q", tStr)
	}
	i, err := strconv.ParseUint(iStr, 10, 32)
	if err != nil {
		return primitive.Timestamp{}, errors.WrapFailf(err, "parse timestamp increment %q", iStr)
	}

	return primitive.Timestamp{T: uint32(t), I: uint32(i)}, nil
}
