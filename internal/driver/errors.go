package driver

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/pkg/errors"
)

const (
	LabelTransientTransaction = "TransientTransactionError"
	LabelUnknownCommitResult  = "UnknownTransactionCommitResult"

	codeExceededTimeLimit          = 262
	codeTransactionCommittedBefore = 256
)

// HasLabel reports whether any error in the chain carries label.
func HasLabel(err error, label string) bool {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel(label)
	}
	return false
}

// IsRetryableCommit reports whether a commitTransaction failure may succeed
// when the same commit is sent again.
func IsRetryableCommit(err error) bool {
	if err == nil {
		return false
	}
	if HasLabel(err, LabelUnknownCommitResult) || HasLabel(err, LabelTransientTransaction) {
		return true
	}
	if mongo.IsNetworkError(err) {
		return true
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == codeExceededTimeLimit
	}
	return false
}

// IsCommittedAlready reports the server telling a retried commit that the
// first attempt went through.
func IsCommittedAlready(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == codeTransactionCommittedBefore
}

// ClusterTimestamp extracts $clusterTime.clusterTime from a cluster time
// document as returned by Session.ClusterTime.
func ClusterTimestamp(ct bson.Raw) (primitive.Timestamp, bool) {
	if len(ct) == 0 {
		return primitive.Timestamp{}, false
	}

	v, err := ct.LookupErr("$clusterTime", "clusterTime")
	if err != nil {
		return primitive.Timestamp{}, false
	}

	t, i, ok := v.TimestampOK()
	return primitive.Timestamp{T: t, I: i}, ok
}

// NewClusterTime builds the document form of a cluster time.
func NewClusterTime(ts primitive.Timestamp) bson.Raw {
	raw, err := bson.Marshal(bson.D{{Key: "$clusterTime", Value: bson.D{{Key: "clusterTime", Value: ts}}}})
	if err != nil {
		return nil
	}
	return raw
}

// After reports whether a is strictly greater than b; a nil b is the minimum.
func After(a, b *primitive.Timestamp) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return primitive.CompareTimestamp(*a, *b) > 0
}
