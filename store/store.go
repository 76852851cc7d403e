// Package store abstracts the managed document backend: plain CRUD, filtered
// queries and live subscriptions over named collections. Services depend on
// the Collection interface only, so tests can swap the MongoDB implementation
// for the in-memory one.
package store

import (
	"context"
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound means the document id did not resolve.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a conditional write lost against a concurrent writer.
	ErrConflict = errors.New("conditional write conflict")
)

// SnapshotFunc receives the full matching document set, first immediately on
// subscribe and again after every relevant change.
type SnapshotFunc func(docs []bson.Raw)

// Subscription is a standing live query. It delivers snapshots until
// Unsubscribe is called; a leaked subscription keeps consuming backend quota.
type Subscription struct {
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

// Collection is the backend contract for one document collection.
//
// Filters are bson.M with Mongo semantics: equality on an array-valued field
// matches when the array contains the value, and dotted keys address nested
// fields. Updates support the $set, $push and $inc operators.
type Collection interface {
	InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error)
	UpdateByID(ctx context.Context, id primitive.ObjectID, update bson.M) error
	// UpdateMatched applies the update to documents matching the filter and
	// reports how many matched. Each individual document update is atomic,
	// which makes a filter on the previously observed values a compare-and-swap.
	UpdateMatched(ctx context.Context, filter bson.M, update bson.M) (int64, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
	DeleteMatched(ctx context.Context, filter bson.M) (int64, error)
	FindByID(ctx context.Context, id primitive.ObjectID, out interface{}) error
	Find(ctx context.Context, filter bson.M, out interface{}) error
	Subscribe(ctx context.Context, filter bson.M, fn SnapshotFunc) (*Subscription, error)
}

// decodeAll unmarshals raw documents into *[]T via reflection. Shared by both
// implementations and by services decoding subscription snapshots.
func decodeAll(docs []bson.Raw, out interface{}) error {
	slicePtr := reflect.ValueOf(out)
	if slicePtr.Kind() != reflect.Ptr || slicePtr.Elem().Kind() != reflect.Slice {
		return errors.New("out must be a pointer to a slice")
	}
	sliceVal := slicePtr.Elem()
	elemType := sliceVal.Type().Elem()

	result := reflect.MakeSlice(sliceVal.Type(), 0, len(docs))
	for _, raw := range docs {
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}
	sliceVal.Set(result)
	return nil
}

// DecodeSnapshot unmarshals a subscription snapshot into *[]T.
func DecodeSnapshot(docs []bson.Raw, out interface{}) error {
	return decodeAll(docs, out)
}
