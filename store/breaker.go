package store

import (
	"context"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BreakerCollection shields the external backend behind a circuit breaker.
// Once consecutive failures trip it, calls fail fast with
// gobreaker.ErrOpenState instead of piling onto a struggling backend.
type BreakerCollection struct {
	inner Collection
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerCollection(inner Collection, cb *gobreaker.CircuitBreaker) *BreakerCollection {
	return &BreakerCollection{inner: inner, cb: cb}
}

func (c *BreakerCollection) InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.InsertOne(ctx, doc)
	})
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.(primitive.ObjectID), nil
}

func (c *BreakerCollection) UpdateByID(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.inner.UpdateByID(ctx, id, update)
	})
	return err
}

func (c *BreakerCollection) UpdateMatched(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.UpdateMatched(ctx, filter, update)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (c *BreakerCollection) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.inner.DeleteByID(ctx, id)
	})
	return err
}

func (c *BreakerCollection) DeleteMatched(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.DeleteMatched(ctx, filter)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (c *BreakerCollection) FindByID(ctx context.Context, id primitive.ObjectID, out interface{}) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.inner.FindByID(ctx, id, out)
	})
	return err
}

func (c *BreakerCollection) Find(ctx context.Context, filter bson.M, out interface{}) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.inner.Find(ctx, filter, out)
	})
	return err
}

// Subscribe is not routed through the breaker: a standing live query is opened
// once and then pushes from the backend, so there is nothing to fail fast.
func (c *BreakerCollection) Subscribe(ctx context.Context, filter bson.M, fn SnapshotFunc) (*Subscription, error) {
	return c.inner.Subscribe(ctx, filter, fn)
}
