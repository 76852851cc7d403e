package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Misbahrahman/tasks/logging"
)

// MongoCollection adapts one *mongo.Collection to the Collection contract.
type MongoCollection struct {
	coll *mongo.Collection
}

func NewMongoCollection(coll *mongo.Collection) *MongoCollection {
	return &MongoCollection{coll: coll}
}

func (c *MongoCollection) InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, ErrNotFound
	}
	return id, nil
}

func (c *MongoCollection) UpdateByID(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := c.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *MongoCollection) UpdateMatched(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	res, err := c.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (c *MongoCollection) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *MongoCollection) DeleteMatched(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *MongoCollection) FindByID(ctx context.Context, id primitive.ObjectID, out interface{}) error {
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return err
}

func (c *MongoCollection) Find(ctx context.Context, filter bson.M, out interface{}) error {
	cursor, err := c.coll.Find(ctx, filter)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

// Subscribe opens a change stream on the collection and re-runs the filtered
// query after every event, pushing the full result set to fn. The stream is
// collection-wide; filtering happens at query time, so an event on a document
// outside the filter costs one redundant query but never a wrong snapshot.
func (c *MongoCollection) Subscribe(ctx context.Context, filter bson.M, fn SnapshotFunc) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := c.coll.Watch(subCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, err
	}

	push := func() {
		var docs []bson.Raw
		if err := c.Find(subCtx, filter, &docs); err != nil {
			if subCtx.Err() == nil {
				logging.Logger.Errorf("Event ID: SUBSCRIPTION_QUERY_FAILED, Description: Live query re-run failed on %s: %v", c.coll.Name(), err)
			}
			return
		}
		fn(docs)
	}

	go func() {
		defer stream.Close(context.Background())
		push()
		for stream.Next(subCtx) {
			push()
		}
	}()

	return &Subscription{cancel: cancel}, nil
}
