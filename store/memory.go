package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryCollection is an in-memory Collection with the same observable
// semantics as the MongoDB one: array-contains filters, dotted paths,
// $set/$push/$inc updates, and full-snapshot subscription delivery after
// every mutation. Every mutation runs under one mutex, so a conditional
// UpdateMatched is atomic the same way a server-side update is.
type MemoryCollection struct {
	mu     sync.Mutex
	docs   map[primitive.ObjectID]bson.M
	order  []primitive.ObjectID
	subs   map[int]*memSub
	nextID int
	seq    int
}

type memSub struct {
	filter bson.M
	fn     SnapshotFunc

	// deliveries run outside the collection mutex; deliverMu serializes them
	// per subscriber and lastSeq drops any snapshot older than one already
	// delivered.
	deliverMu sync.Mutex
	lastSeq   int
}

func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{
		docs: make(map[primitive.ObjectID]bson.M),
		subs: make(map[int]*memSub),
	}
}

func (c *MemoryCollection) InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	normalized, err := normalizeDoc(doc)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id, _ := normalized["_id"].(primitive.ObjectID)
	if id.IsZero() {
		id = primitive.NewObjectID()
		normalized["_id"] = id
	}

	c.mu.Lock()
	c.docs[id] = normalized
	c.order = append(c.order, id)
	deliveries := c.pendingSnapshots()
	c.mu.Unlock()

	deliver(deliveries)
	return id, nil
}

func (c *MemoryCollection) UpdateByID(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	matched, err := c.UpdateMatched(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *MemoryCollection) UpdateMatched(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	c.mu.Lock()

	var matched int64
	for _, id := range c.order {
		doc := c.docs[id]
		if !matchFilter(doc, filter) {
			continue
		}
		if err := applyUpdate(doc, update); err != nil {
			c.mu.Unlock()
			return matched, err
		}
		matched++
	}

	var deliveries []delivery
	if matched > 0 {
		deliveries = c.pendingSnapshots()
	}
	c.mu.Unlock()

	deliver(deliveries)
	return matched, nil
}

func (c *MemoryCollection) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	deleted, err := c.DeleteMatched(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *MemoryCollection) DeleteMatched(ctx context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()

	var deleted int64
	remaining := c.order[:0]
	for _, id := range c.order {
		if matchFilter(c.docs[id], filter) {
			delete(c.docs, id)
			deleted++
			continue
		}
		remaining = append(remaining, id)
	}
	c.order = remaining

	var deliveries []delivery
	if deleted > 0 {
		deliveries = c.pendingSnapshots()
	}
	c.mu.Unlock()

	deliver(deliveries)
	return deleted, nil
}

func (c *MemoryCollection) FindByID(ctx context.Context, id primitive.ObjectID, out interface{}) error {
	c.mu.Lock()
	doc, ok := c.docs[id]
	var raw bson.Raw
	var err error
	if ok {
		raw, err = bson.Marshal(doc)
	}
	c.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

func (c *MemoryCollection) Find(ctx context.Context, filter bson.M, out interface{}) error {
	c.mu.Lock()
	docs, err := c.snapshot(filter)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return decodeAll(docs, out)
}

func (c *MemoryCollection) Subscribe(ctx context.Context, filter bson.M, fn SnapshotFunc) (*Subscription, error) {
	c.mu.Lock()
	key := c.nextID
	c.nextID++
	sub := &memSub{filter: filter, fn: fn, lastSeq: -1}
	c.subs[key] = sub
	docs, err := c.snapshot(filter)
	seq := c.seq
	c.seq++
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
		return nil, err
	}

	deliver([]delivery{{sub: sub, docs: docs, seq: seq}})

	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
	}}, nil
}

// snapshot marshals all matching documents in insertion order. Caller holds mu.
func (c *MemoryCollection) snapshot(filter bson.M) ([]bson.Raw, error) {
	var docs []bson.Raw
	for _, id := range c.order {
		doc := c.docs[id]
		if !matchFilter(doc, filter) {
			continue
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, raw)
	}
	return docs, nil
}

type delivery struct {
	sub  *memSub
	docs []bson.Raw
	seq  int
}

// pendingSnapshots captures post-mutation snapshots for every subscriber,
// stamped with the next sequence number. Caller holds mu; the snapshots are
// delivered after it is released.
func (c *MemoryCollection) pendingSnapshots() []delivery {
	seq := c.seq
	c.seq++
	var out []delivery
	for _, sub := range c.subs {
		docs, err := c.snapshot(sub.filter)
		if err != nil {
			continue
		}
		out = append(out, delivery{sub: sub, docs: docs, seq: seq})
	}
	return out
}

// deliver pushes snapshots to their subscribers outside the collection mutex.
// A snapshot captured before one the subscriber has already seen is dropped,
// so concurrent mutations can never make state appear to move backwards.
func deliver(deliveries []delivery) {
	for _, d := range deliveries {
		d.sub.deliverMu.Lock()
		if d.seq > d.sub.lastSeq {
			d.sub.lastSeq = d.seq
			d.sub.fn(d.docs)
		}
		d.sub.deliverMu.Unlock()
	}
}

// normalizeDoc round-trips a value through bson so stored documents hold the
// same representation the real backend would return (primitive.DateTime,
// primitive.A, nested bson.M).
func normalizeDoc(doc interface{}) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	wrapped, err := normalizeDoc(bson.M{"v": v})
	if err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}

func matchFilter(doc bson.M, filter bson.M) bool {
	for path, want := range filter {
		got, ok := getPath(doc, path)
		if !ok {
			return false
		}
		if arr, isArr := got.(primitive.A); isArr {
			found := false
			for _, elem := range arr {
				if valueEqual(elem, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !valueEqual(got, want) {
			return false
		}
	}
	return true
}

func applyUpdate(doc bson.M, update bson.M) error {
	for op, rawFields := range update {
		fields, ok := rawFields.(bson.M)
		if !ok {
			return fmt.Errorf("unsupported update operand for %s", op)
		}
		switch op {
		case "$set":
			for path, v := range fields {
				nv, err := normalizeValue(v)
				if err != nil {
					return err
				}
				setPath(doc, path, nv)
			}
		case "$push":
			for path, v := range fields {
				nv, err := normalizeValue(v)
				if err != nil {
					return err
				}
				cur, _ := getPath(doc, path)
				arr, _ := cur.(primitive.A)
				setPath(doc, path, append(arr, nv))
			}
		case "$inc":
			for path, v := range fields {
				deltaF, ok := asNumber(v)
				if !ok {
					return fmt.Errorf("non-numeric $inc on %s", path)
				}
				cur, _ := getPath(doc, path)
				curF, _ := asNumber(cur)
				setPath(doc, path, int64(curF+deltaF))
			}
		default:
			return fmt.Errorf("unsupported update operator %s", op)
		}
	}
	return nil
}

func getPath(doc bson.M, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, part := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(bson.M)
		if !ok {
			next = bson.M{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func valueEqual(got, want interface{}) bool {
	if g, ok := got.(primitive.ObjectID); ok {
		w, ok := want.(primitive.ObjectID)
		return ok && g == w
	}

	gf, gok := asNumber(got)
	wf, wok := asNumber(want)
	if gok && wok {
		return gf == wf
	}

	gs, gok := asString(got)
	ws, wok := asString(want)
	if gok && wok {
		return gs == ws
	}

	return reflect.DeepEqual(got, want)
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}
