package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is a typed view over one named collection. Reads that fail to
// load or decode degrade to empty results with a warning, so a corrupted
// record never makes the whole app unusable; writes propagate their errors.
type Collection[T any] struct {
	store *Store
	name  string
	idOf  func(*T) string
}

// NewCollection binds a record type to a named collection. idOf must return
// the unique id of a record within the collection.
func NewCollection[T any](s *Store, name string, idOf func(*T) string) *Collection[T] {
	return &Collection[T]{store: s, name: name, idOf: idOf}
}

// Name returns the underlying collection name.
func (c *Collection[T]) Name() string { return c.name }

// GetAll returns every decodable record in the collection.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	raws, err := c.store.List(ctx, c.name)
	if err != nil {
		c.store.log.Warn(ctx, "collection read failed, returning empty", "collection", c.name, "error", err)
		return []T{}, nil
	}

	result := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			c.store.log.Warn(ctx, "skipping undecodable record", "collection", c.name, "error", err)
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

// GetByID returns the record with the given id, or (nil, nil) when absent
// or unreadable.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (*T, error) {
	raw, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		c.store.log.Warn(ctx, "record read failed, treating as absent", "collection", c.name, "id", id, "error", err)
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		c.store.log.Warn(ctx, "record decode failed, treating as absent", "collection", c.name, "id", id, "error", err)
		return nil, nil
	}
	return &item, nil
}

// Save upserts item by its id and returns the stored value.
func (c *Collection[T]) Save(ctx context.Context, item T) (T, error) {
	id := c.idOf(&item)
	if id == "" {
		var zero T
		return zero, fmt.Errorf("save to %s: empty record id", c.name)
	}

	raw, err := json.Marshal(item)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("encode %s/%s: %w", c.name, id, err)
	}

	if err := c.store.Put(ctx, c.name, id, raw); err != nil {
		var zero T
		return zero, err
	}
	return item, nil
}

// Delete removes the record with the given id, reporting whether a record
// was removed.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	return c.store.Delete(ctx, c.name, id)
}

// Query returns all records matching pred.
func (c *Collection[T]) Query(ctx context.Context, pred func(T) bool) ([]T, error) {
	all, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(all))
	for _, item := range all {
		if pred(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

// singletonID is the fixed record id used by Singleton collections.
const singletonID = "singleton"

// Singleton is a typed view over a collection holding exactly one record,
// such as the subscription status cache or the cache index.
type Singleton[T any] struct {
	store *Store
	name  string
}

func NewSingleton[T any](s *Store, name string) *Singleton[T] {
	return &Singleton[T]{store: s, name: name}
}

// Get returns the singleton value, or (nil, nil) when it has never been
// written or cannot be read.
func (g *Singleton[T]) Get(ctx context.Context) (*T, error) {
	raw, err := g.store.Get(ctx, g.name, singletonID)
	if err != nil {
		g.store.log.Warn(ctx, "singleton read failed, treating as absent", "collection", g.name, "error", err)
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		g.store.log.Warn(ctx, "singleton decode failed, treating as absent", "collection", g.name, "error", err)
		return nil, nil
	}
	return &v, nil
}

// Put overwrites the singleton value wholesale.
func (g *Singleton[T]) Put(ctx context.Context, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", g.name, err)
	}
	return g.store.Put(ctx, g.name, singletonID, raw)
}

// Update runs a read-modify-write of the singleton inside one transaction.
// fn receives nil when the value has never been written.
func (g *Singleton[T]) Update(ctx context.Context, fn func(v *T) (T, error)) error {
	return g.store.Update(ctx, g.name, singletonID, func(data []byte) ([]byte, error) {
		var cur *T
		if data != nil {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				cur = &v
			}
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
}
