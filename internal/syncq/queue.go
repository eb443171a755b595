// Package syncq records mutations made while offline and replays them
// against the backend once connectivity returns. Items are drained
// oldest-first to preserve the causal order of mutations per entity, retried
// up to a bounded attempt count, and parked in a dead-letter collection when
// the budget is exhausted.
package syncq

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/store"
)

// Queue is the durable pending-mutation queue.
type Queue struct {
	items *store.Collection[models.SyncQueueItem]
	dead  *store.Collection[models.DeadLetterItem]
	log   logging.Logger
	now   func() time.Time
}

func NewQueue(s *store.Store, log logging.Logger) *Queue {
	return &Queue{
		items: store.NewCollection(s, store.CollectionSyncQueue,
			func(i *models.SyncQueueItem) string { return i.ID }),
		dead: store.NewCollection(s, store.CollectionDeadLetter,
			func(i *models.DeadLetterItem) string { return i.Item.ID }),
		log: log,
		now: time.Now,
	}
}

// Enqueue appends a new item with zero attempts. Existing items for the same
// entity are never deduplicated; each queued mutation replays independently,
// in order.
func (q *Queue) Enqueue(ctx context.Context, entityType models.EntityType, entityID string, op models.Operation, payload json.RawMessage) (models.SyncQueueItem, error) {
	item := models.SyncQueueItem{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    payload,
		CreatedAt:  q.now().UTC(),
	}
	return q.items.Save(ctx, item)
}

// Pending returns all queued items ordered by creation time, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]models.SyncQueueItem, error) {
	items, err := q.items.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// IsEmpty reports whether nothing is queued.
func (q *Queue) IsEmpty(ctx context.Context) (bool, error) {
	items, err := q.items.GetAll(ctx)
	if err != nil {
		return false, err
	}
	return len(items) == 0, nil
}

func (q *Queue) save(ctx context.Context, item models.SyncQueueItem) error {
	_, err := q.items.Save(ctx, item)
	return err
}

func (q *Queue) remove(ctx context.Context, id string) error {
	_, err := q.items.Delete(ctx, id)
	return err
}

// park moves an exhausted item into the dead-letter collection.
func (q *Queue) park(ctx context.Context, item models.SyncQueueItem, lastErr string) error {
	_, err := q.dead.Save(ctx, models.DeadLetterItem{
		Item:      item,
		LastError: lastErr,
		FailedAt:  q.now().UTC(),
	})
	if err != nil {
		return err
	}
	return q.remove(ctx, item.ID)
}

// DeadLetters returns all parked items.
func (q *Queue) DeadLetters(ctx context.Context) ([]models.DeadLetterItem, error) {
	return q.dead.GetAll(ctx)
}

// Requeue moves a dead-lettered item back into the queue with its attempt
// counter reset.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	d, err := q.dead.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}

	item := d.Item
	item.Attempts = 0
	if err := q.save(ctx, item); err != nil {
		return err
	}
	_, err = q.dead.Delete(ctx, id)
	return err
}
