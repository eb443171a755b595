// Package journal provides offline-first CRUD over the user's journal.
// Every mutation lands in the local store immediately and is queued for
// replay against the backend; deletes are tombstoned locally until the
// backend confirms them.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/serenity-app/serenity/internal/common"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/remote"
	"github.com/serenity-app/serenity/internal/store"
	"github.com/serenity-app/serenity/internal/syncq"
)

// Service owns the journal collection and its pending mutations.
type Service struct {
	entries *store.Collection[models.JournalEntry]
	queue   *syncq.Queue
	api     remote.JournalAPI
	log     logging.Logger
	now     func() time.Time
}

func NewService(s *store.Store, queue *syncq.Queue, api remote.JournalAPI, log logging.Logger) *Service {
	return &Service{
		entries: store.NewCollection(s, store.CollectionJournal,
			func(e *models.JournalEntry) string { return e.ID }),
		queue: queue,
		api:   api,
		log:   log,
		now:   time.Now,
	}
}

// Create saves a new entry locally and queues its creation for the backend.
func (s *Service) Create(ctx context.Context, entry models.JournalEntry) (models.JournalEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := s.now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.IsSynced = false
	entry.Deleted = false

	saved, err := s.entries.Save(ctx, entry)
	if err != nil {
		return models.JournalEntry{}, err
	}
	if err := s.enqueue(ctx, saved, models.OperationCreate); err != nil {
		return models.JournalEntry{}, err
	}
	return saved, nil
}

// Update overwrites an existing entry locally and queues the change.
func (s *Service) Update(ctx context.Context, entry models.JournalEntry) (models.JournalEntry, error) {
	existing, err := s.entries.GetByID(ctx, entry.ID)
	if err != nil {
		return models.JournalEntry{}, err
	}
	if existing == nil || existing.Deleted {
		return models.JournalEntry{}, common.ErrNotFound
	}

	entry.CreatedAt = existing.CreatedAt
	entry.UpdatedAt = s.now().UTC()
	entry.IsSynced = false
	entry.Deleted = false

	saved, err := s.entries.Save(ctx, entry)
	if err != nil {
		return models.JournalEntry{}, err
	}
	if err := s.enqueue(ctx, saved, models.OperationUpdate); err != nil {
		return models.JournalEntry{}, err
	}
	return saved, nil
}

// Delete tombstones the entry locally and queues the deletion. The record
// stays in the store, hidden from listings, until the backend confirms.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil || existing.Deleted {
		return common.ErrNotFound
	}

	existing.Deleted = true
	existing.IsSynced = false
	existing.UpdatedAt = s.now().UTC()
	saved, err := s.entries.Save(ctx, *existing)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, saved, models.OperationDelete)
}

// List returns all live entries.
func (s *Service) List(ctx context.Context) ([]models.JournalEntry, error) {
	return s.entries.Query(ctx, func(e models.JournalEntry) bool {
		return !e.Deleted
	})
}

// Get returns one live entry.
func (s *Service) Get(ctx context.Context, id string) (*models.JournalEntry, error) {
	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Deleted {
		return nil, common.ErrNotFound
	}
	return entry, nil
}

func (s *Service) enqueue(ctx context.Context, entry models.JournalEntry, op models.Operation) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, models.EntityTypeJournalEntry, entry.ID, op, payload)
	return err
}

// Handler replays queued journal mutations against the backend. A confirmed
// create or update flips the local record to synced; a confirmed delete
// removes the tombstone.
func (s *Service) Handler() syncq.Handler {
	return syncq.HandlerFunc(func(ctx context.Context, item models.SyncQueueItem) error {
		switch item.Operation {
		case models.OperationCreate, models.OperationUpdate:
			var entry models.JournalEntry
			if err := json.Unmarshal(item.Payload, &entry); err != nil {
				return fmt.Errorf("decode journal payload %s: %w", item.ID, err)
			}

			var err error
			if item.Operation == models.OperationCreate {
				err = s.api.Create(ctx, entry)
			} else {
				err = s.api.Update(ctx, entry)
			}
			if err != nil {
				return err
			}
			return s.markSynced(ctx, entry.ID, entry.UpdatedAt)

		case models.OperationDelete:
			if err := s.api.Delete(ctx, item.EntityID); err != nil {
				return err
			}
			_, err := s.entries.Delete(ctx, item.EntityID)
			return err

		default:
			return fmt.Errorf("journal item %s: unknown operation %q", item.ID, item.Operation)
		}
	})
}

// markSynced flips IsSynced on the local record, but only when no newer
// local edit has landed since the replayed one was queued.
func (s *Service) markSynced(ctx context.Context, id string, syncedAt time.Time) error {
	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil || entry.Deleted {
		return nil
	}
	if entry.UpdatedAt.After(syncedAt) {
		return nil
	}

	entry.IsSynced = true
	_, err = s.entries.Save(ctx, *entry)
	return err
}
