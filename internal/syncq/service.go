package syncq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/serenity-app/serenity/internal/common"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/store"
)

// MaxAttempts is the retry budget per queue item. An item seen at the budget
// is parked in the dead-letter collection instead of being retried again.
const MaxAttempts = 5

// Handler applies one queued mutation remotely. Implementations mark the
// corresponding local record as synced on success.
type Handler interface {
	Apply(ctx context.Context, item models.SyncQueueItem) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, item models.SyncQueueItem) error

func (f HandlerFunc) Apply(ctx context.Context, item models.SyncQueueItem) error {
	return f(ctx, item)
}

type syncMeta struct {
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Service drains the queue. At most one drain runs at a time; a call made
// while another drain is in flight is a no-op.
type Service struct {
	queue    *Queue
	meta     *store.Singleton[syncMeta]
	handlers map[models.EntityType]Handler
	log      logging.Logger
	now      func() time.Time

	syncing atomic.Bool
}

func NewService(s *store.Store, queue *Queue, log logging.Logger) *Service {
	return &Service{
		queue:    queue,
		meta:     store.NewSingleton[syncMeta](s, store.CollectionSyncMeta),
		handlers: make(map[models.EntityType]Handler),
		log:      log,
		now:      time.Now,
	}
}

// RegisterHandler installs the remote-apply handler for one entity type.
func (s *Service) RegisterHandler(et models.EntityType, h Handler) {
	s.handlers[et] = h
}

// ProcessSyncQueue runs one drain: lists all pending items oldest-first and
// attempts each against its handler. It returns false immediately when a
// drain is already in flight. Per-item remote failures are absorbed (the item
// stays queued for the next drain); only queue bookkeeping errors are
// returned.
func (s *Service) ProcessSyncQueue(ctx context.Context) (bool, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		s.log.Debug(ctx, "sync drain already in flight, skipping")
		return false, nil
	}
	defer s.syncing.Store(false)

	items, err := s.queue.Pending(ctx)
	if err != nil {
		return false, err
	}

	var processed, failed, parked int
	for _, item := range items {
		if item.Attempts >= MaxAttempts {
			if err := s.queue.park(ctx, item, "retry budget exhausted"); err != nil {
				return false, err
			}
			s.log.Warn(ctx, "queue item moved to dead letter",
				"id", item.ID, "entity_type", item.EntityType, "entity_id", item.EntityID)
			parked++
			continue
		}

		// Count the attempt before dispatching so a crash mid-sync still
		// consumes budget.
		item.Attempts++
		if err := s.queue.save(ctx, item); err != nil {
			return false, err
		}

		if err := s.applyItem(ctx, item); err != nil {
			s.log.Warn(ctx, "queue item sync failed",
				"id", item.ID, "entity_type", item.EntityType, "entity_id", item.EntityID,
				"attempts", item.Attempts, "error", err)
			failed++
			continue
		}

		if err := s.queue.remove(ctx, item.ID); err != nil {
			return false, err
		}
		processed++
	}

	if err := s.meta.Put(ctx, syncMeta{LastSyncAt: s.now().UTC()}); err != nil {
		return false, err
	}

	s.log.Info(ctx, "sync drain finished",
		"processed", processed, "failed", failed, "dead_lettered", parked)
	return true, nil
}

func (s *Service) applyItem(ctx context.Context, item models.SyncQueueItem) error {
	h, ok := s.handlers[item.EntityType]
	if !ok {
		return common.ErrNoHandler
	}
	return h.Apply(ctx, item)
}

// IsSyncNeeded reports whether any items are queued.
func (s *Service) IsSyncNeeded(ctx context.Context) (bool, error) {
	empty, err := s.queue.IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// LastSyncTimestamp returns when the last drain completed, or the zero time
// if no drain has run yet.
func (s *Service) LastSyncTimestamp(ctx context.Context) (time.Time, error) {
	m, err := s.meta.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if m == nil {
		return time.Time{}, nil
	}
	return m.LastSyncAt, nil
}
