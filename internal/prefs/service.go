// Package prefs manages the user settings blob and unlocked achievements.
// Both are written locally first and pushed to the backend through the sync
// queue, like every other mutation in the core.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/remote"
	"github.com/serenity-app/serenity/internal/store"
	"github.com/serenity-app/serenity/internal/syncq"
)

// settingsID is the fixed id the settings blob travels under in the queue.
const settingsID = "settings"

// Service owns user settings and achievements.
type Service struct {
	settings     *store.Singleton[models.UserSettings]
	achievements *store.Collection[models.Achievement]
	queue        *syncq.Queue
	prefAPI      remote.PreferenceAPI
	achAPI       remote.AchievementAPI
	log          logging.Logger
	now          func() time.Time
}

func NewService(s *store.Store, queue *syncq.Queue, prefAPI remote.PreferenceAPI, achAPI remote.AchievementAPI, log logging.Logger) *Service {
	return &Service{
		settings: store.NewSingleton[models.UserSettings](s, store.CollectionUserSettings),
		achievements: store.NewCollection(s, store.CollectionAchievements,
			func(a *models.Achievement) string { return a.ID }),
		queue:   queue,
		prefAPI: prefAPI,
		achAPI:  achAPI,
		log:     log,
		now:     time.Now,
	}
}

// Settings returns the current settings blob, or defaults when none has been
// saved yet.
func (s *Service) Settings(ctx context.Context) (models.UserSettings, error) {
	cur, err := s.settings.Get(ctx)
	if err != nil {
		return models.UserSettings{}, err
	}
	if cur == nil {
		return models.UserSettings{ID: settingsID, ReminderHour: 9}, nil
	}
	return *cur, nil
}

// SaveSettings persists the blob locally and queues it for the backend.
func (s *Service) SaveSettings(ctx context.Context, settings models.UserSettings) (models.UserSettings, error) {
	settings.ID = settingsID
	settings.IsSynced = false

	if err := s.settings.Put(ctx, settings); err != nil {
		return models.UserSettings{}, err
	}

	payload, err := json.Marshal(settings)
	if err != nil {
		return models.UserSettings{}, err
	}
	if _, err := s.queue.Enqueue(ctx, models.EntityTypeUserPreference, settingsID, models.OperationUpdate, payload); err != nil {
		return models.UserSettings{}, err
	}
	return settings, nil
}

// Unlock records a newly earned achievement and queues its report.
func (s *Service) Unlock(ctx context.Context, name string) (models.Achievement, error) {
	a := models.Achievement{
		ID:         uuid.NewString(),
		Name:       name,
		UnlockedAt: s.now().UTC(),
	}

	saved, err := s.achievements.Save(ctx, a)
	if err != nil {
		return models.Achievement{}, err
	}

	payload, err := json.Marshal(saved)
	if err != nil {
		return models.Achievement{}, err
	}
	if _, err := s.queue.Enqueue(ctx, models.EntityTypeAchievement, saved.ID, models.OperationCreate, payload); err != nil {
		return models.Achievement{}, err
	}

	s.log.Info(ctx, "achievement unlocked", "name", name)
	return saved, nil
}

// Achievements lists everything unlocked on this device.
func (s *Service) Achievements(ctx context.Context) ([]models.Achievement, error) {
	return s.achievements.GetAll(ctx)
}

// SettingsHandler replays queued settings pushes. A confirmed push flips the
// local blob to synced unless it changed again in the meantime.
func (s *Service) SettingsHandler() syncq.Handler {
	return syncq.HandlerFunc(func(ctx context.Context, item models.SyncQueueItem) error {
		var settings models.UserSettings
		if err := json.Unmarshal(item.Payload, &settings); err != nil {
			return fmt.Errorf("decode settings payload %s: %w", item.ID, err)
		}
		if err := s.prefAPI.Put(ctx, settings); err != nil {
			return err
		}

		return s.settings.Update(ctx, func(cur *models.UserSettings) (models.UserSettings, error) {
			if cur == nil {
				settings.IsSynced = true
				return settings, nil
			}
			if unsyncedCopy(*cur) != unsyncedCopy(settings) {
				// A newer local edit exists; leave it unsynced.
				return *cur, nil
			}
			synced := settings
			synced.IsSynced = true
			return synced, nil
		})
	})
}

// AchievementHandler replays queued achievement reports.
func (s *Service) AchievementHandler() syncq.Handler {
	return syncq.HandlerFunc(func(ctx context.Context, item models.SyncQueueItem) error {
		var a models.Achievement
		if err := json.Unmarshal(item.Payload, &a); err != nil {
			return fmt.Errorf("decode achievement payload %s: %w", item.ID, err)
		}
		if err := s.achAPI.Create(ctx, a); err != nil {
			return err
		}

		local, err := s.achievements.GetByID(ctx, a.ID)
		if err != nil || local == nil {
			return err
		}
		local.IsSynced = true
		_, err = s.achievements.Save(ctx, *local)
		return err
	})
}

func unsyncedCopy(s models.UserSettings) models.UserSettings {
	s.IsSynced = false
	return s
}
