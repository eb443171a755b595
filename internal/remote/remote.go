// Package remote defines the capability interfaces the offline core calls to
// reach the backend, plus an HTTP implementation. Any transport satisfying
// the interfaces is acceptable; tests substitute in-memory fakes.
package remote

import (
	"context"

	"github.com/serenity-app/serenity/internal/models"
)

// Connectivity answers whether the backend is currently reachable. The core
// polls it before attempting a refresh or a queue drain.
type Connectivity interface {
	IsConnected(ctx context.Context) bool
}

// ContentAPI serves the meditation catalog and accepts download-state
// reports replayed from the sync queue.
type ContentAPI interface {
	FetchAll(ctx context.Context) ([]models.Meditation, error)
	FetchByID(ctx context.Context, id string) (*models.Meditation, error)
	ReportDownload(ctx context.Context, contentID string, downloaded bool) error
}

// JournalAPI applies journal mutations remotely during a queue drain.
type JournalAPI interface {
	Create(ctx context.Context, entry models.JournalEntry) error
	Update(ctx context.Context, entry models.JournalEntry) error
	Delete(ctx context.Context, id string) error
}

// PreferenceAPI pushes the user settings blob.
type PreferenceAPI interface {
	Put(ctx context.Context, settings models.UserSettings) error
}

// AchievementAPI reports unlocked achievements.
type AchievementAPI interface {
	Create(ctx context.Context, a models.Achievement) error
}

// EntitlementAPI fetches the signed subscription entitlement token for the
// current user.
type EntitlementAPI interface {
	GetEntitlement(ctx context.Context) (string, error)
}
