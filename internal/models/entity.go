// Package models defines the record types persisted by the offline core.
package models

import "time"

// EntityType classifies a synchronizable record kind.
type EntityType string

const (
	EntityTypeContent        EntityType = "content"
	EntityTypeJournalEntry   EntityType = "journalEntry"
	EntityTypeUserPreference EntityType = "userPreference"
	EntityTypeAchievement    EntityType = "achievement"
)

// AssetType classifies a cached binary file.
type AssetType string

const (
	AssetTypeAudio    AssetType = "audio"
	AssetTypeImage    AssetType = "image"
	AssetTypeDocument AssetType = "document"
)

// Meditation is a piece of guided content. Tier 0 content is free; any
// higher tier requires a matching subscription.
type Meditation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	AudioURL     string    `json:"audio_url"`
	DurationSec  int       `json:"duration_sec"`
	Tier         int       `json:"tier"`
	IsDownloaded bool      `json:"is_downloaded"`
	LocalPath    string    `json:"local_path,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JournalEntry is a user-authored note. IsSynced flips to true once the
// entry has been confirmed against the backend.
type JournalEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Mood      string    `json:"mood,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsSynced  bool      `json:"is_synced"`
	Deleted   bool      `json:"deleted"`
}

// UserSettings is the singleton preference blob.
type UserSettings struct {
	ID                   string `json:"id"`
	ReminderHour         int    `json:"reminder_hour"`
	ReminderEnabled      bool   `json:"reminder_enabled"`
	PreferredNarrator    string `json:"preferred_narrator,omitempty"`
	DownloadOverCellular bool   `json:"download_over_cellular"`
	IsSynced             bool   `json:"is_synced"`
}

// Achievement marks a milestone unlocked on this device.
type Achievement struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UnlockedAt time.Time `json:"unlocked_at"`
	IsSynced   bool      `json:"is_synced"`
}
