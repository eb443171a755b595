package models

import "time"

// SubscriptionStatus is the cached entitlement verdict for this device.
// It is overwritten wholesale on every successful online refresh and only
// consulted (never mutated) while offline.
type SubscriptionStatus struct {
	IsValid            bool       `json:"is_valid"`
	Tier               int        `json:"tier"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty"`
	LastVerifiedOnline time.Time  `json:"last_verified_online"`
}

// KeyRecord is one persisted symmetric key for a premium content id. The key
// and salt are base64-encoded for JSON storage.
type KeyRecord struct {
	ContentID string    `json:"content_id"`
	Key       string    `json:"key"`
	Salt      string    `json:"salt"`
	CreatedAt time.Time `json:"created_at"`
}
