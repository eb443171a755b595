// Package common defines shared constants and sentinel errors used across
// the offline core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")

	// Sync errors.
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNoHandler      = errors.New("no handler registered for entity type")

	// Cache errors.
	ErrDownloadFailed = errors.New("download failed")
	ErrFileNotCached  = errors.New("file not in cache")
	ErrNotEncrypted   = errors.New("file is not an encrypted asset")
	ErrNotTempFile    = errors.New("file is not a temporary decrypted copy")

	// Encryption errors.
	ErrKeyNotFound = errors.New("encryption key not found")

	// Entitlement errors.
	ErrOffline     = errors.New("no connectivity")
	ErrNotEntitled = errors.New("subscription does not cover this content")
)
