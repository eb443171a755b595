package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of mutation recorded in the sync queue.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// SyncQueueItem is one pending mutation against a remote entity. Items are
// appended when a local change cannot be confirmed remotely and are drained
// oldest-first to preserve causal order per entity.
type SyncQueueItem struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  Operation       `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Attempts   int             `json:"attempts"`
}

// DeadLetterItem is a queue item that exhausted its retry budget. It keeps
// the original item plus the last failure for later inspection or requeue.
type DeadLetterItem struct {
	Item      SyncQueueItem `json:"item"`
	LastError string        `json:"last_error,omitempty"`
	FailedAt  time.Time     `json:"failed_at"`
}
