package models

import "time"

// CacheEntry describes one locally stored binary file.
type CacheEntry struct {
	Path           string    `json:"path"`
	Size           int64     `json:"size"`
	AssetType      AssetType `json:"asset_type"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// CacheIndex aggregates all cache entries. TotalSize must equal the sum of
// the entry sizes at all times; every mutation updates both together.
type CacheIndex struct {
	TotalSize int64                 `json:"total_size"`
	Entries   map[string]CacheEntry `json:"entries"`
}

// NewCacheIndex returns an empty index with a non-nil entry map.
func NewCacheIndex() *CacheIndex {
	return &CacheIndex{Entries: make(map[string]CacheEntry)}
}

// Put inserts or replaces the entry for e.Path and keeps TotalSize in step.
func (ix *CacheIndex) Put(e CacheEntry) {
	if old, ok := ix.Entries[e.Path]; ok {
		ix.TotalSize -= old.Size
	}
	ix.Entries[e.Path] = e
	ix.TotalSize += e.Size
}

// Remove deletes the entry for path and keeps TotalSize in step. It reports
// whether an entry was present.
func (ix *CacheIndex) Remove(path string) bool {
	e, ok := ix.Entries[path]
	if !ok {
		return false
	}
	ix.TotalSize -= e.Size
	delete(ix.Entries, path)
	return true
}

// Touch refreshes the last-access timestamp for path if present.
func (ix *CacheIndex) Touch(path string, now time.Time) {
	if e, ok := ix.Entries[path]; ok {
		e.LastAccessedAt = now
		ix.Entries[path] = e
	}
}
