package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/serenity-app/serenity/internal/cryptox"
	"github.com/serenity-app/serenity/internal/filex"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/store"
)

const (
	// DefaultQuota is the global cache size budget.
	DefaultQuota = 500 * 1024 * 1024
	// DefaultExpiration is the age floor below which files are never evicted.
	DefaultExpiration = 30 * 24 * time.Hour

	// Eviction starts above the high-water fraction of the quota and stops
	// once usage falls to the low-water fraction.
	highWater = 0.9
	lowWater  = 0.7
)

// Usage summarizes cache occupancy.
type Usage struct {
	TotalSize      int64   `json:"total_size"`
	UsedPercentage float64 `json:"used_percentage"`
	Limit          int64   `json:"limit"`
}

// Config tunes the cache manager. Zero values fall back to defaults.
type Config struct {
	BaseDir    string
	Quota      int64
	Expiration time.Duration
}

// Manager owns the on-disk asset cache and its persisted index. Index
// mutations are serialized by a mutex and written through one store
// transaction each, keeping TotalSize equal to the sum of entry sizes.
type Manager struct {
	cfg     Config
	index   *store.Singleton[models.CacheIndex]
	enc     *cryptox.Service
	fetcher Fetcher
	log     logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func NewManager(s *store.Store, enc *cryptox.Service, fetcher Fetcher, cfg Config, log logging.Logger) (*Manager, error) {
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultQuota
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}

	base, err := filex.EnsureDir(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = base

	return &Manager{
		cfg:      cfg,
		index:    store.NewSingleton[models.CacheIndex](s, store.CollectionCacheIndex),
		enc:      enc,
		fetcher:  fetcher,
		log:      log,
		now:      time.Now,
		inflight: make(map[string]chan struct{}),
	}, nil
}

// LocalFilePath returns where a file of the given name and type lives (or
// would live) on disk.
func (m *Manager) LocalFilePath(fileName string, assetType models.AssetType) string {
	return filepath.Join(m.cfg.BaseDir, string(assetType), fileName)
}

// DownloadFile fetches url into the cache under fileName, optionally
// encrypting the result for contentID, and returns the final path. A file
// already cached under that name short-circuits without a second download;
// concurrent calls for the same name collapse into one fetch.
func (m *Manager) DownloadFile(ctx context.Context, url, fileName string, assetType models.AssetType, onProgress ProgressFunc, encrypt bool, contentID string) (string, error) {
	m.lockName(fileName)
	defer m.unlockName(fileName)

	if err := m.EnsureStorageSpace(ctx, assetType); err != nil {
		m.log.Warn(ctx, "eviction before download failed", "error", err)
	}

	plainPath := m.LocalFilePath(fileName, assetType)

	// Idempotent re-download avoidance: either form of the file counts.
	for _, candidate := range []string{plainPath, plainPath + cryptox.EncryptedSuffix} {
		if existing := m.resolve(ctx, candidate); existing != "" {
			if onProgress != nil {
				onProgress(1)
			}
			return existing, nil
		}
	}

	if _, err := filex.EnsureDir(filepath.Dir(plainPath)); err != nil {
		return "", err
	}

	if err := m.fetcher.Fetch(ctx, url, plainPath, onProgress); err != nil {
		return "", err
	}

	finalPath := plainPath
	if encrypt {
		encPath, err := m.enc.EncryptFile(ctx, plainPath, contentID)
		if err != nil {
			os.Remove(plainPath)
			return "", err
		}
		finalPath = encPath
	}

	size, err := filex.Size(finalPath)
	if err != nil {
		return "", err
	}

	err = m.updateIndex(ctx, func(ix *models.CacheIndex) {
		ix.Put(models.CacheEntry{
			Path:           finalPath,
			Size:           size,
			AssetType:      assetType,
			LastAccessedAt: m.now().UTC(),
		})
	})
	if err != nil {
		return "", err
	}

	m.log.Info(ctx, "asset downloaded", "path", finalPath, "size", size, "encrypted", encrypt)
	return finalPath, nil
}

// resolve returns path when it is present in the index and on disk,
// refreshing its last-access timestamp.
func (m *Manager) resolve(ctx context.Context, path string) string {
	ix, err := m.index.Get(ctx)
	if err != nil || ix == nil {
		return ""
	}
	if _, ok := ix.Entries[path]; !ok {
		return ""
	}
	if !filex.Exists(path) {
		return ""
	}

	if err := m.updateIndex(ctx, func(ix *models.CacheIndex) {
		ix.Touch(path, m.now().UTC())
	}); err != nil {
		m.log.Warn(ctx, "failed to refresh last access", "path", path, "error", err)
	}
	return path
}

// Resolve returns the cached path for fileName if present, refreshing its
// last-access timestamp. The boolean reports a cache hit.
func (m *Manager) Resolve(ctx context.Context, fileName string, assetType models.AssetType) (string, bool) {
	plainPath := m.LocalFilePath(fileName, assetType)
	for _, candidate := range []string{plainPath, plainPath + cryptox.EncryptedSuffix} {
		if p := m.resolve(ctx, candidate); p != "" {
			return p, true
		}
	}
	return "", false
}

// EnsureStorageSpace triggers eviction when usage crosses the high-water
// mark. Assets of priorityType are protected from the sweep.
func (m *Manager) EnsureStorageSpace(ctx context.Context, priorityType models.AssetType) error {
	ix, err := m.index.Get(ctx)
	if err != nil {
		return err
	}
	if ix == nil {
		return nil
	}

	if float64(ix.TotalSize) >= highWater*float64(m.cfg.Quota) {
		return m.CleanupOldFiles(ctx, priorityType)
	}
	return nil
}

// CleanupOldFiles evicts aged-out entries oldest-first until usage falls to
// the low-water mark or candidates run out. Entries of priorityType are
// excluded, and entries younger than the expiration window are never evicted
// regardless of quota pressure. Filesystem errors are logged, not returned.
func (m *Manager) CleanupOldFiles(ctx context.Context, priorityType models.AssetType) error {
	ix, err := m.index.Get(ctx)
	if err != nil {
		return err
	}
	if ix == nil {
		return nil
	}

	var candidates []models.CacheEntry
	for _, e := range ix.Entries {
		if priorityType != "" && e.AssetType == priorityType {
			continue
		}
		candidates = append(candidates, e)
	}
	sortByLastAccess(candidates)

	low := int64(lowWater * float64(m.cfg.Quota))
	running := ix.TotalSize
	now := m.now().UTC()

	var evicted []string
	for _, c := range candidates {
		if running <= low {
			break
		}
		if now.Sub(c.LastAccessedAt) <= m.cfg.Expiration {
			continue
		}

		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			m.log.Warn(ctx, "failed to remove evicted file", "path", c.Path, "error", err)
			continue
		}
		running -= c.Size
		evicted = append(evicted, c.Path)
	}

	if len(evicted) == 0 {
		return nil
	}

	if err := m.updateIndex(ctx, func(ix *models.CacheIndex) {
		for _, p := range evicted {
			ix.Remove(p)
		}
	}); err != nil {
		return err
	}

	m.log.Info(ctx, "cache eviction finished", "evicted", len(evicted))
	return nil
}

// DecryptedFilePath returns path unchanged for plain assets, or a temporary
// decrypted copy for encrypted ones. The caller must hand the temp path to
// CleanupDecryptedFile after playback.
func (m *Manager) DecryptedFilePath(ctx context.Context, path, contentID string) (string, error) {
	if !cryptox.IsEncrypted(path) {
		m.resolve(ctx, path)
		return path, nil
	}
	m.resolve(ctx, path)
	return m.enc.DecryptFile(ctx, path, contentID)
}

// CleanupDecryptedFile deletes a temporary decrypted copy; paths without the
// temp suffix are left alone.
func (m *Manager) CleanupDecryptedFile(ctx context.Context, tempPath string) error {
	return m.enc.CleanupDecryptedFile(ctx, tempPath)
}

// DeleteFile removes path from disk and from the index.
func (m *Manager) DeleteFile(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return m.updateIndex(ctx, func(ix *models.CacheIndex) {
		ix.Remove(path)
	})
}

// EntriesByType returns the cached entries of one asset type.
func (m *Manager) EntriesByType(ctx context.Context, assetType models.AssetType) ([]models.CacheEntry, error) {
	ix, err := m.index.Get(ctx)
	if err != nil {
		return nil, err
	}
	if ix == nil {
		return nil, nil
	}
	var result []models.CacheEntry
	for _, e := range ix.Entries {
		if e.AssetType == assetType {
			result = append(result, e)
		}
	}
	return result, nil
}

// StorageUsage reports current occupancy against the quota.
func (m *Manager) StorageUsage(ctx context.Context) (Usage, error) {
	ix, err := m.index.Get(ctx)
	if err != nil {
		return Usage{}, err
	}

	u := Usage{Limit: m.cfg.Quota}
	if ix != nil {
		u.TotalSize = ix.TotalSize
		u.UsedPercentage = 100 * float64(ix.TotalSize) / float64(m.cfg.Quota)
	}
	return u, nil
}

// ClearAllFiles removes every cached file and resets the index.
func (m *Manager) ClearAllFiles(ctx context.Context) error {
	ix, err := m.index.Get(ctx)
	if err != nil {
		return err
	}
	if ix == nil {
		return nil
	}

	for path := range ix.Entries {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.log.Warn(ctx, "failed to remove cached file", "path", path, "error", err)
		}
	}

	return m.index.Put(ctx, *models.NewCacheIndex())
}

// updateIndex applies fn to the persisted index inside one transaction.
func (m *Manager) updateIndex(ctx context.Context, fn func(ix *models.CacheIndex)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.index.Update(ctx, func(v *models.CacheIndex) (models.CacheIndex, error) {
		ix := v
		if ix == nil {
			ix = models.NewCacheIndex()
		}
		if ix.Entries == nil {
			ix.Entries = make(map[string]models.CacheEntry)
		}
		fn(ix)
		return *ix, nil
	})
}

// lockName blocks until this manager has no other download in flight for
// name, then claims it.
func (m *Manager) lockName(name string) {
	for {
		m.mu.Lock()
		ch, busy := m.inflight[name]
		if !busy {
			m.inflight[name] = make(chan struct{})
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		<-ch
	}
}

func (m *Manager) unlockName(name string) {
	m.mu.Lock()
	ch := m.inflight[name]
	delete(m.inflight, name)
	m.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func sortByLastAccess(entries []models.CacheEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessedAt.Before(entries[j].LastAccessedAt)
	})
}
