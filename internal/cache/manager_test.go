package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serenity-app/serenity/internal/cryptox"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/store"
)

// fakeFetcher writes fixed bytes to the destination and counts invocations.
type fakeFetcher struct {
	mu      sync.Mutex
	data    []byte
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return f.err
	}

	if err := os.WriteFile(destPath, f.data, 0o660); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newManager(t *testing.T, fetcher Fetcher, quota int64) *Manager {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	enc := cryptox.NewService(s, logging.Nop())
	m, err := NewManager(s, enc, fetcher, Config{
		BaseDir: filepath.Join(t.TempDir(), "assets"),
		Quota:   quota,
	}, logging.Nop())
	require.NoError(t, err)
	return m
}

func TestDownloadFile_RecordsIndexEntry(t *testing.T) {
	f := &fakeFetcher{data: []byte("audio-bytes")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	var lastFraction float64
	path, err := m.DownloadFile(ctx, "https://cdn/track.mp3", "track.mp3", models.AssetTypeAudio,
		func(fr float64) { lastFraction = fr }, false, "")
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, 1.0, lastFraction)

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(len("audio-bytes")), u.TotalSize)
	require.Equal(t, int64(DefaultQuota), u.Limit)
}

func TestDownloadFile_IdempotentByName(t *testing.T) {
	f := &fakeFetcher{data: []byte("audio-bytes")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	p1, err := m.DownloadFile(ctx, "https://cdn/track.mp3", "track.mp3", models.AssetTypeAudio, nil, false, "")
	require.NoError(t, err)
	p2, err := m.DownloadFile(ctx, "https://cdn/track.mp3", "track.mp3", models.AssetTypeAudio, nil, false, "")
	require.NoError(t, err)

	require.Equal(t, p1, p2)
	require.Equal(t, 1, f.callCount(), "second download must short-circuit")

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(len("audio-bytes")), u.TotalSize, "exactly one file accounted")
}

func TestDownloadFile_ConcurrentSameName_SingleFetch(t *testing.T) {
	f := &fakeFetcher{
		data:    []byte("audio-bytes"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	started := f.started
	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			p, err := m.DownloadFile(ctx, "https://cdn/track.mp3", "track.mp3", models.AssetTypeAudio, nil, false, "")
			require.NoError(t, err)
			results <- p
		}()
	}

	<-started
	close(f.release)

	p1, p2 := <-results, <-results
	require.Equal(t, p1, p2)
	require.Equal(t, 1, f.callCount(), "concurrent downloads of one file collapse into one fetch")

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(len("audio-bytes")), u.TotalSize)
}

func TestDownloadFile_EncryptedRoundTrip(t *testing.T) {
	f := &fakeFetcher{data: []byte("premium sleep story")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	encPath, err := m.DownloadFile(ctx, "https://cdn/sleep.mp3", "sleep.mp3", models.AssetTypeAudio, nil, true, "med-9")
	require.NoError(t, err)
	require.True(t, cryptox.IsEncrypted(encPath))
	require.NoFileExists(t, m.LocalFilePath("sleep.mp3", models.AssetTypeAudio), "plaintext removed after encryption")

	tempPath, err := m.DecryptedFilePath(ctx, encPath, "med-9")
	require.NoError(t, err)
	require.NotEqual(t, encPath, tempPath)

	plain, err := os.ReadFile(tempPath)
	require.NoError(t, err)
	require.Equal(t, "premium sleep story", string(plain))

	require.NoError(t, m.CleanupDecryptedFile(ctx, tempPath))
	require.NoFileExists(t, tempPath)
	require.FileExists(t, encPath, "encrypted original intact after temp cleanup")
}

func TestDecryptedFilePath_PlainAssetUnchanged(t *testing.T) {
	f := &fakeFetcher{data: []byte("free content")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	path, err := m.DownloadFile(ctx, "https://cdn/free.mp3", "free.mp3", models.AssetTypeAudio, nil, false, "")
	require.NoError(t, err)

	got, err := m.DecryptedFilePath(ctx, path, "")
	require.NoError(t, err)
	require.Equal(t, path, got)
}

func TestCleanupOldFiles_EvictsAgedLRUDownToLowWater(t *testing.T) {
	f := &fakeFetcher{data: make([]byte, 300)}
	m := newManager(t, f, 1000)
	ctx := context.Background()

	// Three 300-byte files downloaded 40, 35 and 32 days ago.
	for i, age := range []time.Duration{40, 35, 32} {
		m.now = func() time.Time { return time.Now().Add(-age * 24 * time.Hour) }
		_, err := m.DownloadFile(ctx, "https://cdn/a", fmt.Sprintf("img-%d.jpg", i), models.AssetTypeImage, nil, false, "")
		require.NoError(t, err)
	}
	m.now = time.Now

	before, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(900), before.TotalSize)

	require.NoError(t, m.CleanupOldFiles(ctx, models.AssetTypeAudio))

	after, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, after.TotalSize, before.TotalSize)
	require.LessOrEqual(t, after.TotalSize, int64(700), "usage must fall to the low-water mark")

	// The oldest file went first.
	require.NoFileExists(t, m.LocalFilePath("img-0.jpg", models.AssetTypeImage))
	require.FileExists(t, m.LocalFilePath("img-2.jpg", models.AssetTypeImage))
}

func TestCleanupOldFiles_NeverEvictsYoungFiles(t *testing.T) {
	f := &fakeFetcher{data: make([]byte, 300)}
	m := newManager(t, f, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.DownloadFile(ctx, "https://cdn/a", fmt.Sprintf("img-%d.jpg", i), models.AssetTypeImage, nil, false, "")
		require.NoError(t, err)
	}

	require.NoError(t, m.CleanupOldFiles(ctx, models.AssetTypeAudio))

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(900), u.TotalSize, "files inside the age floor survive quota pressure")
}

func TestCleanupOldFiles_PriorityTypeProtected(t *testing.T) {
	f := &fakeFetcher{data: make([]byte, 300)}
	m := newManager(t, f, 1000)
	ctx := context.Background()

	m.now = func() time.Time { return time.Now().Add(-60 * 24 * time.Hour) }
	for i := 0; i < 3; i++ {
		_, err := m.DownloadFile(ctx, "https://cdn/a", fmt.Sprintf("track-%d.mp3", i), models.AssetTypeAudio, nil, false, "")
		require.NoError(t, err)
	}
	m.now = time.Now

	require.NoError(t, m.CleanupOldFiles(ctx, models.AssetTypeAudio))

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(900), u.TotalSize, "the type being downloaded is protected from self-eviction")
}

func TestDeleteFile_UpdatesIndex(t *testing.T) {
	f := &fakeFetcher{data: []byte("bytes")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	path, err := m.DownloadFile(ctx, "https://cdn/a", "a.mp3", models.AssetTypeAudio, nil, false, "")
	require.NoError(t, err)

	require.NoError(t, m.DeleteFile(ctx, path))
	require.NoFileExists(t, path)

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Zero(t, u.TotalSize)
}

func TestClearAllFiles(t *testing.T) {
	f := &fakeFetcher{data: []byte("bytes")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	p1, err := m.DownloadFile(ctx, "https://cdn/a", "a.mp3", models.AssetTypeAudio, nil, false, "")
	require.NoError(t, err)
	p2, err := m.DownloadFile(ctx, "https://cdn/b", "b.jpg", models.AssetTypeImage, nil, false, "")
	require.NoError(t, err)

	require.NoError(t, m.ClearAllFiles(ctx))
	require.NoFileExists(t, p1)
	require.NoFileExists(t, p2)

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.Zero(t, u.TotalSize)
}

func TestResolve_TouchesLastAccess(t *testing.T) {
	f := &fakeFetcher{data: []byte("bytes")}
	m := newManager(t, f, DefaultQuota)
	ctx := context.Background()

	old := time.Now().Add(-45 * 24 * time.Hour)
	m.now = func() time.Time { return old }
	_, err := m.DownloadFile(ctx, "https://cdn/a", "a.mp3", models.AssetTypeAudio, nil, false, "")
	require.NoError(t, err)

	// Resolving the file refreshes its last-access time, pulling it back
	// inside the age floor.
	m.now = time.Now
	_, hit := m.Resolve(ctx, "a.mp3", models.AssetTypeAudio)
	require.True(t, hit)

	require.NoError(t, m.CleanupOldFiles(ctx, models.AssetTypeImage))

	u, err := m.StorageUsage(ctx)
	require.NoError(t, err)
	require.NotZero(t, u.TotalSize, "recently resolved file must not be evicted")
}
