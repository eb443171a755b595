// Package content manages the meditation catalog: local-first listing with
// opportunistic remote refresh, offline downloads gated by subscription tier,
// and encrypted playback of premium assets.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"

	"github.com/serenity-app/serenity/internal/cache"
	"github.com/serenity-app/serenity/internal/common"
	"github.com/serenity-app/serenity/internal/cryptox"
	"github.com/serenity-app/serenity/internal/entitlement"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/remote"
	"github.com/serenity-app/serenity/internal/store"
	"github.com/serenity-app/serenity/internal/syncq"
)

// downloadReport is the sync queue payload for download-state changes.
type downloadReport struct {
	Downloaded bool `json:"downloaded"`
}

// Service is the catalog facade. Reads come from the local store; the remote
// catalog is merged in whenever the backend is reachable, preserving local
// download state.
type Service struct {
	items     *store.Collection[models.Meditation]
	cache     *cache.Manager
	enc       *cryptox.Service
	queue     *syncq.Queue
	api       remote.ContentAPI
	conn      remote.Connectivity
	validator *entitlement.Validator
	log       logging.Logger
}

func NewService(s *store.Store, cm *cache.Manager, enc *cryptox.Service, queue *syncq.Queue, api remote.ContentAPI, conn remote.Connectivity, v *entitlement.Validator, log logging.Logger) *Service {
	return &Service{
		items: store.NewCollection(s, store.CollectionMeditations,
			func(m *models.Meditation) string { return m.ID }),
		cache:     cm,
		enc:       enc,
		queue:     queue,
		api:       api,
		conn:      conn,
		validator: v,
		log:       log,
	}
}

// List returns the catalog from the local store, refreshing it from the
// backend first when reachable. A failed refresh degrades to the local copy.
func (s *Service) List(ctx context.Context) ([]models.Meditation, error) {
	if s.conn.IsConnected(ctx) {
		if err := s.refresh(ctx); err != nil {
			s.log.Warn(ctx, "catalog refresh failed, serving local copy", "error", err)
		}
	}
	return s.items.GetAll(ctx)
}

// Get returns one meditation, falling back to the backend when it is not
// stored locally yet.
func (s *Service) Get(ctx context.Context, id string) (*models.Meditation, error) {
	med, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if med != nil {
		return med, nil
	}

	if !s.conn.IsConnected(ctx) {
		return nil, common.ErrNotFound
	}
	remoteMed, err := s.api.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if remoteMed == nil {
		return nil, common.ErrNotFound
	}
	saved, err := s.items.Save(ctx, *remoteMed)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// refresh pulls the remote catalog and merges it into the local store. Local
// download state survives the merge so a catalog update never orphans files
// already on disk.
func (s *Service) refresh(ctx context.Context) error {
	fetched, err := s.api.FetchAll(ctx)
	if err != nil {
		return err
	}

	for _, med := range fetched {
		local, err := s.items.GetByID(ctx, med.ID)
		if err != nil {
			return err
		}
		if local != nil {
			med.IsDownloaded = local.IsDownloaded
			med.LocalPath = local.LocalPath
		}
		if _, err := s.items.Save(ctx, med); err != nil {
			return err
		}
	}

	s.log.Info(ctx, "catalog refreshed", "count", len(fetched))
	return nil
}

// DownloadForOffline fetches the meditation's audio into the cache,
// encrypting it when the content is premium, and queues a download report
// for the backend. The caller's subscription must cover the content's tier.
func (s *Service) DownloadForOffline(ctx context.Context, id string, onProgress cache.ProgressFunc) (*models.Meditation, error) {
	med, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if med.Tier > 0 && !s.validator.Validate(ctx, med.Tier) {
		return nil, common.ErrNotEntitled
	}

	encrypt := med.Tier > 0
	localPath, err := s.cache.DownloadFile(ctx, med.AudioURL, assetFileName(med), models.AssetTypeAudio, onProgress, encrypt, med.ID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", med.ID, err)
	}

	med.IsDownloaded = true
	med.LocalPath = localPath
	saved, err := s.items.Save(ctx, *med)
	if err != nil {
		return nil, err
	}

	if err := s.enqueueReport(ctx, med.ID, true); err != nil {
		s.log.Warn(ctx, "failed to queue download report", "id", med.ID, "error", err)
	}
	return &saved, nil
}

// RemoveDownload deletes the cached asset, discards its encryption key, and
// queues a report telling the backend the device no longer holds a copy.
func (s *Service) RemoveDownload(ctx context.Context, id string) error {
	med, err := s.items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if med == nil || !med.IsDownloaded {
		return nil
	}

	if err := s.removeAsset(ctx, med); err != nil {
		return err
	}
	if err := s.enqueueReport(ctx, med.ID, false); err != nil {
		s.log.Warn(ctx, "failed to queue download report", "id", med.ID, "error", err)
	}
	return nil
}

// PreparePlayback returns a playable path for a downloaded meditation,
// decrypting premium assets into a temporary copy. The caller must pass the
// returned path to FinishPlayback when done.
func (s *Service) PreparePlayback(ctx context.Context, id string) (string, error) {
	med, err := s.items.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if med == nil {
		return "", common.ErrNotFound
	}
	if !med.IsDownloaded || med.LocalPath == "" {
		return "", common.ErrFileNotCached
	}

	if med.Tier > 0 && !s.validator.Validate(ctx, med.Tier) {
		return "", common.ErrNotEntitled
	}
	return s.cache.DecryptedFilePath(ctx, med.LocalPath, med.ID)
}

// FinishPlayback removes the temporary decrypted copy produced by
// PreparePlayback. Plain asset paths pass through untouched.
func (s *Service) FinishPlayback(ctx context.Context, playbackPath string) error {
	return s.cache.CleanupDecryptedFile(ctx, playbackPath)
}

// PurgePremiumDownloads removes every downloaded premium asset along with
// its encryption key. The entitlement validator calls this when a
// subscription is confirmed lost.
func (s *Service) PurgePremiumDownloads(ctx context.Context) error {
	premium, err := s.items.Query(ctx, func(m models.Meditation) bool {
		return m.Tier > 0 && m.IsDownloaded
	})
	if err != nil {
		return err
	}

	for i := range premium {
		if err := s.removeAsset(ctx, &premium[i]); err != nil {
			return err
		}
	}

	if len(premium) > 0 {
		s.log.Info(ctx, "premium downloads purged", "count", len(premium))
	}
	return nil
}

// removeAsset deletes the cached file and key for med and clears its
// download state in the store.
func (s *Service) removeAsset(ctx context.Context, med *models.Meditation) error {
	if err := s.cache.DeleteFile(ctx, med.LocalPath); err != nil {
		return err
	}
	if cryptox.IsEncrypted(med.LocalPath) {
		if err := s.enc.RemoveKey(ctx, med.ID); err != nil {
			return err
		}
	}

	med.IsDownloaded = false
	med.LocalPath = ""
	_, err := s.items.Save(ctx, *med)
	return err
}

func (s *Service) enqueueReport(ctx context.Context, id string, downloaded bool) error {
	payload, err := json.Marshal(downloadReport{Downloaded: downloaded})
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, models.EntityTypeContent, id, models.OperationUpdate, payload)
	return err
}

// Handler replays queued download reports against the backend.
func (s *Service) Handler() syncq.Handler {
	return syncq.HandlerFunc(func(ctx context.Context, item models.SyncQueueItem) error {
		var report downloadReport
		if err := json.Unmarshal(item.Payload, &report); err != nil {
			return fmt.Errorf("decode download report %s: %w", item.ID, err)
		}
		return s.api.ReportDownload(ctx, item.EntityID, report.Downloaded)
	})
}

// assetFileName derives a stable cache file name from the meditation id and
// the extension of its audio URL.
func assetFileName(med *models.Meditation) string {
	ext := ".mp3"
	if u, err := url.Parse(med.AudioURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return med.ID + ext
}
