// Package app wires the offline core together and runs its periodic
// triggers: the scheduled sync drain, the entitlement refresh, the daily
// cache sweep and the connectivity watcher that drains eagerly when the
// device comes back online.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/serenity-app/serenity/internal/cache"
	"github.com/serenity-app/serenity/internal/config"
	"github.com/serenity-app/serenity/internal/content"
	"github.com/serenity-app/serenity/internal/cryptox"
	"github.com/serenity-app/serenity/internal/entitlement"
	"github.com/serenity-app/serenity/internal/journal"
	"github.com/serenity-app/serenity/internal/logging"
	"github.com/serenity-app/serenity/internal/models"
	"github.com/serenity-app/serenity/internal/prefs"
	"github.com/serenity-app/serenity/internal/remote"
	"github.com/serenity-app/serenity/internal/store"
	"github.com/serenity-app/serenity/internal/syncq"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	store     *store.Store
	client    *remote.Client
	syncSvc   *syncq.Service
	validator *entitlement.Validator
	cacheMgr  *cache.Manager
	content   *content.Service
	journal   *journal.Service
	prefs     *prefs.Service

	mu     sync.Mutex
	online bool
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	s, err := store.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	client := remote.NewClient(cfg.ServerBaseURL)

	var fetcher cache.Fetcher
	if cfg.S3Bucket != "" {
		fetcher, err = cache.NewS3Fetcher(ctx, cache.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 fetcher init error: %w", err)
		}
	} else {
		fetcher = cache.NewHTTPFetcher()
	}

	enc := cryptox.NewService(s, logger)
	cacheMgr, err := cache.NewManager(s, enc, fetcher, cache.Config{
		BaseDir: cfg.CacheDir,
		Quota:   cfg.CacheQuota,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	queue := syncq.NewQueue(s, logger)
	syncSvc := syncq.NewService(s, queue, logger)

	validator := entitlement.NewValidator(s, client, client, []byte(cfg.EntitlementKey), logger)
	contentSvc := content.NewService(s, cacheMgr, enc, queue, client, client, validator, logger)
	validator.SetPurger(contentSvc)

	journalSvc := journal.NewService(s, queue, client, logger)
	prefsSvc := prefs.NewService(s, queue, client, client.Achievements(), logger)

	syncSvc.RegisterHandler(models.EntityTypeContent, contentSvc.Handler())
	syncSvc.RegisterHandler(models.EntityTypeJournalEntry, journalSvc.Handler())
	syncSvc.RegisterHandler(models.EntityTypeUserPreference, prefsSvc.SettingsHandler())
	syncSvc.RegisterHandler(models.EntityTypeAchievement, prefsSvc.AchievementHandler())

	return &App{
		config:    cfg,
		logger:    logger,
		store:     s,
		client:    client,
		syncSvc:   syncSvc,
		validator: validator,
		cacheMgr:  cacheMgr,
		content:   contentSvc,
		journal:   journalSvc,
		prefs:     prefsSvc,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startOnlineStatusWatcher polls connectivity and triggers an eager drain on
// every offline-to-online transition.
func (app *App) startOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			connected := app.client.IsConnected(probeCtx)
			cancel()

			app.mu.Lock()
			wasOnline := app.online
			app.online = connected
			app.mu.Unlock()

			if connected && !wasOnline {
				app.logger.Info(ctx, "connectivity restored, draining sync queue")
				app.drain(ctx)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (app *App) drain(ctx context.Context) {
	needed, err := app.syncSvc.IsSyncNeeded(ctx)
	if err != nil {
		app.logger.Error(ctx, "sync check failed", "error", err)
		return
	}
	if !needed {
		return
	}
	if _, err := app.syncSvc.ProcessSyncQueue(ctx); err != nil {
		app.logger.Error(ctx, "sync drain failed", "error", err)
	}
}

// startScheduler registers the periodic jobs and blocks until ctx is done.
func (app *App) startScheduler(ctx context.Context) error {
	c := cron.New()

	drainSpec := fmt.Sprintf("@every %s", app.config.SyncInterval)
	if _, err := c.AddFunc(drainSpec, func() { app.drain(ctx) }); err != nil {
		return fmt.Errorf("schedule drain: %w", err)
	}

	refreshSpec := fmt.Sprintf("@every %s", app.config.EntitlementRefreshInterval)
	if _, err := c.AddFunc(refreshSpec, func() {
		if err := app.validator.Refresh(ctx); err != nil {
			app.logger.Warn(ctx, "entitlement refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule entitlement refresh: %w", err)
	}

	if _, err := c.AddFunc("@daily", func() {
		if err := app.cacheMgr.CleanupOldFiles(ctx, ""); err != nil {
			app.logger.Warn(ctx, "cache sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.validator.Initialize(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startOnlineStatusWatcher(ctx, app.config.OnlineCheckInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.startScheduler(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "store close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
