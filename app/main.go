package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/anitrack/app/account"
	"github.com/lysyi3m/anitrack/app/anilist"
	"github.com/lysyi3m/anitrack/app/api"
	"github.com/lysyi3m/anitrack/app/cache"
	"github.com/lysyi3m/anitrack/app/cfg"
	"github.com/lysyi3m/anitrack/app/database"
	"github.com/lysyi3m/anitrack/app/notify"
	"github.com/lysyi3m/anitrack/app/schedule"
	"github.com/lysyi3m/anitrack/app/tasks"
	"github.com/lysyi3m/anitrack/app/watchlist"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(appCfg); err != nil {
		slog.Error("AniTrack stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting AniTrack", "version", appCfg.Version, "timezone", appCfg.Location.String())

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	kvStore := database.NewKVStore(db)
	documentStore := database.NewDocumentStore(db)

	policy, err := cache.LoadPolicy(appCfg.CachePolicyFile)
	if err != nil {
		return err
	}
	scheduleCache := cache.New(kvStore, policy)
	slog.Info("Cache policy loaded",
		"schedule_ttl", policy.Schedule, "details_ttl", policy.Details, "upcoming_ttl", policy.Upcoming)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	catalog := anilist.NewClient(appCfg.AniListURL, httpClient, appCfg.UserAgent, appCfg.RequestsPerMinute)
	fetcher := schedule.NewFetcher(catalog, scheduleCache)

	reconciler := watchlist.NewReconciler(fetcher, appCfg.FetchConcurrency).
		WithReleaseHold(appCfg.NotifyGraceWindow)
	storage := watchlist.NewStorage(kvStore)
	reconciler.Subscribe(storage.Listener())

	var sink notify.Sink = notify.LogSink{}
	if appCfg.NotifyURL != "" {
		sink = notify.NewWebhookSink(appCfg.NotifyURL, appCfg.NotifyChannelID, httpClient, appCfg.UserAgent)
		slog.Info("Release notifications enabled", "channel", appCfg.NotifyChannelID)
	}
	notifier := notify.NewNotifier(reconciler, sink, kvStore, appCfg.NotifyGraceWindow)

	syncer := account.NewSyncer(documentStore, reconciler, appCfg.UserID)

	scheduler := tasks.NewScheduler(appCfg.WorkerCount)
	scheduler.Register(tasks.Job{
		Type:       tasks.TaskTypeRefreshSchedules,
		Interval:   appCfg.RefreshInterval,
		RunOnStart: true,
		New:        func() tasks.TaskInterface { return tasks.NewRefreshSchedulesTask(reconciler) },
	})
	scheduler.Register(tasks.Job{
		Type:       tasks.TaskTypeRefillCalendar,
		RunOnStart: true,
		New:        func() tasks.TaskInterface { return tasks.NewRefillCalendarTask(reconciler, false) },
	})
	scheduler.Register(tasks.Job{
		Type:     tasks.TaskTypeNotifyReleases,
		Interval: appCfg.NotifyInterval,
		New:      func() tasks.TaskInterface { return tasks.NewNotifyReleasesTask(notifier) },
	})
	if syncer.Enabled() {
		scheduler.Register(tasks.Job{
			Type:       tasks.TaskTypeSyncAccount,
			Interval:   appCfg.AccountSyncInterval,
			RunOnStart: true,
			New:        func() tasks.TaskInterface { return tasks.NewSyncAccountTask(syncer, appCfg.UserID) },
		})
	}

	list, entries := storage.Load()
	reconciler.Load(list, entries)
	slog.Info("Watching list loaded", "anime", len(list), "calendar_entries", len(entries))

	// subscribed after Load so the startup refresh is left to RunOnStart
	reconciler.Subscribe(func(ev watchlist.Event) {
		if !ev.RefreshNeeded {
			return
		}
		slog.Debug("Tracked anime changed, refreshing schedules", "event", string(ev.Kind), "anime_id", ev.AnimeID)
		for _, taskType := range []tasks.TaskType{tasks.TaskTypeRefreshSchedules, tasks.TaskTypeRefillCalendar} {
			if err := scheduler.RunNow(taskType); err != nil {
				slog.Warn("Failed to trigger task", "type", string(taskType), "error", err)
			}
		}
	})

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount)
	scheduler.Start()
	defer func() {
		scheduler.Stop()
		slog.Info("Background scheduler stopped")
	}()

	handler := api.NewHandler(reconciler, fetcher, scheduleCache, syncer, notifier, scheduler, api.Options{
		Location: appCfg.Location,
		BaseUrl:  appCfg.BaseUrl,
		Port:     appCfg.Port,
		Version:  appCfg.Version,
	})
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "auth_required", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return runErr
}
