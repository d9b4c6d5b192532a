// Package main is the entry point for the permsync server. It wires the
// application, seeds the instance registry, starts the cron triggers, and
// serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"permsync/internal/app"
	"permsync/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("permsync: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SeedInstances(ctx); err != nil {
		return err
	}

	scheduler, err := startScheduler(ctx, a)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Handler.Router(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startScheduler registers the periodic sync and classification triggers.
// Returns nil when no schedule is configured.
func startScheduler(ctx context.Context, a *app.App) (*cron.Cron, error) {
	if a.Cfg.SyncSchedule == "" && a.Cfg.ClassifySchedule == "" {
		return nil, nil
	}

	scheduler := cron.New()

	if a.Cfg.SyncSchedule != "" {
		_, err := scheduler.AddFunc(a.Cfg.SyncSchedule, func() {
			session, _, err := a.Sync.Run(ctx, "", "scheduler")
			if err != nil {
				a.Log.Error("scheduled sync failed", "error", err)
				return
			}
			a.Log.Info("scheduled sync finished",
				"session_id", session.ID,
				"synced", session.Synced,
				"added", session.Added,
				"modified", session.Modified,
				"removed", session.Removed,
				"failed", session.Failed)
		})
		if err != nil {
			return nil, err
		}
	}

	if a.Cfg.ClassifySchedule != "" {
		_, err := scheduler.AddFunc(a.Cfg.ClassifySchedule, func() {
			result, err := a.Orchestrator.Run(ctx, "scheduler")
			if err != nil {
				a.Log.Error("scheduled classification failed", "error", err)
				return
			}
			a.Log.Info("scheduled classification finished",
				"batch_id", result.BatchID,
				"classified", result.ClassifiedAccounts,
				"assignments", result.TotalAdded)
		})
		if err != nil {
			return nil, err
		}
	}

	scheduler.Start()
	return scheduler, nil
}
