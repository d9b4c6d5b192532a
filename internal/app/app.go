// Package app provides application-level wiring for permsync. The server
// and the CLI both assemble their dependencies through it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"permsync/internal/api"
	"permsync/internal/cache"
	"permsync/internal/classify"
	"permsync/internal/config"
	internaldb "permsync/internal/db"
	"permsync/internal/db/repository"
	"permsync/internal/reconcile"
)

// App holds the assembled application.
type App struct {
	Cfg *config.Config
	Log *slog.Logger

	WriteDB *sql.DB
	ReadDB  *sql.DB

	Instances       *repository.InstanceRepo
	Accounts        *repository.AccountRepo
	ChangeLog       *repository.ChangeLogRepo
	Rules           *repository.RuleRepo
	Classifications *repository.ClassificationRepo
	Assignments     *repository.AssignmentRepo
	Batches         *repository.BatchRepo
	Sessions        *repository.SessionRepo

	Cache        *cache.Cache
	Sync         *reconcile.Service
	Orchestrator *classify.Orchestrator
	RuleService  *classify.RuleService
	Handler      *api.Handler
}

// New opens the metastore, runs migrations, and wires every component.
func New(cfg *config.Config) (*App, error) {
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 0)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	if err := internaldb.RunMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("migrate metastore: %w", err)
	}

	a := &App{
		Cfg:     cfg,
		Log:     log,
		WriteDB: writeDB,
		ReadDB:  readDB,

		Instances:       repository.NewInstanceRepo(writeDB),
		Accounts:        repository.NewAccountRepo(writeDB),
		ChangeLog:       repository.NewChangeLogRepo(readDB),
		Rules:           repository.NewRuleRepo(writeDB),
		Classifications: repository.NewClassificationRepo(writeDB),
		Assignments:     repository.NewAssignmentRepo(writeDB),
		Batches:         repository.NewBatchRepo(writeDB),
		Sessions:        repository.NewSessionRepo(writeDB),
	}

	a.Cache = cache.New(cfg.RuleCacheTTL)

	reconciler := reconcile.NewReconciler(
		&reconcile.DriverSource{CatalogQPS: cfg.CatalogQPS},
		a.Accounts, cfg.SyncBatchSize, log)
	a.Sync = reconcile.NewService(a.Instances, a.Sessions, reconciler, cfg.SyncWorkers, log)
	// Facts changed: memoized rule evaluations are stale.
	a.Sync.OnDataChanged(a.Cache.InvalidateMemo)

	a.Orchestrator = classify.NewOrchestrator(
		a.Rules, a.Accounts, a.Assignments, a.Batches,
		a.Cache, cfg.AssignBatchSize, log)
	a.RuleService = classify.NewRuleService(a.Rules, a.Cache)

	a.Handler = api.NewHandler(
		a.Sync, a.Orchestrator, a.RuleService, a.Cache,
		a.Accounts, a.ChangeLog, a.Assignments, a.Batches, a.Sessions, log)

	return a, nil
}

// SeedInstances upserts the YAML instance inventory into the registry, when
// one is configured.
func (a *App) SeedInstances(ctx context.Context) error {
	if a.Cfg.InstancesFile == "" {
		return nil
	}
	instances, err := config.LoadInstances(a.Cfg.InstancesFile)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if _, err := a.Instances.Upsert(ctx, inst); err != nil {
			return fmt.Errorf("seed instance %s: %w", inst.Name, err)
		}
	}
	a.Log.Info("instance registry seeded", "count", len(instances))
	return nil
}

// Close releases the metastore pools.
func (a *App) Close() {
	_ = a.ReadDB.Close()
	_ = a.WriteDB.Close()
}
