package reconcile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"permsync/internal/domain"
	"permsync/internal/extract"
	"permsync/internal/normalize"
)

// Source fetches the raw account records for one instance. The default
// implementation dials the engine; tests substitute a fake.
type Source interface {
	Fetch(ctx context.Context, inst *domain.Instance) ([]extract.Record, error)
}

// DriverSource dials instances through their registered engine drivers and
// paces catalog queries with a per-fetch rate limiter.
type DriverSource struct {
	// CatalogQPS caps catalog queries per second per instance;
	// 0 disables pacing.
	CatalogQPS float64
}

// Fetch opens a connection, selects the engine extractor, and pulls the raw
// account list with the instance's exclusion filters applied server-side.
func (s *DriverSource) Fetch(ctx context.Context, inst *domain.Instance) ([]extract.Record, error) {
	var limiter *rate.Limiter
	if s.CatalogQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.CatalogQPS), 1)
	}

	ex, err := extract.ForEngine(inst.Engine, limiter)
	if err != nil {
		return nil, err
	}

	db, err := extract.Open(inst)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	return ex.Extract(ctx, db, extract.Exclusions{
		Users:    inst.ExcludedUsers,
		Patterns: inst.ExcludedPatterns,
	})
}

// Reconciler runs extract → normalize → detect → write for one instance.
type Reconciler struct {
	source    Source
	accounts  domain.AccountRepository
	batchSize int
	log       *slog.Logger
}

// NewReconciler creates a Reconciler. batchSize bounds the number of
// account changes committed per transaction.
func NewReconciler(source Source, accounts domain.AccountRepository, batchSize int, log *slog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{source: source, accounts: accounts, batchSize: batchSize, log: log}
}

// SyncInstance reconciles one instance and returns its counts. An
// extraction failure aborts the instance with no writes; a failed write
// batch rolls back only that batch and is recorded as per-account failures.
func (r *Reconciler) SyncInstance(ctx context.Context, inst *domain.Instance, sessionID string) *domain.SyncResult {
	result := &domain.SyncResult{InstanceID: inst.ID, Engine: inst.Engine}
	log := r.log.With("instance", inst.ID, "engine", inst.Engine, "session", sessionID)

	records, err := r.source.Fetch(ctx, inst)
	if err != nil {
		extErr := &domain.ExtractionError{InstanceID: inst.ID, Engine: inst.Engine, Err: err}
		log.Error("extraction failed", "error", extErr)
		result.Error = extErr.Error()
		return result
	}

	now := time.Now().UTC()
	remote := make([]*domain.PermissionFacts, 0, len(records))
	for _, rec := range records {
		facts, err := normalize.Account(inst.ID, rec, now)
		if err != nil {
			normErr := &domain.NormalizationError{
				InstanceID: inst.ID, Engine: inst.Engine, AccountKey: rec.Key(), Err: err,
			}
			log.Warn("skipping account", "error", normErr)
			result.Failed++
			continue
		}
		remote = append(remote, facts)
	}

	local, err := r.accounts.ListByInstance(ctx, inst.ID)
	if err != nil {
		log.Error("load stored facts failed", "error", err)
		result.Error = err.Error()
		return result
	}

	changes := DetectChanges(remote, local, sessionID)

	for start := 0; start < len(changes); start += r.batchSize {
		end := start + r.batchSize
		if end > len(changes) {
			end = len(changes)
		}
		chunk := changes[start:end]

		if err := r.accounts.ApplyChanges(ctx, chunk, now); err != nil {
			log.Error("write batch failed", "from", start, "size", len(chunk), "error", err)
			result.Failed += len(chunk)
			continue
		}
		for _, ch := range chunk {
			switch ch.Kind {
			case domain.ChangeAdd:
				result.Added++
			case domain.ChangeModifyPrivilege, domain.ChangeModifyOther:
				result.Modified++
			case domain.ChangeDelete:
				result.Removed++
			}
		}
	}

	result.Synced = len(remote)
	result.Success = true
	log.Info("instance reconciled",
		"synced", result.Synced, "added", result.Added,
		"modified", result.Modified, "removed", result.Removed,
		"failed", result.Failed)
	return result
}
