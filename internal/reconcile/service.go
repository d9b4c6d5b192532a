package reconcile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"permsync/internal/domain"
)

// Service dispatches instance reconciliations for one sync session and
// records the session outcome.
type Service struct {
	instances  domain.InstanceRepository
	sessions   domain.SessionRepository
	reconciler *Reconciler
	workers    int
	log        *slog.Logger

	// onDataChanged is invoked after a session that wrote any change,
	// used to invalidate evaluation caches.
	onDataChanged func()
}

// NewService creates a sync Service. workers bounds parallel instance
// reconciliation; 1 preserves strictly sequential dispatch.
func NewService(instances domain.InstanceRepository, sessions domain.SessionRepository, reconciler *Reconciler, workers int, log *slog.Logger) *Service {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		instances:  instances,
		sessions:   sessions,
		reconciler: reconciler,
		workers:    workers,
		log:        log,
	}
}

// OnDataChanged registers a callback fired after any session that detected
// changes.
func (s *Service) OnDataChanged(fn func()) { s.onDataChanged = fn }

// Run reconciles all active instances, or just instanceID when non-empty.
// Cancellation is honored between instance-level units of work: results of
// already-reconciled instances stay committed.
func (s *Service) Run(ctx context.Context, instanceID, actor string) (*domain.SyncSession, []*domain.SyncResult, error) {
	session := &domain.SyncSession{
		ID:          domain.NewID(),
		TriggeredBy: actor,
		Status:      domain.BatchRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	targets, err := s.targets(ctx, instanceID)
	if err != nil {
		s.finalize(ctx, session, nil, err)
		return session, nil, err
	}

	results := make([]*domain.SyncResult, len(targets))
	if s.workers == 1 {
		for i, inst := range targets {
			if ctx.Err() != nil {
				break
			}
			results[i] = s.reconciler.SyncInstance(ctx, inst, session.ID)
		}
	} else {
		// Each instance's writes are atomic per batch and target disjoint
		// rows, so instances may proceed in parallel.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i, inst := range targets {
			i, inst := i, inst
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				results[i] = s.reconciler.SyncInstance(gctx, inst, session.ID)
				return nil
			})
		}
		_ = g.Wait()
	}

	s.finalize(ctx, session, results, nil)

	if s.onDataChanged != nil && session.Added+session.Modified+session.Removed > 0 {
		s.onDataChanged()
	}
	return session, results, nil
}

func (s *Service) targets(ctx context.Context, instanceID string) ([]*domain.Instance, error) {
	if instanceID != "" {
		inst, err := s.instances.GetByID(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		return []*domain.Instance{inst}, nil
	}

	targets, err := s.instances.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, domain.ErrNotFound("no active instances registered")
	}
	return targets, nil
}

func (s *Service) finalize(ctx context.Context, session *domain.SyncSession, results []*domain.SyncResult, runErr error) {
	now := time.Now().UTC()
	session.FinishedAt = &now
	session.DurationMS = now.Sub(session.StartedAt).Milliseconds()
	session.Status = domain.BatchDone

	if runErr != nil {
		session.Status = domain.BatchFailed
		session.Error = runErr.Error()
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		session.Instances++
		session.Synced += res.Synced
		session.Added += res.Added
		session.Modified += res.Modified
		session.Removed += res.Removed
		session.Failed += res.Failed
		if !res.Success && session.Error == "" {
			session.Error = res.Error
		}
	}

	if err := s.sessions.Finalize(ctx, session); err != nil {
		s.log.Error("finalize session failed", "session", session.ID, "error", err)
	}
}
