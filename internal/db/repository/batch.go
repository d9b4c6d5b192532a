package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"permsync/internal/domain"
)

var (
	_ domain.BatchRepository   = (*BatchRepo)(nil)
	_ domain.SessionRepository = (*SessionRepo)(nil)
)

// BatchRepo persists classification batch records.
type BatchRepo struct {
	db *sql.DB
}

// NewBatchRepo creates a new BatchRepo.
func NewBatchRepo(db *sql.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// Create inserts a batch in running state.
func (r *BatchRepo) Create(ctx context.Context, b *domain.ClassificationBatch) error {
	if b.ID == "" {
		b.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO classification_batches (id, triggered_by, status, started_at)
		 VALUES (?, ?, ?, ?)`,
		b.ID, b.TriggeredBy, string(b.Status), b.StartedAt)
	return mapDBError(err)
}

// Finalize records the terminal status and stats of a batch.
func (r *BatchRepo) Finalize(ctx context.Context, b *domain.ClassificationBatch) error {
	perEngine, err := json.Marshal(b.PerEngine)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE classification_batches
		 SET status = ?, matched = ?, failed = ?, classified = ?, per_engine = ?,
		     error = ?, finished_at = ?, duration_ms = ?
		 WHERE id = ?`,
		string(b.Status), b.Matched, b.Failed, b.Classified, string(perEngine),
		b.Error, b.FinishedAt, b.DurationMS, b.ID)
	return err
}

// GetByID returns one batch record.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*domain.ClassificationBatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, triggered_by, status, matched, failed, classified, per_engine,
		        error, started_at, finished_at, duration_ms
		 FROM classification_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return b, nil
}

// List returns batches newest first.
func (r *BatchRepo) List(ctx context.Context, page domain.PageRequest) ([]*domain.ClassificationBatch, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classification_batches`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, triggered_by, status, matched, failed, classified, per_engine,
		        error, started_at, finished_at, duration_ms
		 FROM classification_batches ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`,
		page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*domain.ClassificationBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func scanBatch(s factsScanner) (*domain.ClassificationBatch, error) {
	var (
		b          domain.ClassificationBatch
		status     string
		perEngine  string
		finishedAt sql.NullTime
	)
	err := s.Scan(&b.ID, &b.TriggeredBy, &status, &b.Matched, &b.Failed, &b.Classified,
		&perEngine, &b.Error, &b.StartedAt, &finishedAt, &b.DurationMS)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BatchStatus(status)
	if perEngine != "" && perEngine != "{}" {
		_ = json.Unmarshal([]byte(perEngine), &b.PerEngine)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		b.FinishedAt = &t
	}
	return &b, nil
}

// SessionRepo persists sync session records.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a session in running state.
func (r *SessionRepo) Create(ctx context.Context, s *domain.SyncSession) error {
	if s.ID == "" {
		s.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_sessions (id, triggered_by, status, started_at)
		 VALUES (?, ?, ?, ?)`,
		s.ID, s.TriggeredBy, string(s.Status), s.StartedAt)
	return mapDBError(err)
}

// Finalize records the terminal status and counts of a session.
func (r *SessionRepo) Finalize(ctx context.Context, s *domain.SyncSession) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_sessions
		 SET status = ?, instances = ?, synced = ?, added = ?, modified = ?,
		     removed = ?, failed = ?, error = ?, finished_at = ?, duration_ms = ?
		 WHERE id = ?`,
		string(s.Status), s.Instances, s.Synced, s.Added, s.Modified,
		s.Removed, s.Failed, s.Error, s.FinishedAt, s.DurationMS, s.ID)
	return err
}

// GetByID returns one session record.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.SyncSession, error) {
	var (
		s          domain.SyncSession
		status     string
		finishedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, triggered_by, status, instances, synced, added, modified,
		        removed, failed, error, started_at, finished_at, duration_ms
		 FROM sync_sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.TriggeredBy, &status, &s.Instances, &s.Synced, &s.Added,
			&s.Modified, &s.Removed, &s.Failed, &s.Error, &s.StartedAt,
			&finishedAt, &s.DurationMS)
	if err != nil {
		return nil, mapDBError(err)
	}
	s.Status = domain.BatchStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		s.FinishedAt = &t
	}
	return &s, nil
}
