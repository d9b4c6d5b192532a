package repository

import (
	"context"
	"database/sql"
	"time"

	"permsync/internal/domain"
)

var _ domain.AssignmentRepository = (*AssignmentRepo)(nil)

// AssignmentRepo implements domain.AssignmentRepository using SQLite.
type AssignmentRepo struct {
	db *sql.DB
}

// NewAssignmentRepo creates a new AssignmentRepo.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo {
	return &AssignmentRepo{db: db}
}

// DeactivateAuto flips every active auto assignment to inactive. Manual
// assignments survive full reclassification.
func (r *AssignmentRepo) DeactivateAuto(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE classification_assignments SET active = 0, updated_at = ?
		 WHERE active = 1 AND assign_type = 'auto'`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActivePairs returns the (account, classification) keys of all active
// assignments for pre-write deduplication.
func (r *AssignmentRepo) ActivePairs(ctx context.Context) (map[domain.AssignmentPair]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account_id, classification_id FROM classification_assignments WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make(map[domain.AssignmentPair]struct{})
	for rows.Next() {
		var p domain.AssignmentPair
		if err := rows.Scan(&p.AccountID, &p.ClassificationID); err != nil {
			return nil, err
		}
		pairs[p] = struct{}{}
	}
	return pairs, rows.Err()
}

// InsertBatch inserts one batch of assignments in a single transaction.
// Callers deduplicate beforehand; the partial unique index on
// (account_id, classification_id) WHERE active=1 is the backstop.
func (r *AssignmentRepo) InsertBatch(ctx context.Context, assignments []*domain.ClassificationAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, a := range assignments {
		if a.ID == "" {
			a.ID = domain.NewID()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO classification_assignments
			 (id, account_id, classification_id, rule_id, assign_type, batch_id, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			a.ID, a.AccountID, a.ClassificationID, a.RuleID,
			string(a.AssignType), a.BatchID, now, now); err != nil {
			return mapDBError(err)
		}
	}
	return tx.Commit()
}

// ListActiveForAccount returns the active assignments of one account.
func (r *AssignmentRepo) ListActiveForAccount(ctx context.Context, accountID string) ([]*domain.ClassificationAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, classification_id, rule_id, assign_type, batch_id, active, created_at, updated_at
		 FROM classification_assignments
		 WHERE account_id = ? AND active = 1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ClassificationAssignment
	for rows.Next() {
		var (
			a           domain.ClassificationAssignment
			assignType  string
			activeInt64 int64
		)
		if err := rows.Scan(&a.ID, &a.AccountID, &a.ClassificationID, &a.RuleID,
			&assignType, &a.BatchID, &activeInt64, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.AssignType = domain.AssignType(assignType)
		a.Active = activeInt64 != 0
		out = append(out, &a)
	}
	return out, rows.Err()
}

// CountActiveDuplicates returns the number of (account, classification)
// pairs holding more than one active row. Always zero after a correct run.
func (r *AssignmentRepo) CountActiveDuplicates(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
			SELECT account_id, classification_id FROM classification_assignments
			WHERE active = 1 GROUP BY account_id, classification_id HAVING COUNT(*) > 1
		 )`).Scan(&n)
	return n, err
}
