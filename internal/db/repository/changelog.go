package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"permsync/internal/domain"
)

var _ domain.ChangeLogRepository = (*ChangeLogRepo)(nil)

// ChangeLogRepo reads the append-only change log. No update or delete
// statements exist for change_log anywhere in the codebase.
type ChangeLogRepo struct {
	db *sql.DB
}

// NewChangeLogRepo creates a new ChangeLogRepo on the read pool.
func NewChangeLogRepo(db *sql.DB) *ChangeLogRepo {
	return &ChangeLogRepo{db: db}
}

// List returns change-log entries matching the filter, newest first.
func (r *ChangeLogRepo) List(ctx context.Context, filter domain.ChangeLogFilter) ([]*domain.ChangeLogEntry, int64, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.InstanceID != "" {
		where += ` AND instance_id = ?`
		args = append(args, filter.InstanceID)
	}
	if filter.AccountKey != "" {
		where += ` AND account_key = ?`
		args = append(args, filter.AccountKey)
	}
	if filter.ChangeType != "" {
		where += ` AND change_type = ?`
		args = append(args, string(filter.ChangeType))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, instance_id, engine, account_key, username, change_type, diff, session_id, created_at
		 FROM change_log`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*domain.ChangeLogEntry
	for rows.Next() {
		var (
			e          domain.ChangeLogEntry
			engine, ct string
			diff       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.InstanceID, &engine, &e.AccountKey, &e.Username,
			&ct, &diff, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Engine = domain.Engine(engine)
		e.ChangeType = domain.ChangeType(ct)
		if diff.Valid && diff.String != "" {
			var d domain.FactsDiff
			if err := json.Unmarshal([]byte(diff.String), &d); err == nil {
				e.Diff = &d
			}
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
