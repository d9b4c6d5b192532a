package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"permsync/internal/domain"
)

var _ domain.AccountRepository = (*AccountRepo)(nil)

// AccountRepo implements domain.AccountRepository using SQLite.
type AccountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo on the write pool.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const factsColumns = `id, instance_id, engine, account_key, username, host,
	is_superuser, is_active, global_privs, database_privs, roles,
	database_roles, tablespace_quotas, extras, deleted, deleted_at,
	last_sync_at, created_at, updated_at`

// ListByInstance returns all live facts for one instance ordered by account
// key, the stable order the change detector depends on.
func (r *AccountRepo) ListByInstance(ctx context.Context, instanceID string) ([]*domain.PermissionFacts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+factsColumns+` FROM permission_facts
		 WHERE instance_id = ? AND deleted = 0
		 ORDER BY account_key`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

// ListActiveByEngine returns all live facts across instances of one engine.
func (r *AccountRepo) ListActiveByEngine(ctx context.Context, engine domain.Engine) ([]*domain.PermissionFacts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+factsColumns+` FROM permission_facts
		 WHERE engine = ? AND deleted = 0
		 ORDER BY instance_id, account_key`, string(engine))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

// GetByID returns one facts row, deleted or not.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.PermissionFacts, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+factsColumns+` FROM permission_facts WHERE id = ?`, id)
	f, err := scanFactsRow(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return f, nil
}

// ApplyChanges applies one batch of account changes plus their change-log
// entries in a single transaction. A failure rolls back only this batch;
// previously committed batches stand.
func (r *AccountRepo) ApplyChanges(ctx context.Context, changes []*domain.AccountChange, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, ch := range changes {
		if err := applyChange(ctx, tx, ch, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func applyChange(ctx context.Context, tx *sql.Tx, ch *domain.AccountChange, now time.Time) error {
	switch ch.Kind {
	case domain.ChangeAdd:
		if err := insertFacts(ctx, tx, ch.Facts, now); err != nil {
			return fmt.Errorf("insert facts %s: %w", ch.Facts.AccountKey(), err)
		}
	case domain.ChangeModifyPrivilege, domain.ChangeModifyOther:
		if err := updateFacts(ctx, tx, ch.Facts, now); err != nil {
			return fmt.Errorf("update facts %s: %w", ch.Facts.AccountKey(), err)
		}
	case domain.ChangeDelete:
		if _, err := tx.ExecContext(ctx,
			`UPDATE permission_facts SET deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?`,
			now, now, ch.Facts.ID); err != nil {
			return fmt.Errorf("soft-delete facts %s: %w", ch.Facts.AccountKey(), err)
		}
	default:
		// Unchanged account: refresh the sync timestamp only.
		if _, err := tx.ExecContext(ctx,
			`UPDATE permission_facts SET last_sync_at = ? WHERE id = ?`,
			now, ch.Facts.ID); err != nil {
			return fmt.Errorf("touch facts %s: %w", ch.Facts.AccountKey(), err)
		}
	}

	if ch.Entry != nil {
		if err := insertChangeLog(ctx, tx, ch.Entry, now); err != nil {
			return fmt.Errorf("insert change log for %s: %w", ch.Entry.AccountKey, err)
		}
	}
	return nil
}

func insertFacts(ctx context.Context, tx *sql.Tx, f *domain.PermissionFacts, now time.Time) error {
	if f.ID == "" {
		f.ID = domain.NewID()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO permission_facts (
			id, instance_id, engine, account_key, username, host,
			is_superuser, is_active, global_privs, database_privs, roles,
			database_roles, tablespace_quotas, extras,
			deleted, last_sync_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		f.ID, f.InstanceID, string(f.Engine), f.AccountKey(), f.Username, f.Host,
		boolToInt(f.IsSuperuser), boolToInt(f.IsActive),
		marshalStrings(f.GlobalPrivs), marshalStringsMap(f.DatabasePrivs),
		marshalStrings(f.Roles), marshalStringsMap(f.DatabaseRoles),
		marshalKV(f.TablespaceQuotas), marshalKV(f.Extras),
		now, now, now)
	return err
}

func updateFacts(ctx context.Context, tx *sql.Tx, f *domain.PermissionFacts, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE permission_facts SET
			is_superuser = ?, is_active = ?, global_privs = ?,
			database_privs = ?, roles = ?, database_roles = ?,
			tablespace_quotas = ?, extras = ?, last_sync_at = ?, updated_at = ?
		 WHERE id = ?`,
		boolToInt(f.IsSuperuser), boolToInt(f.IsActive),
		marshalStrings(f.GlobalPrivs), marshalStringsMap(f.DatabasePrivs),
		marshalStrings(f.Roles), marshalStringsMap(f.DatabaseRoles),
		marshalKV(f.TablespaceQuotas), marshalKV(f.Extras),
		now, now, f.ID)
	return err
}

func insertChangeLog(ctx context.Context, tx *sql.Tx, e *domain.ChangeLogEntry, now time.Time) error {
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	var diff sql.NullString
	if e.Diff != nil {
		b, err := json.Marshal(e.Diff)
		if err != nil {
			return err
		}
		diff = sql.NullString{String: string(b), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO change_log (id, instance_id, engine, account_key, username, change_type, diff, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.InstanceID, string(e.Engine), e.AccountKey, e.Username,
		string(e.ChangeType), diff, e.SessionID, now)
	return err
}

type factsScanner interface {
	Scan(dest ...any) error
}

func scanFactsRow(s factsScanner) (*domain.PermissionFacts, error) {
	var (
		f                                            domain.PermissionFacts
		engine                                       string
		accountKey                                   string
		super, active, deleted                       int64
		globalPrivs, dbPrivs, roles, dbRoles, quotas string
		extras                                       string
		deletedAt                                    sql.NullTime
	)
	err := s.Scan(&f.ID, &f.InstanceID, &engine, &accountKey, &f.Username, &f.Host,
		&super, &active, &globalPrivs, &dbPrivs, &roles, &dbRoles, &quotas, &extras,
		&deleted, &deletedAt, &f.LastSyncAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Engine = domain.Engine(engine)
	f.IsSuperuser = super != 0
	f.IsActive = active != 0
	f.GlobalPrivs = unmarshalStrings(globalPrivs)
	f.DatabasePrivs = unmarshalStringsMap(dbPrivs)
	f.Roles = unmarshalStrings(roles)
	f.DatabaseRoles = unmarshalStringsMap(dbRoles)
	f.TablespaceQuotas = unmarshalKV(quotas)
	f.Extras = unmarshalKV(extras)
	f.Deleted = deleted != 0
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]*domain.PermissionFacts, error) {
	var out []*domain.PermissionFacts
	for rows.Next() {
		f, err := scanFactsRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
