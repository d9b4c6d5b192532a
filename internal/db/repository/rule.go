package repository

import (
	"context"
	"database/sql"
	"time"

	"permsync/internal/domain"
)

var _ domain.RuleRepository = (*RuleRepo)(nil)

// RuleRepo implements domain.RuleRepository using SQLite.
type RuleRepo struct {
	db *sql.DB
}

// NewRuleRepo creates a new RuleRepo.
func NewRuleRepo(db *sql.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

const ruleColumns = `id, group_id, version, engine, classification_id, name, expression, active, created_at`

// ListActive returns all active rules in creation order, the order the
// orchestrator evaluates them in.
func (r *RuleRepo) ListActive(ctx context.Context) ([]*domain.ClassificationRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM classification_rules WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetByID returns one rule version.
func (r *RuleRepo) GetByID(ctx context.Context, id string) (*domain.ClassificationRule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM classification_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return rule, nil
}

// Create inserts a rule as version 1 of a new group.
func (r *RuleRepo) Create(ctx context.Context, rule *domain.ClassificationRule) (*domain.ClassificationRule, error) {
	rule.ID = domain.NewID()
	if rule.GroupID == "" {
		rule.GroupID = domain.NewID()
	}
	rule.Version = 1
	rule.Active = true
	rule.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO classification_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		rule.ID, rule.GroupID, rule.Version, string(rule.Engine),
		rule.ClassificationID, rule.Name, rule.Expression, rule.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return rule, nil
}

// CreateVersion supersedes the active version of the rule's group. The old
// row is deactivated, never mutated; the new row carries version+1.
func (r *RuleRepo) CreateVersion(ctx context.Context, rule *domain.ClassificationRule) (*domain.ClassificationRule, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var prevVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM classification_rules WHERE group_id = ? AND active = 1`,
		rule.GroupID).Scan(&prevVersion)
	if err != nil {
		return nil, mapDBError(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE classification_rules SET active = 0 WHERE group_id = ? AND active = 1`,
		rule.GroupID); err != nil {
		return nil, err
	}

	rule.ID = domain.NewID()
	rule.Version = prevVersion + 1
	rule.Active = true
	rule.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO classification_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		rule.ID, rule.GroupID, rule.Version, string(rule.Engine),
		rule.ClassificationID, rule.Name, rule.Expression, rule.CreatedAt); err != nil {
		return nil, mapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rule, nil
}

// Deactivate retires a rule version without replacing it.
func (r *RuleRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE classification_rules SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("rule %s not found", id)
	}
	return nil
}

func scanRule(s factsScanner) (*domain.ClassificationRule, error) {
	var (
		rule   domain.ClassificationRule
		engine string
		active int64
	)
	err := s.Scan(&rule.ID, &rule.GroupID, &rule.Version, &engine,
		&rule.ClassificationID, &rule.Name, &rule.Expression, &active, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	rule.Engine = domain.Engine(engine)
	rule.Active = active != 0
	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]*domain.ClassificationRule, error) {
	var out []*domain.ClassificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
