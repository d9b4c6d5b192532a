package repository

import (
	"context"
	"database/sql"
	"time"

	"permsync/internal/domain"
)

var (
	_ domain.InstanceRepository       = (*InstanceRepo)(nil)
	_ domain.ClassificationRepository = (*ClassificationRepo)(nil)
)

// InstanceRepo reads and seeds the instance registry.
type InstanceRepo struct {
	db *sql.DB
}

// NewInstanceRepo creates a new InstanceRepo.
func NewInstanceRepo(db *sql.DB) *InstanceRepo {
	return &InstanceRepo{db: db}
}

const instanceColumns = `id, name, engine, dsn, excluded_users, excluded_patterns, active, created_at`

// ListActive returns all active registered instances in name order.
func (r *InstanceRepo) ListActive(ctx context.Context) ([]*domain.Instance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM db_instances WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetByID returns one registered instance.
func (r *InstanceRepo) GetByID(ctx context.Context, id string) (*domain.Instance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM db_instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return inst, nil
}

// Upsert registers an instance by name. Used by bootstrap seeding; instance
// CRUD proper is owned by an external collaborator.
func (r *InstanceRepo) Upsert(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	var existingID string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM db_instances WHERE name = ?`, inst.Name).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		inst.ID = domain.NewID()
		inst.CreatedAt = time.Now().UTC()
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO db_instances (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, inst.Name, string(inst.Engine), inst.DSN,
			marshalStrings(inst.ExcludedUsers), marshalStrings(inst.ExcludedPatterns),
			boolToInt(inst.Active), inst.CreatedAt)
		if err != nil {
			return nil, mapDBError(err)
		}
		return inst, nil
	case err != nil:
		return nil, err
	default:
		inst.ID = existingID
		_, err := r.db.ExecContext(ctx,
			`UPDATE db_instances SET engine = ?, dsn = ?, excluded_users = ?, excluded_patterns = ?, active = ?
			 WHERE id = ?`,
			string(inst.Engine), inst.DSN, marshalStrings(inst.ExcludedUsers),
			marshalStrings(inst.ExcludedPatterns), boolToInt(inst.Active), existingID)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
}

func scanInstance(s factsScanner) (*domain.Instance, error) {
	var (
		inst               domain.Instance
		engine             string
		excluded, patterns string
		active             int64
	)
	err := s.Scan(&inst.ID, &inst.Name, &engine, &inst.DSN, &excluded, &patterns,
		&active, &inst.CreatedAt)
	if err != nil {
		return nil, err
	}
	inst.Engine = domain.Engine(engine)
	inst.ExcludedUsers = unmarshalStrings(excluded)
	inst.ExcludedPatterns = unmarshalStrings(patterns)
	inst.Active = active != 0
	return &inst, nil
}

// ClassificationRepo persists the label catalog.
type ClassificationRepo struct {
	db *sql.DB
}

// NewClassificationRepo creates a new ClassificationRepo.
func NewClassificationRepo(db *sql.DB) *ClassificationRepo {
	return &ClassificationRepo{db: db}
}

// List returns all classifications in name order.
func (r *ClassificationRepo) List(ctx context.Context) ([]*domain.Classification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, risk_level, description, created_at FROM classifications ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Classification
	for rows.Next() {
		var c domain.Classification
		if err := rows.Scan(&c.ID, &c.Name, &c.RiskLevel, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Create inserts a classification label.
func (r *ClassificationRepo) Create(ctx context.Context, c *domain.Classification) (*domain.Classification, error) {
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO classifications (id, name, risk_level, description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.RiskLevel, c.Description, c.CreatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return c, nil
}
