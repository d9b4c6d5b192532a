package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	internaldb "permsync/internal/db"
	"permsync/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return writeDB
}

func seedInstance(t *testing.T, db *sql.DB, engine domain.Engine) *domain.Instance {
	t.Helper()
	repo := NewInstanceRepo(db)
	inst, err := repo.Upsert(context.Background(), &domain.Instance{
		Name:   "test-" + string(engine) + "-" + domain.NewID(),
		Engine: engine,
		DSN:    "test://dsn",
		Active: true,
	})
	require.NoError(t, err)
	return inst
}

func seedClassification(t *testing.T, db *sql.DB, name string) *domain.Classification {
	t.Helper()
	repo := NewClassificationRepo(db)
	c, err := repo.Create(context.Background(), &domain.Classification{
		Name:      name,
		RiskLevel: "high",
	})
	require.NoError(t, err)
	return c
}

func seedFacts(t *testing.T, db *sql.DB, instanceID, username string, mutate func(*domain.PermissionFacts)) *domain.PermissionFacts {
	t.Helper()
	f := &domain.PermissionFacts{
		InstanceID:  instanceID,
		Engine:      domain.EnginePostgres,
		Username:    username,
		IsActive:    true,
		GlobalPrivs: []string{"LOGIN"},
	}
	if mutate != nil {
		mutate(f)
	}
	f.Canonicalize()

	repo := NewAccountRepo(db)
	err := repo.ApplyChanges(context.Background(), []*domain.AccountChange{{
		Kind:  domain.ChangeAdd,
		Facts: f,
		Entry: &domain.ChangeLogEntry{
			InstanceID: f.InstanceID,
			Engine:     f.Engine,
			AccountKey: f.AccountKey(),
			Username:   f.Username,
			ChangeType: domain.ChangeAdd,
			SessionID:  "seed",
		},
	}}, time.Now().UTC())
	require.NoError(t, err)
	return f
}
