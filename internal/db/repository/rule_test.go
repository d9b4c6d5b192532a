package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permsync/internal/domain"
)

const testExpression = `{"operator": "AND", "required": [{"scope": "global", "privileges": ["SELECT"]}]}`

func TestRuleRepo_Versioning(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepo(db)
	classification := seedClassification(t, db, "reporting")

	v1, err := repo.Create(ctx, &domain.ClassificationRule{
		Engine:           domain.EnginePostgres,
		ClassificationID: classification.ID,
		Name:             "readers",
		Expression:       testExpression,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.Active)
	assert.NotEmpty(t, v1.GroupID)

	v2, err := repo.CreateVersion(ctx, &domain.ClassificationRule{
		GroupID:          v1.GroupID,
		Engine:           domain.EnginePostgres,
		ClassificationID: classification.ID,
		Name:             "readers",
		Expression:       testExpression,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.NotEqual(t, v1.ID, v2.ID)

	// The old version survives as an inactive row, never mutated.
	old, err := repo.GetByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Equal(t, 1, old.Version)
	assert.Equal(t, testExpression, old.Expression)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, v2.ID, active[0].ID)
}

func TestRuleRepo_CreateVersionUnknownGroup(t *testing.T) {
	db := openTestDB(t)
	repo := NewRuleRepo(db)
	classification := seedClassification(t, db, "reporting")

	_, err := repo.CreateVersion(context.Background(), &domain.ClassificationRule{
		GroupID:          "no-such-group",
		Engine:           domain.EnginePostgres,
		ClassificationID: classification.ID,
		Expression:       testExpression,
	})
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRuleRepo_Deactivate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepo(db)
	classification := seedClassification(t, db, "reporting")

	rule, err := repo.Create(ctx, &domain.ClassificationRule{
		Engine:           domain.EngineMySQL,
		ClassificationID: classification.ID,
		Name:             "ops",
		Expression:       testExpression,
	})
	require.NoError(t, err)

	require.NoError(t, repo.Deactivate(ctx, rule.ID))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, repo.Deactivate(ctx, "missing"), &notFound)
}

func TestRuleRepo_ListActiveOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewRuleRepo(db)
	classification := seedClassification(t, db, "reporting")

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		rule, err := repo.Create(ctx, &domain.ClassificationRule{
			Engine:           domain.EngineOracle,
			ClassificationID: classification.ID,
			Name:             name,
			Expression:       testExpression,
		})
		require.NoError(t, err)
		ids = append(ids, rule.ID)
	}

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	for i, rule := range active {
		assert.Equal(t, ids[i], rule.ID)
	}
}
