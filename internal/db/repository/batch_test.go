package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permsync/internal/domain"
)

func TestBatchRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	started := time.Now().UTC()
	batch := &domain.ClassificationBatch{
		TriggeredBy: "api",
		Status:      domain.BatchRunning,
		StartedAt:   started,
	}
	require.NoError(t, repo.Create(ctx, batch))
	require.NotEmpty(t, batch.ID)

	finished := started.Add(2 * time.Second)
	batch.Status = domain.BatchDone
	batch.Matched = 12
	batch.Classified = 7
	batch.PerEngine = map[domain.Engine]*domain.EngineStats{
		domain.EnginePostgres: {Accounts: 20, Rules: 3, Matches: 12},
	}
	batch.FinishedAt = &finished
	batch.DurationMS = 2000
	require.NoError(t, repo.Finalize(ctx, batch))

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchDone, got.Status)
	assert.Equal(t, 12, got.Matched)
	assert.Equal(t, 7, got.Classified)
	require.NotNil(t, got.PerEngine[domain.EnginePostgres])
	assert.Equal(t, 3, got.PerEngine[domain.EnginePostgres].Rules)
	require.NotNil(t, got.FinishedAt)
}

func TestBatchRepo_ListNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.ClassificationBatch{
			Status:    domain.BatchDone,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	batches, total, err := repo.List(ctx, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, batches, 3)
	assert.True(t, batches[0].StartedAt.After(batches[1].StartedAt))

	page, total, err := repo.List(ctx, domain.PageRequest{PageSize: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 1)
}

func TestSessionRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepo(db)

	session := &domain.SyncSession{
		TriggeredBy: "scheduler",
		Status:      domain.BatchRunning,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, session))

	finished := session.StartedAt.Add(time.Second)
	session.Status = domain.BatchDone
	session.Instances = 2
	session.Synced = 40
	session.Added = 3
	session.Removed = 1
	session.FinishedAt = &finished
	session.DurationMS = 1000
	require.NoError(t, repo.Finalize(ctx, session))

	got, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchDone, got.Status)
	assert.Equal(t, 40, got.Synced)
	assert.Equal(t, 3, got.Added)
	require.NotNil(t, got.FinishedAt)

	_, err = repo.GetByID(ctx, "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
