package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permsync/internal/domain"
)

func TestAccountRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db)
	inst := seedInstance(t, db, domain.EnginePostgres)
	now := time.Now().UTC()

	facts := seedFacts(t, db, inst.ID, "analyst", func(f *domain.PermissionFacts) {
		f.DatabasePrivs = map[string][]string{"sales": {"CONNECT"}}
	})
	require.NotEmpty(t, facts.ID, "insert assigns an id")

	t.Run("list_by_instance", func(t *testing.T) {
		got, err := repo.ListByInstance(ctx, inst.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "analyst", got[0].Username)
		assert.Equal(t, []string{"LOGIN"}, got[0].GlobalPrivs)
		assert.Equal(t, []string{"CONNECT"}, got[0].DatabasePrivs["sales"])
	})

	t.Run("modify", func(t *testing.T) {
		updated := *facts
		updated.Roles = []string{"pg_monitor"}
		err := repo.ApplyChanges(ctx, []*domain.AccountChange{{
			Kind:  domain.ChangeModifyPrivilege,
			Facts: &updated,
			Entry: &domain.ChangeLogEntry{
				InstanceID: inst.ID,
				Engine:     domain.EnginePostgres,
				AccountKey: "analyst",
				Username:   "analyst",
				ChangeType: domain.ChangeModifyPrivilege,
				Diff: &domain.FactsDiff{
					Roles: &domain.CategoryDiff{Added: []string{"pg_monitor"}},
				},
				SessionID: "sess-2",
			},
		}}, now)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, facts.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"pg_monitor"}, got.Roles)
	})

	t.Run("soft_delete", func(t *testing.T) {
		err := repo.ApplyChanges(ctx, []*domain.AccountChange{{
			Kind:  domain.ChangeDelete,
			Facts: facts,
			Entry: &domain.ChangeLogEntry{
				InstanceID: inst.ID,
				Engine:     domain.EnginePostgres,
				AccountKey: "analyst",
				Username:   "analyst",
				ChangeType: domain.ChangeDelete,
				SessionID:  "sess-3",
			},
		}}, now)
		require.NoError(t, err)

		// Gone from live listings, still readable by id.
		live, err := repo.ListByInstance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Empty(t, live)

		got, err := repo.GetByID(ctx, facts.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		assert.NotNil(t, got.DeletedAt)
	})

	t.Run("reappearance_is_a_new_row", func(t *testing.T) {
		fresh := seedFacts(t, db, inst.ID, "analyst", nil)
		assert.NotEqual(t, facts.ID, fresh.ID)

		live, err := repo.ListByInstance(ctx, inst.ID)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.False(t, live[0].Deleted)
	})

	t.Run("change_log_is_append_only", func(t *testing.T) {
		logRepo := NewChangeLogRepo(db)
		entries, total, err := logRepo.List(ctx, domain.ChangeLogFilter{InstanceID: inst.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total, "seed add + modify + delete + re-add")
		assert.Len(t, entries, 4)
	})
}

func TestAccountRepo_TimestampRefresh(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db)
	inst := seedInstance(t, db, domain.EnginePostgres)

	facts := seedFacts(t, db, inst.ID, "steady", nil)

	later := time.Now().UTC().Add(time.Hour)
	err := repo.ApplyChanges(ctx, []*domain.AccountChange{{Facts: facts}}, later)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, facts.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastSyncAt, time.Second)

	// No change-log entry for a refresh.
	logRepo := NewChangeLogRepo(db)
	_, total, err := logRepo.List(ctx, domain.ChangeLogFilter{InstanceID: inst.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "only the seed add")
}

func TestAccountRepo_BatchRollsBackAsUnit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db)
	inst := seedInstance(t, db, domain.EnginePostgres)
	now := time.Now().UTC()

	good := &domain.PermissionFacts{
		InstanceID: inst.ID,
		Engine:     domain.EnginePostgres,
		Username:   "good",
		IsActive:   true,
	}
	// References a nonexistent instance, violating the foreign key.
	bad := &domain.PermissionFacts{
		InstanceID: "no-such-instance",
		Engine:     domain.EnginePostgres,
		Username:   "bad",
		IsActive:   true,
	}

	err := repo.ApplyChanges(ctx, []*domain.AccountChange{
		{Kind: domain.ChangeAdd, Facts: good},
		{Kind: domain.ChangeAdd, Facts: bad},
	}, now)
	require.Error(t, err)

	// The good row rolled back with the bad one.
	live, listErr := repo.ListByInstance(ctx, inst.ID)
	require.NoError(t, listErr)
	assert.Empty(t, live)
}

func TestAccountRepo_ListActiveByEngine(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db)

	pgInst := seedInstance(t, db, domain.EnginePostgres)
	myInst := seedInstance(t, db, domain.EngineMySQL)

	seedFacts(t, db, pgInst.ID, "pg_user", nil)
	seedFacts(t, db, myInst.ID, "my_user", func(f *domain.PermissionFacts) {
		f.Engine = domain.EngineMySQL
		f.Host = "%"
	})

	pg, err := repo.ListActiveByEngine(ctx, domain.EnginePostgres)
	require.NoError(t, err)
	require.Len(t, pg, 1)
	assert.Equal(t, "pg_user", pg[0].Username)

	my, err := repo.ListActiveByEngine(ctx, domain.EngineMySQL)
	require.NoError(t, err)
	require.Len(t, my, 1)
	assert.Equal(t, "my_user@%", my[0].AccountKey())
}

func TestAccountRepo_GetByIDNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepo(db)

	_, err := repo.GetByID(context.Background(), "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
