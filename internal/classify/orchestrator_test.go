package classify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permsync/internal/cache"
	internaldb "permsync/internal/db"
	"permsync/internal/db/repository"
	"permsync/internal/domain"
)

const (
	selectExpr = `{"operator": "AND", "required": [{"scope": "global", "privileges": ["SELECT"]}]}`
	superExpr  = `{"operator": "AND", "required": [{"scope": "global", "privileges": ["SUPER"]}]}`
)

type classifyFixture struct {
	accounts        *repository.AccountRepo
	rules           *repository.RuleRepo
	assignments     *repository.AssignmentRepo
	batches         *repository.BatchRepo
	instances       *repository.InstanceRepo
	classifications *repository.ClassificationRepo
	cache           *cache.Cache
	orchestrator    *Orchestrator
}

func newClassifyFixture(t *testing.T) *classifyFixture {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)

	f := &classifyFixture{
		accounts:        repository.NewAccountRepo(writeDB),
		rules:           repository.NewRuleRepo(writeDB),
		assignments:     repository.NewAssignmentRepo(writeDB),
		batches:         repository.NewBatchRepo(writeDB),
		instances:       repository.NewInstanceRepo(writeDB),
		classifications: repository.NewClassificationRepo(writeDB),
		cache:           cache.New(time.Minute),
	}
	f.orchestrator = NewOrchestrator(f.rules, f.accounts, f.assignments, f.batches, f.cache, 2, nil)
	return f
}

func (f *classifyFixture) addInstance(t *testing.T, engine domain.Engine) *domain.Instance {
	t.Helper()
	inst, err := f.instances.Upsert(context.Background(), &domain.Instance{
		Name: "inst-" + string(engine) + "-" + domain.NewID(), Engine: engine, DSN: "test://", Active: true,
	})
	require.NoError(t, err)
	return inst
}

func (f *classifyFixture) addAccount(t *testing.T, instanceID, username string, engine domain.Engine, privs ...string) *domain.PermissionFacts {
	t.Helper()
	facts := &domain.PermissionFacts{
		InstanceID:  instanceID,
		Engine:      engine,
		Username:    username,
		IsActive:    true,
		GlobalPrivs: privs,
	}
	if engine == domain.EngineMySQL {
		facts.Host = "%"
	}
	facts.Canonicalize()
	err := f.accounts.ApplyChanges(context.Background(),
		[]*domain.AccountChange{{Kind: domain.ChangeAdd, Facts: facts}}, time.Now().UTC())
	require.NoError(t, err)
	return facts
}

func (f *classifyFixture) addClassification(t *testing.T, name string) *domain.Classification {
	t.Helper()
	c, err := f.classifications.Create(context.Background(), &domain.Classification{Name: name, RiskLevel: "high"})
	require.NoError(t, err)
	return c
}

func (f *classifyFixture) addRule(t *testing.T, engine domain.Engine, classificationID, expr string) *domain.ClassificationRule {
	t.Helper()
	rule, err := f.rules.Create(context.Background(), &domain.ClassificationRule{
		Engine:           engine,
		ClassificationID: classificationID,
		Name:             "rule-" + domain.NewID(),
		Expression:       expr,
	})
	require.NoError(t, err)
	return rule
}

func TestOrchestrator_Run(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	reader := f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT", "LOGIN")
	f.addAccount(t, inst.ID, "plain", domain.EnginePostgres, "LOGIN")
	label := f.addClassification(t, "read-access")
	rule := f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalMatches)
	assert.Equal(t, 1, result.TotalAdded)
	assert.Equal(t, 1, result.ClassifiedAccounts)
	assert.Equal(t, StateDone, f.orchestrator.State())

	require.NotNil(t, result.PerEngine[domain.EnginePostgres])
	assert.Equal(t, 2, result.PerEngine[domain.EnginePostgres].Accounts)
	assert.Equal(t, 1, result.PerEngine[domain.EnginePostgres].Rules)

	active, err := f.assignments.ListActiveForAccount(context.Background(), reader.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, label.ID, active[0].ClassificationID)
	assert.Equal(t, rule.ID, active[0].RuleID)
	assert.Equal(t, domain.AssignAuto, active[0].AssignType)
	assert.Equal(t, result.BatchID, active[0].BatchID)

	// The batch record is finalized.
	batch, err := f.batches.GetByID(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchDone, batch.Status)
	assert.Equal(t, 1, batch.Matched)
}

func TestOrchestrator_RerunKeepsAtMostOneActivePerPair(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	label := f.addClassification(t, "read-access")
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	for i := 0; i < 3; i++ {
		_, err := f.orchestrator.Run(context.Background(), "test")
		require.NoError(t, err)
	}

	dups, err := f.assignments.CountActiveDuplicates(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dups)
}

func TestOrchestrator_ManualAssignmentsSurvive(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	acct := f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	autoLabel := f.addClassification(t, "read-access")
	manualLabel := f.addClassification(t, "pinned")
	f.addRule(t, domain.EnginePostgres, autoLabel.ID, selectExpr)

	require.NoError(t, f.assignments.InsertBatch(context.Background(), []*domain.ClassificationAssignment{
		{AccountID: acct.ID, ClassificationID: manualLabel.ID, AssignType: domain.AssignManual},
	}))

	_, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)

	active, err := f.assignments.ListActiveForAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)

	byLabel := map[string]domain.AssignType{}
	for _, a := range active {
		byLabel[a.ClassificationID] = a.AssignType
	}
	assert.Equal(t, domain.AssignManual, byLabel[manualLabel.ID])
	assert.Equal(t, domain.AssignAuto, byLabel[autoLabel.ID])
}

func TestOrchestrator_ManualPairBlocksAutoDuplicate(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	acct := f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	label := f.addClassification(t, "read-access")
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	// The same (account, classification) pair already held manually.
	require.NoError(t, f.assignments.InsertBatch(context.Background(), []*domain.ClassificationAssignment{
		{AccountID: acct.ID, ClassificationID: label.ID, AssignType: domain.AssignManual},
	}))

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalMatches)
	assert.Zero(t, result.TotalAdded, "manual row already covers the pair")

	active, err := f.assignments.ListActiveForAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.AssignManual, active[0].AssignType)
}

func TestOrchestrator_FirstMatchWinsAcrossRules(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	acct := f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	label := f.addClassification(t, "read-access")
	first := f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalMatches, "both rules match")
	assert.Equal(t, 1, result.TotalAdded, "one assignment per pair")

	active, err := f.assignments.ListActiveForAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].RuleID)
}

func TestOrchestrator_MalformedRuleSkipped(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	acct := f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	label := f.addClassification(t, "read-access")

	// Insert a malformed expression directly; the write surface validates,
	// but stored rules can rot.
	broken := f.addRule(t, domain.EnginePostgres, label.ID, `{"operator": "NOPE"}`)
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 1, result.TotalAdded)

	active, err := f.assignments.ListActiveForAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.NotEqual(t, broken.ID, active[0].RuleID)
}

func TestOrchestrator_NoRulesFails(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.Error(t, err)
	assert.Equal(t, StateFailed, f.orchestrator.State())

	batch, getErr := f.batches.GetByID(context.Background(), result.BatchID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.BatchFailed, batch.Status)
	assert.NotEmpty(t, batch.Error)
}

func TestOrchestrator_NoAccountsFails(t *testing.T) {
	f := newClassifyFixture(t)
	label := f.addClassification(t, "read-access")
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	_, err := f.orchestrator.Run(context.Background(), "test")
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestOrchestrator_WorksWithoutCache(t *testing.T) {
	f := newClassifyFixture(t)
	f.orchestrator = NewOrchestrator(f.rules, f.accounts, f.assignments, f.batches, nil, 2, nil)
	inst := f.addInstance(t, domain.EnginePostgres)
	f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	label := f.addClassification(t, "read-access")
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalAdded)
}

func TestOrchestrator_CacheClearedMidStreamStillCorrect(t *testing.T) {
	f := newClassifyFixture(t)
	inst := f.addInstance(t, domain.EnginePostgres)
	acct := f.addAccount(t, inst.ID, "reader", domain.EnginePostgres, "SELECT")
	label := f.addClassification(t, "read-access")
	f.addRule(t, domain.EnginePostgres, label.ID, selectExpr)

	_, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)

	// Operator clears everything between runs; results must not change.
	f.cache.ClearAll()

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalMatches)

	active, err := f.assignments.ListActiveForAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestOrchestrator_MultiEngine(t *testing.T) {
	f := newClassifyFixture(t)
	pg := f.addInstance(t, domain.EnginePostgres)
	my := f.addInstance(t, domain.EngineMySQL)
	f.addAccount(t, pg.ID, "pg_reader", domain.EnginePostgres, "SELECT")
	f.addAccount(t, my.ID, "my_root", domain.EngineMySQL, "SUPER")
	readers := f.addClassification(t, "read-access")
	admins := f.addClassification(t, "superuser")
	f.addRule(t, domain.EnginePostgres, readers.ID, selectExpr)
	f.addRule(t, domain.EngineMySQL, admins.ID, superExpr)

	result, err := f.orchestrator.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalMatches)
	assert.Equal(t, 2, result.ClassifiedAccounts)
	assert.Equal(t, 1, result.PerEngine[domain.EnginePostgres].Matches)
	assert.Equal(t, 1, result.PerEngine[domain.EngineMySQL].Matches)

	// The run grouped through the cache's per-engine partitions.
	pgRules, ok := f.cache.RulesForEngine(domain.EnginePostgres)
	require.True(t, ok)
	assert.Len(t, pgRules, 1)
	myRules, ok := f.cache.RulesForEngine(domain.EngineMySQL)
	require.True(t, ok)
	assert.Len(t, myRules, 1)
}
