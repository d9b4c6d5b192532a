// Package classify implements the classification orchestrator: rule
// loading, engine grouping, evaluation, and the deactivate-then-rewrite
// assignment commit.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"permsync/internal/cache"
	"permsync/internal/domain"
	"permsync/internal/rules"
)

// State is the orchestrator's run phase.
type State string

const (
	StateIdle         State = "IDLE"
	StateLoadingRules State = "LOADING_RULES"
	StateGrouping     State = "GROUPING"
	StateEvaluating   State = "EVALUATING"
	StateCommitting   State = "COMMITTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// candidate is one rule match pending commit.
type candidate struct {
	accountID        string
	classificationID string
	ruleID           string
	engine           domain.Engine
}

// Orchestrator runs full reclassification batches.
type Orchestrator struct {
	rules       domain.RuleRepository
	accounts    domain.AccountRepository
	assignments domain.AssignmentRepository
	batches     domain.BatchRepository
	cache       *cache.Cache
	batchSize   int
	log         *slog.Logger

	// runMu serializes the deactivate-then-rewrite phase: two concurrent
	// full runs must not race on the assignment table. The metastore
	// write pool is owned by this process, so an in-process guard
	// suffices.
	runMu sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// NewOrchestrator creates an Orchestrator. evalCache may be nil; every
// cache read has a direct-computation fallback.
func NewOrchestrator(
	ruleRepo domain.RuleRepository,
	accounts domain.AccountRepository,
	assignments domain.AssignmentRepository,
	batches domain.BatchRepository,
	evalCache *cache.Cache,
	batchSize int,
	log *slog.Logger,
) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		rules:       ruleRepo,
		accounts:    accounts,
		assignments: assignments,
		batches:     batches,
		cache:       evalCache,
		batchSize:   batchSize,
		log:         log,
		state:       StateIdle,
	}
}

// State returns the current run phase.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
}

// Run executes one full reclassification. Per-rule failures are counted,
// not fatal; only setup-level preconditions (no rules, no accounts) and
// batch bookkeeping errors abort the run.
func (o *Orchestrator) Run(ctx context.Context, actor string) (*domain.ClassifyResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	batch := &domain.ClassificationBatch{
		ID:          domain.NewID(),
		TriggeredBy: actor,
		Status:      domain.BatchRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := o.batches.Create(ctx, batch); err != nil {
		return nil, err
	}
	result := &domain.ClassifyResult{BatchID: batch.ID}

	o.setState(StateLoadingRules)
	ruleSet, err := o.loadRules(ctx)
	if err == nil && len(ruleSet) == 0 {
		err = domain.ErrNotFound("no active classification rules")
	}
	if err != nil {
		return result, o.fail(ctx, batch, result, err)
	}

	o.setState(StateGrouping)
	grouped := o.groupRules(ruleSet)
	accountsByEngine := make(map[domain.Engine][]*domain.PermissionFacts)
	total := 0
	for engine := range grouped {
		accts, err := o.accounts.ListActiveByEngine(ctx, engine)
		if err != nil {
			return result, o.fail(ctx, batch, result, err)
		}
		accountsByEngine[engine] = accts
		total += len(accts)
	}
	if total == 0 {
		return result, o.fail(ctx, batch, result, domain.ErrNotFound("no candidate accounts"))
	}

	o.setState(StateEvaluating)
	perEngine := make(map[domain.Engine]*domain.EngineStats)
	var candidates []candidate
	for _, engine := range domain.Engines {
		engineRules := grouped[engine]
		if len(engineRules) == 0 {
			continue
		}
		stats := &domain.EngineStats{
			Accounts: len(accountsByEngine[engine]),
			Rules:    len(engineRules),
		}
		perEngine[engine] = stats
		candidates = append(candidates,
			o.evaluateEngine(engine, engineRules, accountsByEngine[engine], stats)...)
	}

	o.setState(StateCommitting)
	if err := o.commit(ctx, batch.ID, candidates, perEngine, result); err != nil {
		return result, o.fail(ctx, batch, result, err)
	}

	for _, stats := range perEngine {
		result.TotalMatches += stats.Matches
		result.FailedCount += stats.Failed
	}
	result.PerEngine = perEngine
	result.Success = true

	o.setState(StateDone)
	batch.Status = domain.BatchDone
	batch.Matched = result.TotalMatches
	batch.Failed = result.FailedCount
	batch.Classified = result.ClassifiedAccounts
	batch.PerEngine = perEngine
	o.finalize(ctx, batch)

	o.log.Info("classification run complete",
		"batch", batch.ID, "matches", result.TotalMatches,
		"classified_accounts", result.ClassifiedAccounts,
		"added", result.TotalAdded, "failed", result.FailedCount)
	return result, nil
}

// loadRules is cache-first; a miss loads from the repository and
// repopulates the cache.
func (o *Orchestrator) loadRules(ctx context.Context) ([]*domain.ClassificationRule, error) {
	if o.cache != nil {
		if ruleSet, ok := o.cache.Rules(); ok {
			return ruleSet, nil
		}
	}
	ruleSet, err := o.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.SetRules(ruleSet)
	}
	return ruleSet, nil
}

// evaluateEngine evaluates every rule of one engine, in creation order,
// against every candidate account of that engine. Malformed rules are
// skipped and counted; they never match by default.
func (o *Orchestrator) evaluateEngine(engine domain.Engine, engineRules []*domain.ClassificationRule, accounts []*domain.PermissionFacts, stats *domain.EngineStats) []candidate {
	classifier, err := rules.ForEngine(engine)
	if err != nil {
		o.log.Error("no classifier", "engine", engine, "error", err)
		stats.Failed += len(engineRules)
		return nil
	}

	var out []candidate
	for _, rule := range engineRules {
		expr, err := rules.ParseRule(rule)
		if err != nil {
			o.log.Warn("skipping rule", "rule", rule.ID, "error", err)
			stats.Failed++
			continue
		}

		for _, facts := range accounts {
			match, ok := o.memoGet(rule.ID, facts.ID)
			if !ok {
				match = classifier.Evaluate(facts, expr)
				o.memoPut(rule.ID, facts.ID, match)
			}
			if match {
				stats.Matches++
				out = append(out, candidate{
					accountID:        facts.ID,
					classificationID: rule.ClassificationID,
					ruleID:           rule.ID,
					engine:           engine,
				})
			}
		}
	}
	return out
}

func (o *Orchestrator) memoGet(ruleID, accountID string) (bool, bool) {
	if o.cache == nil {
		return false, false
	}
	return o.cache.MemoGet(ruleID, accountID)
}

func (o *Orchestrator) memoPut(ruleID, accountID string, match bool) {
	if o.cache != nil {
		o.cache.MemoPut(ruleID, accountID, match)
	}
}

// commit deactivates all auto assignments, then bulk-inserts the new ones,
// deduplicated against both surviving (manual) rows and rows inserted
// earlier in this execution. Matches from different rules are additive: a
// later rule never overwrites an earlier rule's assignment, the first
// match of a (account, classification) pair wins.
func (o *Orchestrator) commit(ctx context.Context, batchID string, candidates []candidate, perEngine map[domain.Engine]*domain.EngineStats, result *domain.ClassifyResult) error {
	if _, err := o.assignments.DeactivateAuto(ctx); err != nil {
		return fmt.Errorf("deactivate auto assignments: %w", err)
	}

	seen, err := o.assignments.ActivePairs(ctx)
	if err != nil {
		return fmt.Errorf("load active pairs: %w", err)
	}

	var pending []*domain.ClassificationAssignment
	pendingEngine := make(map[string]domain.Engine)
	classified := make(map[string]struct{})
	for _, c := range candidates {
		pair := domain.AssignmentPair{AccountID: c.accountID, ClassificationID: c.classificationID}
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		a := &domain.ClassificationAssignment{
			ID:               domain.NewID(),
			AccountID:        c.accountID,
			ClassificationID: c.classificationID,
			RuleID:           c.ruleID,
			AssignType:       domain.AssignAuto,
			BatchID:          batchID,
			Active:           true,
		}
		pending = append(pending, a)
		pendingEngine[a.ID] = c.engine
	}

	for start := 0; start < len(pending); start += o.batchSize {
		end := start + o.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]
		if err := o.assignments.InsertBatch(ctx, chunk); err != nil {
			o.log.Error("assignment batch failed", "from", start, "size", len(chunk), "error", err)
			for _, a := range chunk {
				if stats := perEngine[pendingEngine[a.ID]]; stats != nil {
					stats.Failed++
				}
			}
			continue
		}
		result.TotalAdded += len(chunk)
		for _, a := range chunk {
			classified[a.AccountID] = struct{}{}
		}
	}
	result.ClassifiedAccounts = len(classified)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, batch *domain.ClassificationBatch, result *domain.ClassifyResult, err error) error {
	o.setState(StateFailed)
	result.Error = err.Error()
	batch.Status = domain.BatchFailed
	batch.Error = err.Error()
	o.finalize(ctx, batch)
	return err
}

func (o *Orchestrator) finalize(ctx context.Context, batch *domain.ClassificationBatch) {
	now := time.Now().UTC()
	batch.FinishedAt = &now
	batch.DurationMS = now.Sub(batch.StartedAt).Milliseconds()
	if err := o.batches.Finalize(ctx, batch); err != nil {
		o.log.Error("finalize batch failed", "batch", batch.ID, "error", err)
	}
}

// groupRules partitions the loaded rule set by engine, preferring the
// cache's per-engine partitions, which loadRules just (re)populated.
// The direct grouping fallback covers a nil cache and a cache cleared
// between the load and the grouping phase.
func (o *Orchestrator) groupRules(ruleSet []*domain.ClassificationRule) map[domain.Engine][]*domain.ClassificationRule {
	if o.cache != nil {
		grouped := make(map[domain.Engine][]*domain.ClassificationRule)
		for _, engine := range domain.Engines {
			part, ok := o.cache.RulesForEngine(engine)
			if !ok {
				return groupByEngine(ruleSet)
			}
			if len(part) > 0 {
				grouped[engine] = part
			}
		}
		return grouped
	}
	return groupByEngine(ruleSet)
}

func groupByEngine(ruleSet []*domain.ClassificationRule) map[domain.Engine][]*domain.ClassificationRule {
	grouped := make(map[domain.Engine][]*domain.ClassificationRule)
	for _, r := range ruleSet {
		grouped[r.Engine] = append(grouped[r.Engine], r)
	}
	return grouped
}
