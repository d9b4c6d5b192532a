// Package cache holds the rule-set cache and the rule-evaluation memo.
// Both are acceleration only: every caller has a direct-computation
// fallback, so a cleared or unavailable cache never affects correctness.
package cache

import (
	"sync"
	"time"

	"permsync/internal/domain"
)

type memoKey struct {
	RuleID    string
	AccountID string
}

// Cache bundles the TTL-based rule-set cache (global plus per-engine
// partitions) and the (rule, account) evaluation memo. A handle is injected
// into the orchestrator at construction; there is no package singleton.
type Cache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	all      []*domain.ClassificationRule
	byEngine map[domain.Engine][]*domain.ClassificationRule
	loadedAt time.Time

	memoMu sync.RWMutex
	memo   map[memoKey]bool
}

// New creates a Cache with the given rule-set TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:  ttl,
		memo: make(map[memoKey]bool),
	}
}

// SetRules stores the full active rule set and rebuilds the per-engine
// partitions, preserving creation order within each partition.
func (c *Cache) SetRules(all []*domain.ClassificationRule) {
	byEngine := make(map[domain.Engine][]*domain.ClassificationRule)
	for _, r := range all {
		byEngine[r.Engine] = append(byEngine[r.Engine], r)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = all
	c.byEngine = byEngine
	c.loadedAt = time.Now()
}

// Rules returns the cached full rule set, or ok=false on a miss or expiry.
func (c *Cache) Rules() ([]*domain.ClassificationRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stale() {
		return nil, false
	}
	return c.all, true
}

// RulesForEngine returns the cached per-engine partition, or ok=false on a
// miss or expiry.
func (c *Cache) RulesForEngine(e domain.Engine) ([]*domain.ClassificationRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stale() {
		return nil, false
	}
	return c.byEngine[e], true
}

func (c *Cache) stale() bool {
	if c.all == nil {
		return true
	}
	return c.ttl > 0 && time.Since(c.loadedAt) > c.ttl
}

// InvalidateRules drops the rule-set cache. Called on rule CRUD.
func (c *Cache) InvalidateRules() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = nil
	c.byEngine = nil
}

// MemoGet returns a memoized evaluation result.
func (c *Cache) MemoGet(ruleID, accountID string) (match, ok bool) {
	c.memoMu.RLock()
	defer c.memoMu.RUnlock()
	match, ok = c.memo[memoKey{RuleID: ruleID, AccountID: accountID}]
	return match, ok
}

// MemoPut stores an evaluation result.
func (c *Cache) MemoPut(ruleID, accountID string, match bool) {
	c.memoMu.Lock()
	defer c.memoMu.Unlock()
	c.memo[memoKey{RuleID: ruleID, AccountID: accountID}] = match
}

// InvalidateMemo drops all memoized evaluations. Called after any sync that
// changed permission facts.
func (c *Cache) InvalidateMemo() {
	c.memoMu.Lock()
	defer c.memoMu.Unlock()
	c.memo = make(map[memoKey]bool)
}

// ClearAll is the operator-invoked full clear.
func (c *Cache) ClearAll() {
	c.InvalidateRules()
	c.InvalidateMemo()
}

// ClearEngine clears one engine's rule partition. The memo is cleared
// wholesale: it is keyed by rule id, and a coarser clear only costs
// recomputation, never correctness.
func (c *Cache) ClearEngine(e domain.Engine) {
	c.mu.Lock()
	if c.byEngine != nil {
		delete(c.byEngine, e)
	}
	// The full set no longer reflects the partition map; drop it too.
	c.all = nil
	c.mu.Unlock()

	c.InvalidateMemo()
}
