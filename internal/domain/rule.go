package domain

import "time"

// Classification is a risk/category label assignable to accounts, either
// by rule match or by manual action.
type Classification struct {
	ID          string
	Name        string
	RiskLevel   string // "low", "medium", "high", "critical"
	Description string
	CreatedAt   time.Time
}

// ClassificationRule binds a rule expression to a classification for one
// engine. Rules are versioned: editing a rule creates a new version under
// the same group id and marks the old version inactive; versions are never
// mutated in place.
type ClassificationRule struct {
	ID               string
	GroupID          string
	Version          int
	Engine           Engine
	ClassificationID string
	Name             string
	// Expression is the stored JSON form of the rule predicate. It is
	// parsed and validated once per run, not per evaluation.
	Expression string
	Active     bool
	CreatedAt  time.Time
}
