package domain

import "time"

// AssignType distinguishes rule-matched assignments from manual ones.
type AssignType string

const (
	AssignAuto   AssignType = "auto"
	AssignManual AssignType = "manual"
)

// ClassificationAssignment links an account (a PermissionFacts row) to a
// classification. At most one active row exists per
// (account_id, classification_id) at any time.
type ClassificationAssignment struct {
	ID               string
	AccountID        string
	ClassificationID string
	RuleID           string // empty for manual assignments
	AssignType       AssignType
	BatchID          string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AssignmentPair is the uniqueness key for active assignments.
type AssignmentPair struct {
	AccountID        string
	ClassificationID string
}

// Pair returns the (account, classification) uniqueness key.
func (a *ClassificationAssignment) Pair() AssignmentPair {
	return AssignmentPair{AccountID: a.AccountID, ClassificationID: a.ClassificationID}
}
