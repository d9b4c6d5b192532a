package domain

import (
	"context"
	"time"
)

// AccountChange is one unit of write work produced by the change detector.
// Exactly one of the change kinds applies:
//
//   - ChangeAdd: Facts is the new row, Entry its change-log record.
//   - ChangeModifyPrivilege / ChangeModifyOther: Facts is the updated row,
//     Entry carries the diff.
//   - ChangeDelete: Facts identifies the row to soft-delete.
//   - Entry == nil and Facts != nil: unchanged account, refresh
//     last_sync_at only.
type AccountChange struct {
	Kind  ChangeType // empty for a pure sync-timestamp refresh
	Facts *PermissionFacts
	Entry *ChangeLogEntry
}

// ChangeLogFilter narrows change-log queries.
type ChangeLogFilter struct {
	InstanceID string
	AccountKey string
	ChangeType ChangeType
	Page       PageRequest
}

// AccountRepository persists PermissionFacts rows.
type AccountRepository interface {
	// ListByInstance returns all live facts for one instance, ordered by
	// account key for deterministic diffing.
	ListByInstance(ctx context.Context, instanceID string) ([]*PermissionFacts, error)
	// ListActiveByEngine returns all live facts across instances of one
	// engine, the candidate set for classification.
	ListActiveByEngine(ctx context.Context, engine Engine) ([]*PermissionFacts, error)
	GetByID(ctx context.Context, id string) (*PermissionFacts, error)
	// ApplyChanges applies one fixed-size batch of account changes and
	// their change-log entries in a single transaction. A failure rolls
	// back only this batch.
	ApplyChanges(ctx context.Context, changes []*AccountChange, now time.Time) error
}

// ChangeLogRepository reads the append-only change log. Writes go through
// AccountRepository.ApplyChanges so facts and log stay transactional.
type ChangeLogRepository interface {
	List(ctx context.Context, filter ChangeLogFilter) ([]*ChangeLogEntry, int64, error)
}

// RuleRepository persists versioned classification rules.
type RuleRepository interface {
	ListActive(ctx context.Context) ([]*ClassificationRule, error)
	GetByID(ctx context.Context, id string) (*ClassificationRule, error)
	// Create inserts a rule as version 1 of a new group.
	Create(ctx context.Context, rule *ClassificationRule) (*ClassificationRule, error)
	// CreateVersion supersedes the active version of the rule's group:
	// the old version is deactivated, never mutated, and the new row is
	// inserted with version+1.
	CreateVersion(ctx context.Context, rule *ClassificationRule) (*ClassificationRule, error)
	Deactivate(ctx context.Context, id string) error
}

// ClassificationRepository persists the label catalog.
type ClassificationRepository interface {
	List(ctx context.Context) ([]*Classification, error)
	Create(ctx context.Context, c *Classification) (*Classification, error)
}

// AssignmentRepository persists classification assignments.
type AssignmentRepository interface {
	// DeactivateAuto flips every active auto assignment to inactive at
	// the start of a full reclassification. Manual rows are untouched.
	DeactivateAuto(ctx context.Context) (int64, error)
	// ActivePairs returns the uniqueness keys of all currently active
	// assignments, for pre-write deduplication.
	ActivePairs(ctx context.Context) (map[AssignmentPair]struct{}, error)
	InsertBatch(ctx context.Context, assignments []*ClassificationAssignment) error
	ListActiveForAccount(ctx context.Context, accountID string) ([]*ClassificationAssignment, error)
	// CountActiveDuplicates returns the number of (account,
	// classification) pairs holding more than one active row; always zero
	// after a correct run.
	CountActiveDuplicates(ctx context.Context) (int64, error)
}

// BatchRepository persists classification batch records.
type BatchRepository interface {
	Create(ctx context.Context, b *ClassificationBatch) error
	Finalize(ctx context.Context, b *ClassificationBatch) error
	GetByID(ctx context.Context, id string) (*ClassificationBatch, error)
	List(ctx context.Context, page PageRequest) ([]*ClassificationBatch, int64, error)
}

// SessionRepository persists sync session records.
type SessionRepository interface {
	Create(ctx context.Context, s *SyncSession) error
	Finalize(ctx context.Context, s *SyncSession) error
	GetByID(ctx context.Context, id string) (*SyncSession, error)
}

// InstanceRepository reads and seeds the instance registry.
type InstanceRepository interface {
	ListActive(ctx context.Context) ([]*Instance, error)
	GetByID(ctx context.Context, id string) (*Instance, error)
	// Upsert registers an instance by name, used by bootstrap seeding.
	Upsert(ctx context.Context, inst *Instance) (*Instance, error)
}
