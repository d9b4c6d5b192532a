package domain

import "time"

// BatchStatus is the lifecycle state of a classification batch or sync
// session.
type BatchStatus string

const (
	BatchRunning BatchStatus = "running"
	BatchDone    BatchStatus = "done"
	BatchFailed  BatchStatus = "failed"
)

// EngineStats is the per-engine breakdown of one classification run.
type EngineStats struct {
	Accounts int `json:"accounts"`
	Rules    int `json:"rules"`
	Matches  int `json:"matches"`
	Failed   int `json:"failed"`
}

// ClassificationBatch records one orchestrator run with its stats and
// terminal status.
type ClassificationBatch struct {
	ID          string
	TriggeredBy string
	Status      BatchStatus
	Matched     int
	Failed      int
	Classified  int // distinct accounts that received at least one assignment
	PerEngine   map[Engine]*EngineStats
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
	DurationMS  int64
}

// SyncSession records one reconciliation run across one or more instances.
type SyncSession struct {
	ID          string
	TriggeredBy string
	Status      BatchStatus
	Instances   int
	Synced      int
	Added       int
	Modified    int
	Removed     int
	Failed      int
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
	DurationMS  int64
}

// SyncResult is the outcome of reconciling a single instance.
type SyncResult struct {
	InstanceID string `json:"instance_id"`
	Engine     Engine `json:"engine"`
	Success    bool   `json:"success"`
	Synced     int    `json:"synced"`
	Added      int    `json:"added"`
	Modified   int    `json:"modified"`
	Removed    int    `json:"removed"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// ClassifyResult is the outcome of one classification run.
type ClassifyResult struct {
	Success            bool                    `json:"success"`
	BatchID            string                  `json:"batch_id"`
	ClassifiedAccounts int                     `json:"classified_accounts"`
	TotalAdded         int                     `json:"total_classifications_added"`
	TotalMatches       int                     `json:"total_matches"`
	FailedCount        int                     `json:"failed_count"`
	PerEngine          map[Engine]*EngineStats `json:"per_engine"`
	Error              string                  `json:"error,omitempty"`
}
