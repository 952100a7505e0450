// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "time"

// RunKind identifies the batch job that produced a Run.
type RunKind string

const (
	RunProvision   RunKind = "provision"
	RunMigrate     RunKind = "migrate"
	RunValidate    RunKind = "validate"
	RunDeprovision RunKind = "deprovision"
	RunMaintain    RunKind = "maintain"
)

// RunStatus is the lifecycle state of a Run. A run whose tenants partly
// failed still ends as completed; aborted is reserved for fatal errors.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// UnitFailure records one failed unit of work inside a run.
type UnitFailure struct {
	ShopID int64  `json:"shop_id"`
	Table  string `json:"table,omitempty"`
	Error  string `json:"error"`
}

// RunMetadata is stored as JSON next to each run.
type RunMetadata struct {
	BatchSize   int           `json:"batch_size,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
	Tables      []string      `json:"tables,omitempty"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Failures    []UnitFailure `json:"failures,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Run is one invocation of a batch job.
type Run struct {
	ID         string
	Kind       RunKind
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Metadata   RunMetadata
}

// CheckpointStatus is the state of a (tenant, table) copy.
//
//	pending -> in_progress -> completed
//	any non-completed state -> failed (set by the orchestrator)
//	failed -> in_progress (on the next run)
type CheckpointStatus string

const (
	CheckpointPending    CheckpointStatus = "pending"
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

// Checkpoint is the persisted progress marker of one (tenant, table) copy.
// LastSyncedPK never decreases and RowsProcessed counts the rows copied with
// a primary key up to LastSyncedPK.
type Checkpoint struct {
	ShopID        int64
	Table         string
	Status        CheckpointStatus
	LastSyncedPK  int64
	RowsProcessed int64
	LastSyncedAt  *time.Time
	LastError     string
	UpdatedAt     time.Time
}
