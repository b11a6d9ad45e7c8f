package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// ApprovalState is the resolution of an approval gate
type ApprovalState string

const (
	ApprovalStateCreated  ApprovalState = "CREATED"
	ApprovalStateApproved ApprovalState = "APPROVED"
	ApprovalStateExpired  ApprovalState = "EXPIRED"
)

// CategoryResult is the outcome of scanning one category
type CategoryResult struct {
	Category int    `json:"category"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

// RunResult summarises a pipeline run
type RunResult struct {
	RunID         uuid.UUID        `json:"run_id"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	Seeded        int              `json:"seeded"`
	Categories    []CategoryResult `json:"categories"`
	Validated     int              `json:"validated"`
	Active        int              `json:"active"`
	Inactive      int              `json:"inactive"`
	ApprovalID    *uuid.UUID       `json:"approval_id,omitempty"`
	ApprovalState ApprovalState    `json:"approval_state,omitempty"`
	Promoted      bool             `json:"promoted"`
	PromotedRows  int              `json:"promoted_rows"`
}

// Inserted returns the total number of new stage entries across categories
func (r *RunResult) Inserted() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Inserted
	}
	return total
}

// RunEvent is published on every pipeline state change
type RunEvent struct {
	RunID     uuid.UUID     `json:"run_id"`
	Stage     string        `json:"stage"`
	Status    RunStatus     `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
	Result    *RunResult    `json:"result,omitempty"`
	Approval  ApprovalState `json:"approval_state,omitempty"`
}
