package model

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusPlanning  RunStatus = "planning"
	RunStatusExecuting RunStatus = "executing"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one plan-and-execute request for a goal.
type Run struct {
	ID         int64           `json:"id"`
	Goal       string          `json:"goal"`
	Status     RunStatus       `json:"status"`
	Attempt    int32           `json:"attempt"`
	Error      *string         `json:"error,omitempty"`
	Report     json.RawMessage `json:"report,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunEvent is one persisted progress event of a run.
type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     int64           `json:"run_id"`
	Type      string          `json:"type"`
	Fields    json.RawMessage `json:"fields"`
	CreatedAt time.Time       `json:"created_at"`
}
