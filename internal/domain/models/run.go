package models

import "time"

// RunStatus is the lifecycle state of an archived search run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SearchRun is a submitted search as kept by the run archive.
type SearchRun struct {
	ID         string       `json:"id"`
	Status     RunStatus    `json:"status"`
	References ReferenceSet `json:"references"`
	Config     SearchConfig `json:"config"`
	Result     *RunResult   `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewSearchRun creates a pending run.
func NewSearchRun(id string, refs ReferenceSet, cfg SearchConfig) *SearchRun {
	now := time.Now().UTC()
	return &SearchRun{
		ID:         id,
		Status:     RunStatusPending,
		References: refs,
		Config:     cfg,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsTerminal reports whether the run finished, successfully or not.
func (r *SearchRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
