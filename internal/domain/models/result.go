package models

import "time"

// StopReason explains why the iteration loop ended.
type StopReason string

const (
	StopConverged        StopReason = "converged"
	StopExhausted        StopReason = "exhausted"
	StopAllStreamsFailed StopReason = "all_streams_failed"
)

// StreamOutcome is what one stream produced in one iteration.
type StreamOutcome struct {
	Stream    int           `json:"stream"`
	Entry     *HistoryEntry `json:"entry,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
}

// Failed reports whether the stream produced no candidate this iteration.
func (o StreamOutcome) Failed() bool {
	return o.Entry == nil
}

// IterationTrace records one iteration across all streams.
type IterationTrace struct {
	Iteration  int             `json:"iteration"`
	Outcomes   []StreamOutcome `json:"outcomes"`
	BestScore  float64         `json:"best_score"`
	Failures   int             `json:"failures"`
	DurationMs int64           `json:"duration_ms"`
}

// ReferenceScore is a candidate's similarity against one reference.
type ReferenceScore struct {
	Reference int     `json:"reference"`
	Score     float64 `json:"score"`
	Error     string  `json:"error,omitempty"`
}

// FinalEvaluation is a finalist re-scored against the full reference set.
type FinalEvaluation struct {
	Prompt           string           `json:"prompt"`
	Stream           int              `json:"stream"`
	Iteration        int              `json:"source_iteration"`
	InIterationScore float64          `json:"in_iteration_score"`
	TotalScore       float64          `json:"total_score"`
	AverageScore     float64          `json:"average_score"`
	Scores           []ReferenceScore `json:"scores"`
	Artifact         *ImageArtifact   `json:"artifact,omitempty"`
}

// Evaluated reports whether at least one reference was scored.
func (f FinalEvaluation) Evaluated() bool {
	for _, s := range f.Scores {
		if s.Error == "" {
			return true
		}
	}
	return false
}

// RunResult is everything a search returns to its caller.
type RunResult struct {
	BestPrompt       string            `json:"best_prompt"`
	BestScore        float64           `json:"best_score"`
	BestArtifact     *ImageArtifact    `json:"best_artifact,omitempty"`
	InitialPrompt    string            `json:"initial_prompt"`
	StopReason       StopReason        `json:"stop_reason"`
	Iterations       []IterationTrace  `json:"iterations"`
	FinalEvaluations []FinalEvaluation `json:"final_evaluations"`
	CandidateCount   int               `json:"candidate_count"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`

	// Candidates is the full ledger in insertion order
	Candidates []Candidate `json:"candidates,omitempty"`
}

// HasCandidate reports whether the run found any usable prompt.
func (r *RunResult) HasCandidate() bool {
	return r != nil && r.BestPrompt != ""
}
