package models

// EntryType tags how the prompt of a history entry was obtained.
type EntryType string

const (
	// EntryInitial marks the bootstrap prompt
	EntryInitial EntryType = "initial"
	// EntryRefined marks a prompt returned by a successful refinement
	EntryRefined EntryType = "refined"
	// EntryError marks a prompt carried over after refinement failed
	EntryError EntryType = "error"
)

// HistoryEntry is one scored attempt of one stream. Entries are append-only
// and are replayed to the generative service as refinement context.
type HistoryEntry struct {
	Stream        int            `json:"stream"`
	Iteration     int            `json:"iteration"`
	Type          EntryType      `json:"type"`
	Prompt        string         `json:"prompt"`
	Artifact      *ImageArtifact `json:"artifact,omitempty"`
	ReferenceUsed int            `json:"reference_used"`
	Score         float64        `json:"score"`

	// RefineError records a failed refinement after this attempt; the
	// stream kept Prompt for its next iteration.
	RefineError string `json:"refine_error,omitempty" msgpack:"refine_error,omitempty"`
}

// Candidate is a ledger projection of a successful HistoryEntry.
type Candidate struct {
	Stream        int            `json:"stream"`
	Prompt        string         `json:"prompt"`
	Score         float64        `json:"in_iteration_score"`
	Artifact      *ImageArtifact `json:"artifact,omitempty"`
	Iteration     int            `json:"source_iteration"`
	ReferenceUsed int            `json:"reference_used"`

	// Embedding of the artifact, cached for re-ranking
	Embedding []float32 `json:"-" msgpack:"-"`
}

// CandidateFromEntry projects a history entry into a ledger candidate.
func CandidateFromEntry(e HistoryEntry, embedding []float32) Candidate {
	return Candidate{
		Stream:        e.Stream,
		Prompt:        e.Prompt,
		Score:         e.Score,
		Artifact:      e.Artifact,
		Iteration:     e.Iteration,
		ReferenceUsed: e.ReferenceUsed,
		Embedding:     embedding,
	}
}
