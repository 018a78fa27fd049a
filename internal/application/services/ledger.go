package services

import (
	"sort"

	"github.com/longregen/reprompt/internal/domain/models"
)

// Ledger accumulates every candidate produced during a run. It is
// append-only and owned by a single writer, the orchestrator.
type Ledger struct {
	candidates []models.Candidate
}

// NewLedger creates an empty ledger sized for the expected run.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{candidates: make([]models.Candidate, 0, capacity)}
}

// Append adds candidates in order.
func (l *Ledger) Append(candidates ...models.Candidate) {
	l.candidates = append(l.candidates, candidates...)
}

// Len returns the number of candidates recorded so far.
func (l *Ledger) Len() int {
	return len(l.candidates)
}

// All returns a copy of the candidates in insertion order.
func (l *Ledger) All() []models.Candidate {
	out := make([]models.Candidate, len(l.candidates))
	copy(out, l.candidates)
	return out
}

// Top returns the k highest scoring candidates, descending. Ties keep
// insertion order.
func (l *Ledger) Top(k int) []models.Candidate {
	if k <= 0 {
		return nil
	}
	ranked := l.All()
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}

// Best returns the highest scoring candidate, or false when empty.
func (l *Ledger) Best() (models.Candidate, bool) {
	top := l.Top(1)
	if len(top) == 0 {
		return models.Candidate{}, false
	}
	return top[0], true
}
