// Package memory provides an in-process run archive for deployments
// without a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
)

// RunRepository keeps runs in a map. Stored and returned runs are deep
// copies, so callers never share state with the archive.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.SearchRun
}

func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]*models.SearchRun)}
}

func (r *RunRepository) Create(ctx context.Context, run *models.SearchRun) error {
	cp, err := clone(run)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = cp
	return nil
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RunRepository) SaveResult(ctx context.Context, id string, result *models.RunResult) error {
	cp, err := cloneResult(result)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Result = cp
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.SearchRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return clone(run)
}

// List returns runs newest first.
func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*models.SearchRun, error) {
	r.mu.RLock()
	all := make([]*models.SearchRun, 0, len(r.runs))
	for _, run := range r.runs {
		all = append(all, run)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*models.SearchRun{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]*models.SearchRun, 0, len(all))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, run := range all {
		cp, err := clone(run)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func clone(run *models.SearchRun) (*models.SearchRun, error) {
	cp := *run
	result, err := cloneResult(run.Result)
	if err != nil {
		return nil, err
	}
	cp.Result = result
	cp.References = append(models.ReferenceSet(nil), run.References...)
	return &cp, nil
}

// cloneResult deep-copies through JSON and restores the fields JSON omits.
func cloneResult(result *models.RunResult) (*models.RunResult, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to copy result: %w", err)
	}
	var cp models.RunResult
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to copy result: %w", err)
	}
	for i := range cp.Candidates {
		if i < len(result.Candidates) {
			cp.Candidates[i].Embedding = append([]float32(nil), result.Candidates[i].Embedding...)
		}
	}
	return &cp, nil
}
