package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

// RunManager submits searches, archives them and tracks in-flight runs.
type RunManager struct {
	search ports.SearchService
	repo   ports.RunRepository
	ids    ports.IDGenerator
	logger ports.Logger

	wg sync.WaitGroup
}

// NewRunManager creates a new run manager
func NewRunManager(search ports.SearchService, repo ports.RunRepository, ids ports.IDGenerator, logger ports.Logger) *RunManager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &RunManager{
		search: search,
		repo:   repo,
		ids:    ids,
		logger: logger,
	}
}

// Submit archives a pending run and starts it in the background. The run
// outlives ctx; use Wait to drain in-flight runs.
func (m *RunManager) Submit(ctx context.Context, refs models.ReferenceSet, cfg models.SearchConfig) (*models.SearchRun, error) {
	run, err := m.prepare(ctx, refs, cfg)
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(context.WithoutCancel(ctx), run)
	}()

	return run, nil
}

// Execute runs a search synchronously and returns the archived run.
func (m *RunManager) Execute(ctx context.Context, refs models.ReferenceSet, cfg models.SearchConfig) (*models.SearchRun, error) {
	run, err := m.prepare(ctx, refs, cfg)
	if err != nil {
		return nil, err
	}
	m.execute(ctx, run)
	return m.repo.GetByID(ctx, run.ID)
}

// Get returns an archived run by ID
func (m *RunManager) Get(ctx context.Context, id string) (*models.SearchRun, error) {
	return m.repo.GetByID(ctx, id)
}

// List returns archived runs, newest first
func (m *RunManager) List(ctx context.Context, limit, offset int) ([]*models.SearchRun, error) {
	return m.repo.List(ctx, limit, offset)
}

// Wait blocks until all submitted runs have finished.
func (m *RunManager) Wait() {
	m.wg.Wait()
}

func (m *RunManager) prepare(ctx context.Context, refs models.ReferenceSet, cfg models.SearchConfig) (*models.SearchRun, error) {
	if len(refs) == 0 {
		return nil, domain.ErrEmptyReferenceSet
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	id := m.ids.GenerateRunID()
	cfg.OutputLocation = JoinLocation(cfg.OutputLocation, id)

	run := models.NewSearchRun(id, refs, cfg)
	if err := m.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to archive run: %w", err)
	}
	return run, nil
}

func (m *RunManager) execute(ctx context.Context, run *models.SearchRun) {
	logger := m.logger.With(map[string]any{"run_id": run.ID})

	if err := m.repo.UpdateStatus(ctx, run.ID, models.RunStatusRunning, ""); err != nil {
		logger.Error("failed to mark run as running", map[string]any{"error": err.Error()})
	}

	result, err := m.search.Run(ctx, run.References, run.Config)
	if result != nil {
		if saveErr := m.repo.SaveResult(ctx, run.ID, result); saveErr != nil {
			logger.Error("failed to save run result", map[string]any{"error": saveErr.Error()})
		}
	}

	status, msg := models.RunStatusCompleted, ""
	if err != nil {
		status, msg = models.RunStatusFailed, err.Error()
		logger.Error("search run failed", map[string]any{"error": msg})
	} else {
		logger.Info("search run completed", map[string]any{
			"best_score":  result.BestScore,
			"stop_reason": result.StopReason,
		})
	}

	if err := m.repo.UpdateStatus(ctx, run.ID, status, msg); err != nil {
		logger.Error("failed to update run status", map[string]any{"error": err.Error()})
	}
}
