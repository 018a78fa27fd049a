package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
)

// RunRepository archives search runs in search_runs and their ledger
// in search_candidates.
type RunRepository struct {
	BaseRepository
	tx *TransactionManager
}

func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{
		BaseRepository: NewBaseRepository(db),
		tx:             NewTransactionManager(db),
	}
}

const runColumns = `id, status, reference_images, config, result, error, created_at, updated_at`

func (r *RunRepository) Create(ctx context.Context, run *models.SearchRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	refs, err := json.Marshal(run.References)
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO search_runs (id, status, reference_images, config, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.conn(ctx).Exec(ctx, query,
		run.ID,
		run.Status,
		refs,
		cfg,
		nullString(run.Error),
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus, errMsg string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE search_runs
		SET status = $2, error = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query, id, status, nullString(errMsg), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// SaveResult stores the result document and replaces the run's candidate
// rows in one transaction.
func (r *RunRepository) SaveResult(ctx context.Context, id string, result *models.RunResult) error {
	doc, err := marshalJSONField(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		conn := r.conn(ctx)

		tag, err := conn.Exec(ctx, `
			UPDATE search_runs
			SET result = $2, best_prompt = $3, best_score = $4, stop_reason = $5, updated_at = $6
			WHERE id = $1`,
			id, doc, nullString(result.BestPrompt), result.BestScore, nullString(string(result.StopReason)), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrRunNotFound
		}

		if _, err := conn.Exec(ctx, `DELETE FROM search_candidates WHERE run_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear candidates: %w", err)
		}

		for i, c := range result.Candidates {
			var embedding *pgvector.Vector
			if len(c.Embedding) > 0 {
				v := pgvector.NewVector(c.Embedding)
				embedding = &v
			}
			_, err := conn.Exec(ctx, `
				INSERT INTO search_candidates (
					run_id, position, stream, iteration, prompt, score, reference_used, artifact_ref, embedding
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				id, i, c.Stream, c.Iteration, c.Prompt, c.Score, c.ReferenceUsed,
				nullString(c.Artifact.Ref()), embedding,
			)
			if err != nil {
				return fmt.Errorf("failed to insert candidate %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetByID returns the run with its result; candidate embeddings are
// restored from search_candidates.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.SearchRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM search_runs WHERE id = $1`

	run, err := scanRun(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}

	if run.Result != nil && len(run.Result.Candidates) > 0 {
		if err := r.loadEmbeddings(ctx, run); err != nil {
			return nil, err
		}
	}
	return run, nil
}

func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*models.SearchRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM search_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.SearchRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) loadEmbeddings(ctx context.Context, run *models.SearchRun) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT position, embedding::text
		FROM search_candidates
		WHERE run_id = $1 AND embedding IS NOT NULL
		ORDER BY position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load candidate embeddings: %w", err)
	}
	defer rows.Close()

	candidates := run.Result.Candidates
	for rows.Next() {
		var position int
		var text string
		if err := rows.Scan(&position, &text); err != nil {
			return err
		}
		if position < 0 || position >= len(candidates) {
			continue
		}
		var v pgvector.Vector
		if err := v.Scan(text); err != nil {
			return fmt.Errorf("failed to parse embedding %d: %w", position, err)
		}
		candidates[position].Embedding = v.Slice()
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.SearchRun, error) {
	var run models.SearchRun
	var refs, cfg, result []byte
	var errMsg sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Status,
		&refs,
		&cfg,
		&result,
		&errMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONField(refs, &run.References); err != nil {
		return nil, fmt.Errorf("failed to unmarshal references: %w", err)
	}
	if err := unmarshalJSONField(cfg, &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if run.Result, err = unmarshalJSONPointer[models.RunResult](result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	run.Error = getString(errMsg)
	return &run, nil
}
