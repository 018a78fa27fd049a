package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
)

var runRowColumns = []string{
	"id", "status", "reference_images", "config", "result", "error", "created_at", "updated_at",
}

func testRun() *models.SearchRun {
	return models.NewSearchRun("sr_1", models.NewReferenceSet("a.png", "b.png"), models.DefaultSearchConfig())
}

func testResult() *models.RunResult {
	return &models.RunResult{
		BestPrompt: "a fox",
		BestScore:  0.8,
		StopReason: models.StopExhausted,
		Candidates: []models.Candidate{
			{Stream: 0, Iteration: 1, Prompt: "fox", Score: 0.5, Embedding: []float32{1, 0}},
			{Stream: 1, Iteration: 1, Prompt: "a fox", Score: 0.8, Artifact: &models.ImageArtifact{ID: "img_1", Location: "out/img_1.png"}},
		},
	}
}

func TestRunRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(nil)
	run := testRun()

	mock.ExpectExec("INSERT INTO search_runs").
		WithArgs(run.ID, run.Status, pgxmock.AnyArg(), pgxmock.AnyArg(), sql.NullString{}, run.CreatedAt, run.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(setupMockContext(mock), run); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepository_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(nil)
	ctx := setupMockContext(mock)

	mock.ExpectExec("UPDATE search_runs").
		WithArgs("sr_1", models.RunStatusFailed, sql.NullString{String: "boom", Valid: true}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE search_runs").
		WithArgs("sr_missing", models.RunStatusRunning, sql.NullString{}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.UpdateStatus(ctx, "sr_1", models.RunStatusFailed, "boom"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := repo.UpdateStatus(ctx, "sr_missing", models.RunStatusRunning, ""); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepository_SaveResult(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(mock)
	result := testResult()
	vec := pgvector.NewVector([]float32{1, 0})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE search_runs SET result").
		WithArgs("sr_1", pgxmock.AnyArg(), sql.NullString{String: "a fox", Valid: true}, 0.8,
			sql.NullString{String: "exhausted", Valid: true}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM search_candidates").
		WithArgs("sr_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO search_candidates").
		WithArgs("sr_1", 0, 0, 1, "fox", 0.5, 0, sql.NullString{}, &vec).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO search_candidates").
		WithArgs("sr_1", 1, 1, 1, "a fox", 0.8, 0, sql.NullString{String: "out/img_1.png", Valid: true}, (*pgvector.Vector)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.SaveResult(t.Context(), "sr_1", result); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepository_SaveResultRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE search_runs SET result").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = repo.SaveResult(t.Context(), "sr_missing", testResult())
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(nil)
	run := testRun()
	refs, _ := json.Marshal(run.References)
	cfg, _ := json.Marshal(run.Config)
	doc, _ := json.Marshal(testResult())
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM search_runs WHERE id").
		WithArgs("sr_1").
		WillReturnRows(pgxmock.NewRows(runRowColumns).
			AddRow("sr_1", models.RunStatusCompleted, refs, cfg, doc, sql.NullString{}, now, now))
	mock.ExpectQuery("SELECT position, (.+) FROM search_candidates").
		WithArgs("sr_1").
		WillReturnRows(pgxmock.NewRows([]string{"position", "embedding"}).AddRow(0, "[1,0]"))

	got, err := repo.GetByID(setupMockContext(mock), "sr_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Status != models.RunStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if len(got.References) != 2 || got.References[1].Path != "b.png" {
		t.Errorf("unexpected references: %+v", got.References)
	}
	if got.Config.StreamCount != run.Config.StreamCount {
		t.Errorf("expected stream count %d, got %d", run.Config.StreamCount, got.Config.StreamCount)
	}
	if got.Result == nil || got.Result.BestPrompt != "a fox" {
		t.Fatalf("unexpected result: %+v", got.Result)
	}
	if len(got.Result.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got.Result.Candidates))
	}
	if e := got.Result.Candidates[0].Embedding; len(e) != 2 || e[0] != 1 || e[1] != 0 {
		t.Errorf("expected embedding [1 0], got %v", e)
	}
	if got.Result.Candidates[1].Embedding != nil {
		t.Errorf("expected no embedding for second candidate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRunRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(nil)

	mock.ExpectQuery("SELECT (.+) FROM search_runs WHERE id").
		WithArgs("sr_missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(setupMockContext(mock), "sr_missing")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRunRepository(nil)
	refs, _ := json.Marshal(models.NewReferenceSet("a.png"))
	cfg, _ := json.Marshal(models.DefaultSearchConfig())
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM search_runs ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(runRowColumns).
			AddRow("sr_2", models.RunStatusRunning, refs, cfg, []byte(nil), sql.NullString{}, now, now).
			AddRow("sr_1", models.RunStatusFailed, refs, cfg, []byte(nil), sql.NullString{String: "boom", Valid: true}, now, now))

	runs, err := repo.List(setupMockContext(mock), 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "sr_2" || runs[0].Result != nil {
		t.Errorf("unexpected first run: %+v", runs[0])
	}
	if runs[1].Error != "boom" {
		t.Errorf("expected error boom, got %q", runs[1].Error)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
