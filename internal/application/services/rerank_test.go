package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
)

func testEnv(gen *stubGenerator, refVectors [][]float32) *runEnv {
	refs := make([]string, len(refVectors))
	for i := range refs {
		refs[i] = "ref.png"
	}
	return &runEnv{
		gen:        gen,
		classifier: acceptAll{},
		ids:        &mockIDGenerator{},
		metrics:    nopMetrics{},
		logger:     nopLogger{},
		refs:       models.NewReferenceSet(refs...),
		refVectors: refVectors,
		threshold:  0.99,
	}
}

func TestRerank_SelectsByTotalScore(t *testing.T) {
	ledger := NewLedger(5)
	ledger.Append(
		models.Candidate{Prompt: "p0.9", Score: 0.9, Embedding: []float32{1, 0}},
		models.Candidate{Prompt: "p0.8", Score: 0.8, Embedding: []float32{1, 1}},
		models.Candidate{Prompt: "p0.95", Score: 0.95, Embedding: []float32{1, 0.2}},
		models.Candidate{Prompt: "p0.4", Score: 0.4, Embedding: []float32{1, 1}},
		models.Candidate{Prompt: "p0.7", Score: 0.7, Embedding: []float32{1, 1}},
	)

	cfg := models.SearchConfig{StreamCount: 2, RerankMax: 3}
	finalists := ledger.Top(cfg.FinalistCount(ledger.Len()))
	require.Len(t, finalists, 3)

	var selected []float64
	for _, c := range finalists {
		selected = append(selected, c.Score)
	}
	assert.Equal(t, []float64{0.95, 0.9, 0.8}, selected)

	svc := newTestSearch(&stubGenerator{}, nil)
	env := testEnv(&stubGenerator{}, [][]float32{{1, 0}, {0, 1}})
	evals := svc.rerank(context.Background(), env, finalists, 2)

	require.Len(t, evals, 3)
	assert.Equal(t, "p0.8", evals[0].Prompt, "highest summed score wins over highest single score")
	assert.Equal(t, "p0.95", evals[1].Prompt)
	assert.Equal(t, "p0.9", evals[2].Prompt)

	wantTotal := 2 / math.Sqrt2
	assert.InDelta(t, wantTotal, evals[0].TotalScore, 1e-6)
	assert.InDelta(t, wantTotal/2, evals[0].AverageScore, 1e-6)
	assert.InDelta(t, 0.8, evals[0].InIterationScore, 1e-9)
	assert.Len(t, evals[0].Scores, 2)
}

func TestRerank_PartialReferenceFailure(t *testing.T) {
	svc := newTestSearch(&stubGenerator{}, nil)
	env := testEnv(&stubGenerator{}, [][]float32{{1, 0}, {1, 0, 0}})

	evals := svc.rerank(context.Background(), env, []models.Candidate{
		{Prompt: "only", Score: 0.5, Embedding: []float32{1, 0}},
	}, 1)

	require.Len(t, evals, 1)
	e := evals[0]
	assert.True(t, e.Evaluated())
	assert.InDelta(t, 1.0, e.TotalScore, 1e-9)
	assert.InDelta(t, 0.5, e.AverageScore, 1e-9, "average divides by the full reference set")
	require.Len(t, e.Scores, 2)
	assert.Empty(t, e.Scores[0].Error)
	assert.Contains(t, e.Scores[1].Error, domain.ErrDimensionMismatch.Error())
}

func TestRerank_RegeneratesMissingArtifacts(t *testing.T) {
	gen := &stubGenerator{embedFn: scoreEmbedder(func(string) float64 { return 0.6 })}
	svc := newTestSearch(gen, nil)
	env := testEnv(gen, [][]float32{{1, 0}})

	evals := svc.rerank(context.Background(), env, []models.Candidate{{Prompt: "lost", Score: 0.3}}, 1)

	require.Len(t, evals, 1)
	assert.Equal(t, []string{"lost"}, gen.generated())
	require.NotNil(t, evals[0].Artifact)
	assert.InDelta(t, 0.6, evals[0].TotalScore, 1e-6)
}

func TestRerank_ReusesArtifactWithoutEmbedding(t *testing.T) {
	gen := &stubGenerator{embedFn: scoreEmbedder(func(string) float64 { return 0.7 })}
	svc := newTestSearch(gen, nil)
	env := testEnv(gen, [][]float32{{1, 0}})

	artifact := &models.ImageArtifact{ID: "img_1", Data: []byte("kept")}
	evals := svc.rerank(context.Background(), env, []models.Candidate{{Prompt: "kept", Score: 0.3, Artifact: artifact}}, 1)

	require.Len(t, evals, 1)
	assert.Empty(t, gen.generated(), "existing artifact must be reused")
	assert.Same(t, artifact, evals[0].Artifact)
	assert.InDelta(t, 0.7, evals[0].TotalScore, 1e-6)
}

func TestRerank_NothingEvaluable(t *testing.T) {
	gen := &stubGenerator{
		generateFn: func(string) (*models.ImageArtifact, error) {
			return nil, domain.ErrGenerationFailure
		},
	}
	svc := newTestSearch(gen, nil)
	env := testEnv(gen, [][]float32{{1, 0}, {0, 1}})

	evals := svc.rerank(context.Background(), env, []models.Candidate{
		{Prompt: "a", Score: 0.5},
		{Prompt: "b", Score: 0.4},
	}, 2)

	require.Len(t, evals, 2)
	for _, e := range evals {
		assert.False(t, e.Evaluated())
		assert.Len(t, e.Scores, 2)
		assert.Zero(t, e.TotalScore)
	}
}

func TestRerank_EmptyFinalists(t *testing.T) {
	svc := newTestSearch(&stubGenerator{}, nil)
	assert.Nil(t, svc.rerank(context.Background(), testEnv(&stubGenerator{}, [][]float32{{1}}), nil, 1))
}

func TestSearchService_FinalRerankAcrossReferences(t *testing.T) {
	// References embed to [1, 0] and [0, 1]. The seed prompt is close to the
	// first reference only; its refinement sits between both and must win
	// the final ranking on summed score.
	gen := &stubGenerator{
		describeFn: func(image models.ImageInput) (string, error) {
			if len(image.Data) > 0 {
				return "img:" + string(image.Data), nil
			}
			return "ref:" + image.Path, nil
		},
		embedFn: func(text string) ([]float32, error) {
			switch text {
			case "ref:a.png":
				return []float32{1, 0}, nil
			case "ref:b.png":
				return []float32{0, 1}, nil
			case "img:ref:a.png":
				return []float32{1, 0.1}, nil
			default:
				return []float32{1, 1}, nil
			}
		},
	}
	svc := newTestSearch(gen, nil)

	result, err := svc.Run(context.Background(), models.NewReferenceSet("a.png", "b.png"), testConfig(2, 1, 0.999))
	require.NoError(t, err)

	require.Len(t, result.FinalEvaluations, 2)
	top := result.FinalEvaluations[0]
	assert.Equal(t, "ref:a.png>2", top.Prompt)
	assert.Equal(t, top.Prompt, result.BestPrompt)
	assert.InDelta(t, 1/math.Sqrt2, result.BestScore, 1e-6)
	assert.InDelta(t, top.TotalScore/2, top.AverageScore, 1e-9)
	assert.Greater(t, top.TotalScore, result.FinalEvaluations[1].TotalScore)
	assert.Equal(t, "ref:a.png", result.FinalEvaluations[1].Prompt)
}
