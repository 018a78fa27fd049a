package services

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/domain/similarity"
)

// rerank re-scores finalists against every reference and orders them by
// total score. A scoring failure is recorded on the affected reference and
// never aborts the phase. Evaluations with no successful reference sort last.
func (s *SearchService) rerank(ctx context.Context, env *runEnv, finalists []models.Candidate, parallelism int) []models.FinalEvaluation {
	if len(finalists) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "search.rerank", trace.WithAttributes(
		attribute.Int("candidates", len(finalists)),
	))
	defer span.End()

	timer := s.logger.Timer("search.rerank")
	evaluations := make([]models.FinalEvaluation, len(finalists))

	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, c := range finalists {
		g.Go(func() error {
			evaluations[i] = s.evaluate(ctx, env, c)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(evaluations, func(i, j int) bool {
		ei, ej := evaluations[i].Evaluated(), evaluations[j].Evaluated()
		if ei != ej {
			return ei
		}
		return evaluations[i].TotalScore > evaluations[j].TotalScore
	})

	timer.Stop(map[string]any{"finalists": len(finalists)})
	return evaluations
}

func (s *SearchService) evaluate(ctx context.Context, env *runEnv, c models.Candidate) models.FinalEvaluation {
	eval := models.FinalEvaluation{
		Prompt:           c.Prompt,
		Stream:           c.Stream,
		Iteration:        c.Iteration,
		InIterationScore: c.Score,
		Artifact:         c.Artifact,
		Scores:           make([]models.ReferenceScore, 0, len(env.refs)),
	}

	embedding, err := s.finalistEmbedding(ctx, env, &eval, c)
	if err != nil {
		s.logger.Warn("finalist could not be re-scored", map[string]any{
			"stream":    c.Stream,
			"iteration": c.Iteration,
			"error":     err.Error(),
		})
		for j := range env.refs {
			eval.Scores = append(eval.Scores, models.ReferenceScore{Reference: j, Error: err.Error()})
		}
		return eval
	}

	for j, ref := range env.refVectors {
		score, err := similarity.Score(ref, embedding)
		if err != nil {
			s.logger.Warn("reference scoring failed", map[string]any{
				"reference": j,
				"stream":    c.Stream,
				"iteration": c.Iteration,
				"error":     err.Error(),
			})
			eval.Scores = append(eval.Scores, models.ReferenceScore{Reference: j, Error: err.Error()})
			continue
		}
		eval.Scores = append(eval.Scores, models.ReferenceScore{Reference: j, Score: score})
		eval.TotalScore += score
	}
	eval.AverageScore = eval.TotalScore / float64(len(env.refs))
	return eval
}

// finalistEmbedding reuses the cached embedding or artifact of c and
// regenerates the image only when neither is available.
func (s *SearchService) finalistEmbedding(ctx context.Context, env *runEnv, eval *models.FinalEvaluation, c models.Candidate) ([]float32, error) {
	if len(c.Embedding) > 0 {
		return c.Embedding, nil
	}

	artifact := c.Artifact
	if !artifact.Usable() {
		var err error
		artifact, err = env.generate(ctx, c.Prompt)
		if err != nil {
			return nil, fmt.Errorf("regenerate: %w", err)
		}
		env.persist(ctx, artifact)
		eval.Artifact = artifact
	}
	return env.embedImage(ctx, artifact.Input())
}
