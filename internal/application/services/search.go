package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

var tracer = otel.Tracer("reprompt/search")

// SearchService runs feedback-guided prompt searches. It owns the streams,
// and the candidate ledger of each run.
//
// A run proceeds in three phases:
//  1. Bootstrap: describe the first reference and seed every stream with it
//  2. Iterate: tick all streams in parallel, join, record, check termination
//  3. Re-rank: re-score the top candidates against every reference
type SearchService struct {
	gen        ports.GenerativeService
	classifier ports.RefusalClassifier
	sinks      ports.SinkFactory
	ids        ports.IDGenerator
	logger     ports.Logger
	metrics    ports.SearchMetrics
	seed       uint64
	hasSeed    bool
}

// NewSearchService creates a new search service. sinks may be nil, in
// which case artifacts are never persisted.
func NewSearchService(
	gen ports.GenerativeService,
	classifier ports.RefusalClassifier,
	sinks ports.SinkFactory,
	ids ports.IDGenerator,
	logger ports.Logger,
) *SearchService {
	if logger == nil {
		logger = nopLogger{}
	}
	return &SearchService{
		gen:        gen,
		classifier: classifier,
		sinks:      sinks,
		ids:        ids,
		logger:     logger,
		metrics:    nopMetrics{},
	}
}

// WithMetrics sets the metrics recorder
func (s *SearchService) WithMetrics(metrics ports.SearchMetrics) *SearchService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithSeed fixes the random source used for reference sampling
func (s *SearchService) WithSeed(seed uint64) *SearchService {
	s.seed = seed
	s.hasSeed = true
	return s
}

// Run searches for the prompt that best reproduces refs.
//
// It fails with domain.ErrBootstrapFailure when the initial description is
// unusable, and with domain.ErrNoCandidates (plus domain.ErrAllStreamsFailed
// when that ended the loop) when no stream ever produced a scored image. In
// the latter case the partial result is returned alongside the error so the
// trace is not lost.
func (s *SearchService) Run(ctx context.Context, refs models.ReferenceSet, cfg models.SearchConfig) (*models.RunResult, error) {
	if len(refs) == 0 {
		return nil, domain.ErrEmptyReferenceSet
	}
	cfg, warnings := cfg.Normalize()
	for _, w := range warnings {
		s.logger.Warn("search config adjusted", map[string]any{"warning": w})
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	ctx, span := tracer.Start(ctx, "search.run", trace.WithAttributes(
		attribute.Int("streams", cfg.StreamCount),
		attribute.Int("iterations", cfg.MaxIterations),
		attribute.Int("references", len(refs)),
	))
	defer span.End()

	s.metrics.RunStarted()
	outcome := "failed"
	defer func() { s.metrics.RunFinished(outcome) }()

	timer := s.logger.Timer("search.run")

	sink, err := s.openSink(ctx, cfg.OutputLocation)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	env := &runEnv{
		gen:         s.gen,
		classifier:  s.classifier,
		sink:        sink,
		ids:         s.ids,
		metrics:     s.metrics,
		logger:      s.logger,
		refs:        refs,
		threshold:   cfg.SimilarityThreshold,
		callTimeout: cfg.CallTimeout,
	}

	result := &models.RunResult{StartedAt: time.Now().UTC()}

	seeds, vectors, err := s.bootstrap(ctx, env, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("bootstrap failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	env.refVectors = vectors
	result.InitialPrompt = seeds[0]

	streams := s.newStreams(seeds)
	ledger := NewLedger(cfg.MaxIterations * cfg.StreamCount)
	defer s.logStreams(streams)

	result.StopReason = models.StopExhausted
	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		it, candidates, err := s.runIteration(ctx, env, streams, iteration, iteration == cfg.MaxIterations)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Single writer: the ledger is only touched after the join.
		result.Iterations = append(result.Iterations, it)
		ledger.Append(candidates...)
		s.metrics.IterationCompleted()

		s.logger.Info("iteration completed", map[string]any{
			"iteration":  iteration,
			"best_score": it.BestScore,
			"failures":   it.Failures,
			"candidates": ledger.Len(),
		})

		if len(candidates) > 0 && it.BestScore >= cfg.SimilarityThreshold {
			result.StopReason = models.StopConverged
			break
		}
		if it.Failures >= cfg.StreamCount {
			result.StopReason = models.StopAllStreamsFailed
			s.logger.Warn("all streams failed, stopping early", map[string]any{"iteration": iteration})
			break
		}
	}

	result.Candidates = ledger.All()
	result.CandidateCount = ledger.Len()

	best, ok := ledger.Best()
	if !ok {
		result.FinishedAt = time.Now().UTC()
		err := domain.ErrNoCandidates
		if result.StopReason == models.StopAllStreamsFailed {
			err = fmt.Errorf("%w: %w", domain.ErrNoCandidates, domain.ErrAllStreamsFailed)
		}
		span.SetStatus(codes.Error, err.Error())
		timer.Stop(map[string]any{"stop_reason": result.StopReason, "candidates": 0})
		return result, err
	}

	result.BestPrompt = best.Prompt
	result.BestScore = best.Score
	result.BestArtifact = best.Artifact

	finalists := ledger.Top(cfg.FinalistCount(ledger.Len()))
	result.FinalEvaluations = s.rerank(ctx, env, finalists, cfg.StreamCount)

	if len(result.FinalEvaluations) > 0 && result.FinalEvaluations[0].Evaluated() {
		top := result.FinalEvaluations[0]
		result.BestPrompt = top.Prompt
		result.BestScore = top.AverageScore
		result.BestArtifact = top.Artifact
	} else {
		s.logger.Warn("no finalist could be re-scored, keeping in-loop best", map[string]any{
			"finalists": len(finalists),
		})
	}

	result.FinishedAt = time.Now().UTC()
	outcome = string(result.StopReason)
	span.SetAttributes(attribute.Float64("best_score", result.BestScore))

	timer.Stop(map[string]any{
		"stop_reason": result.StopReason,
		"iterations":  len(result.Iterations),
		"candidates":  result.CandidateCount,
		"best_score":  result.BestScore,
	})

	return result, nil
}

// logStreams records where every stream ended up.
func (s *SearchService) logStreams(streams []*Stream) {
	for _, st := range streams {
		fields := map[string]any{
			"stream":  st.Index(),
			"state":   string(st.State()),
			"prompt":  st.Prompt(),
			"entries": len(st.history),
		}
		if err := st.LastError(); err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Info("stream finished", fields)
	}
}

func (s *SearchService) openSink(ctx context.Context, location string) (ports.ArtifactSink, error) {
	if s.sinks == nil {
		return nil, nil
	}
	sink, err := s.sinks.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: output location %q: %w", domain.ErrInvalidConfig, location, err)
	}
	return sink, nil
}

// bootstrap produces the stream seeds and the reference embeddings. Any
// failure on the first reference is fatal and not retried.
func (s *SearchService) bootstrap(ctx context.Context, env *runEnv, cfg models.SearchConfig) ([]string, [][]float32, error) {
	ctx, span := tracer.Start(ctx, "search.bootstrap")
	defer span.End()

	first := env.refs[0]
	prompt, err := env.describe(ctx, first.Input())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: describe %s: %w", domain.ErrBootstrapFailure, first.ID, err)
	}

	vectors := make([][]float32, len(env.refs))
	vectors[0], err = env.embedText(ctx, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: embed %s: %w", domain.ErrBootstrapFailure, first.ID, err)
	}

	if len(env.refs) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.StreamCount)
		for i := 1; i < len(env.refs); i++ {
			ref := env.refs[i]
			g.Go(func() error {
				vec, err := env.embedImage(gctx, ref.Input())
				if err != nil {
					return fmt.Errorf("%w: embed %s: %w", domain.ErrBootstrapFailure, ref.ID, err)
				}
				vectors[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	seeds := make([]string, cfg.StreamCount)
	for i := range seeds {
		seeds[i] = prompt
	}
	if cfg.DiversifySeeds {
		for i := 1; i < len(seeds); i++ {
			alt, err := env.describe(ctx, first.Input())
			if err != nil {
				s.logger.Warn("diversified seed failed, using shared prompt", map[string]any{
					"stream": i,
					"error":  err.Error(),
				})
				continue
			}
			seeds[i] = alt
		}
	}

	s.logger.Info("bootstrap completed", map[string]any{
		"references": len(env.refs),
		"streams":    len(seeds),
		"diversify":  cfg.DiversifySeeds,
	})
	return seeds, vectors, nil
}

func (s *SearchService) newStreams(seeds []string) []*Stream {
	base := s.seed
	if !s.hasSeed {
		base = uint64(time.Now().UnixNano())
	}
	streams := make([]*Stream, len(seeds))
	for i, seed := range seeds {
		streams[i] = newStream(i, seed, base, s.logger)
	}
	return streams
}

// runIteration ticks every stream concurrently and joins them. Streams
// never see each other's state; results are folded in stream order.
func (s *SearchService) runIteration(ctx context.Context, env *runEnv, streams []*Stream, iteration int, final bool) (models.IterationTrace, []models.Candidate, error) {
	ctx, span := tracer.Start(ctx, "search.iteration", trace.WithAttributes(
		attribute.Int("iteration", iteration),
	))
	defer span.End()

	start := time.Now()
	results := make([]tickResult, len(streams))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range streams {
		g.Go(func() error {
			res, err := st.tick(gctx, env, iteration, final)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return models.IterationTrace{}, nil, err
	}

	it := models.IterationTrace{
		Iteration: iteration,
		Outcomes:  make([]models.StreamOutcome, 0, len(results)),
	}
	candidates := make([]models.Candidate, 0, len(results))
	for _, res := range results {
		it.Outcomes = append(it.Outcomes, res.outcome)
		if res.candidate == nil {
			it.Failures++
			s.metrics.StreamTick("generation_failure")
			continue
		}
		if res.refineFailed {
			s.metrics.StreamTick("refine_fallback")
		} else {
			s.metrics.StreamTick("success")
		}
		candidates = append(candidates, *res.candidate)
		if res.candidate.Score > it.BestScore {
			it.BestScore = res.candidate.Score
		}
	}
	it.DurationMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Float64("best_score", it.BestScore),
		attribute.Int("failures", it.Failures),
	)
	return it, candidates, nil
}
