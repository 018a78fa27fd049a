package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/domain/similarity"
	"github.com/longregen/reprompt/internal/ports"
)

// StreamState is the lifecycle state of a refinement stream.
type StreamState string

const (
	StreamSeeded    StreamState = "seeded"
	StreamIterating StreamState = "iterating"
	StreamConverged StreamState = "converged"
	StreamExhausted StreamState = "exhausted"
	StreamFailed    StreamState = "failed"
)

// Stream is one refinement trajectory. A stream is only touched by its
// own goroutine during a tick and by the orchestrator between ticks.
type Stream struct {
	index    int
	prompt   string
	nextType models.EntryType
	history  []models.HistoryEntry
	lastErr  error
	state    StreamState
	rng      *rand.Rand
	logger   ports.Logger
}

// tickResult is what a stream hands back to the orchestrator after a tick.
type tickResult struct {
	outcome      models.StreamOutcome
	candidate    *models.Candidate
	refineFailed bool
}

func newStream(index int, prompt string, seed uint64, logger ports.Logger) *Stream {
	return &Stream{
		index:    index,
		prompt:   prompt,
		nextType: models.EntryInitial,
		state:    StreamSeeded,
		rng:      rand.New(rand.NewPCG(seed, uint64(index)+1)),
		logger:   logger.With(map[string]any{"stream": index}),
	}
}

func (s *Stream) Index() int         { return s.index }
func (s *Stream) Prompt() string     { return s.prompt }
func (s *Stream) State() StreamState { return s.state }
func (s *Stream) LastError() error   { return s.lastErr }

// History returns a copy of the stream's entries in iteration order.
func (s *Stream) History() []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Stream) sampleReference(n int) int {
	if n <= 1 {
		return 0
	}
	return s.rng.IntN(n)
}

// tick runs one iteration: generate, score against a sampled reference,
// record, then refine unless the stream converged or the iteration is the
// last one. Per-stream failures are returned in the result; only contract
// violations are returned as errors.
func (s *Stream) tick(ctx context.Context, env *runEnv, iteration int, final bool) (tickResult, error) {
	ctx, span := tracer.Start(ctx, "search.stream_tick", trace.WithAttributes(
		attribute.Int("stream", s.index),
		attribute.Int("iteration", iteration),
	))
	defer span.End()

	timer := s.logger.Timer("stream.tick")
	s.state = StreamIterating
	ref := s.sampleReference(len(env.refs))

	artifact, err := env.generate(ctx, s.prompt)
	if err != nil {
		span.RecordError(err)
		return s.fail(iteration, fmt.Errorf("generate: %w", err)), nil
	}
	env.persist(ctx, artifact)

	embedding, err := env.embedImage(ctx, artifact.Input())
	if err != nil {
		span.RecordError(err)
		return s.fail(iteration, err), nil
	}

	score, err := similarity.Score(env.refVectors[ref], embedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.lastErr = err
		s.state = StreamFailed
		return tickResult{}, fmt.Errorf("stream %d iteration %d: %w", s.index, iteration, err)
	}
	env.metrics.ObserveScore(score)
	span.SetAttributes(attribute.Float64("score", score), attribute.Int("reference", ref))

	entry := models.HistoryEntry{
		Stream:        s.index,
		Iteration:     iteration,
		Type:          s.nextType,
		Prompt:        s.prompt,
		Artifact:      artifact,
		ReferenceUsed: ref,
		Score:         score,
	}

	var refineFailed bool
	switch {
	case score >= env.threshold:
		s.state = StreamConverged
	case final:
		s.state = StreamExhausted
	default:
		if err := s.refine(ctx, env, entry); err != nil {
			entry.RefineError = err.Error()
			refineFailed = true
		}
	}

	s.history = append(s.history, entry)
	s.lastErr = nil

	timer.Stop(map[string]any{
		"iteration": iteration,
		"score":     score,
		"reference": ref,
	})

	candidate := models.CandidateFromEntry(entry, embedding)
	recorded := entry
	return tickResult{
		outcome:      models.StreamOutcome{Stream: s.index, Entry: &recorded},
		candidate:    &candidate,
		refineFailed: refineFailed,
	}, nil
}

// refine asks for a better prompt with the stream's prior history, then
// once more without it. When both fail the current prompt is kept.
func (s *Stream) refine(ctx context.Context, env *runEnv, current models.HistoryEntry) error {
	req := ports.RefineRequest{
		CurrentPrompt: s.prompt,
		Reference:     env.refs[current.ReferenceUsed].Input(),
		Generated:     current.Artifact.Input(),
		Score:         current.Score,
		Iteration:     current.Iteration,
		History:       s.History(),
	}

	prompt, err := env.refine(ctx, req)
	if err != nil {
		s.logger.Warn("refinement failed, retrying without history", map[string]any{
			"iteration": current.Iteration,
			"error":     err.Error(),
		})
		req.History = nil
		prompt, err = env.refine(ctx, req)
	}
	if err != nil {
		s.logger.Warn("refinement failed, keeping current prompt", map[string]any{
			"iteration": current.Iteration,
			"error":     err.Error(),
		})
		s.nextType = models.EntryError
		return err
	}

	s.prompt = prompt
	s.nextType = models.EntryRefined
	return nil
}

func (s *Stream) fail(iteration int, err error) tickResult {
	s.lastErr = err
	s.state = StreamFailed

	fields := map[string]any{
		"iteration": iteration,
		"error":     err.Error(),
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fields["timeout"] = true
	}
	s.logger.Warn("stream tick failed", fields)

	return tickResult{
		outcome: models.StreamOutcome{
			Stream:    s.index,
			Error:     err.Error(),
			ErrorKind: domain.ErrorKind(err),
		},
	}
}
