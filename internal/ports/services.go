package ports

import (
	"context"
	"time"

	"github.com/longregen/reprompt/internal/domain/models"
)

// RefineRequest carries everything a prompt refinement needs. History is
// the requesting stream's own prior entries in iteration order; nil asks
// for a refinement without history context.
type RefineRequest struct {
	CurrentPrompt string
	Reference     models.ImageInput
	Generated     models.ImageInput
	Score         float64
	Iteration     int
	History       []models.HistoryEntry
}

// GenerativeService is the image generation and analysis capability the
// search drives. Every method is a blocking remote call.
type GenerativeService interface {
	// DescribeImage returns a prompt-like description of the image.
	// Fails with domain.ErrServiceRefusal, domain.ErrEmptyResult or domain.ErrTransport.
	DescribeImage(ctx context.Context, image models.ImageInput) (string, error)

	// GenerateImage renders prompt. Fails with domain.ErrGenerationFailure
	// when neither a payload nor a URL comes back, or domain.ErrTransport.
	GenerateImage(ctx context.Context, prompt string) (*models.ImageArtifact, error)

	// RefinePrompt proposes a better prompt given the reference, the last
	// generated image and its score. Same failure kinds as DescribeImage.
	RefinePrompt(ctx context.Context, req RefineRequest) (string, error)

	// Embed returns an embedding vector for text. A malformed response
	// yields an empty vector rather than an error.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Verdict is the outcome of refusal classification.
type Verdict int

const (
	Accepted Verdict = iota
	Refused
)

func (v Verdict) String() string {
	if v == Refused {
		return "refused"
	}
	return "accepted"
}

// RefusalClassifier decides whether a textual service response is a
// content-policy decline rather than usable output.
type RefusalClassifier interface {
	Classify(text string) Verdict
}

// SearchService runs a complete feedback-guided prompt search.
type SearchService interface {
	Run(ctx context.Context, refs models.ReferenceSet, cfg models.SearchConfig) (*models.RunResult, error)
}

// SearchMetrics receives search-level measurements.
type SearchMetrics interface {
	RunStarted()
	RunFinished(outcome string)
	IterationCompleted()
	StreamTick(outcome string)
	ObserveScore(score float64)
	ObserveCall(op string, d time.Duration)
}
