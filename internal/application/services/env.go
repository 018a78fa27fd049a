package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

// runEnv is the read-only context shared by every stream of one run.
// Its methods wrap generative calls with the per-call timeout, refusal
// classification and call metrics.
type runEnv struct {
	gen         ports.GenerativeService
	classifier  ports.RefusalClassifier
	sink        ports.ArtifactSink
	ids         ports.IDGenerator
	metrics     ports.SearchMetrics
	logger      ports.Logger
	refs        models.ReferenceSet
	refVectors  [][]float32
	threshold   float64
	callTimeout time.Duration
}

func (e *runEnv) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// checkText rejects blank and refused responses.
func (e *runEnv) checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyResult
	}
	if e.classifier != nil && e.classifier.Classify(text) == ports.Refused {
		return "", fmt.Errorf("%w: %q", domain.ErrServiceRefusal, truncate(text, 80))
	}
	return text, nil
}

func (e *runEnv) describe(ctx context.Context, image models.ImageInput) (string, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	start := time.Now()
	text, err := e.gen.DescribeImage(ctx, image)
	e.metrics.ObserveCall("describe", time.Since(start))
	if err != nil {
		return "", err
	}
	return e.checkText(text)
}

func (e *runEnv) refine(ctx context.Context, req ports.RefineRequest) (string, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	start := time.Now()
	text, err := e.gen.RefinePrompt(ctx, req)
	e.metrics.ObserveCall("refine", time.Since(start))
	if err != nil {
		return "", err
	}
	return e.checkText(text)
}

func (e *runEnv) generate(ctx context.Context, prompt string) (*models.ImageArtifact, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	start := time.Now()
	artifact, err := e.gen.GenerateImage(ctx, prompt)
	e.metrics.ObserveCall("generate", time.Since(start))
	if err != nil {
		return nil, err
	}
	if !artifact.Usable() {
		return nil, fmt.Errorf("%w: no payload or URL returned", domain.ErrGenerationFailure)
	}
	if artifact.ID == "" {
		artifact.ID = e.ids.GenerateArtifactID()
	}
	return artifact, nil
}

func (e *runEnv) embedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	start := time.Now()
	vec, err := e.gen.Embed(ctx, text)
	e.metrics.ObserveCall("embed", time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding vector", domain.ErrEmptyResult)
	}
	return vec, nil
}

// embedImage describes an image and embeds the description; scores are
// computed in that text embedding space.
func (e *runEnv) embedImage(ctx context.Context, image models.ImageInput) ([]float32, error) {
	desc, err := e.describe(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("describe artifact: %w", err)
	}
	return e.embedText(ctx, desc)
}

// persist writes the artifact payload to the sink. Failures are logged
// and leave the artifact addressable by URL or ID only.
func (e *runEnv) persist(ctx context.Context, artifact *models.ImageArtifact) {
	if e.sink == nil || artifact == nil || len(artifact.Data) == 0 {
		return
	}
	key := artifact.ID + extensionFor(artifact.ContentType)
	location, err := e.sink.Put(ctx, key, artifact.Data, artifact.ContentType)
	if err != nil {
		e.logger.Warn("failed to store artifact", map[string]any{
			"artifact_id": artifact.ID,
			"error":       err.Error(),
		})
		return
	}
	artifact.Location = location
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// JoinLocation appends a path segment to an output location of any scheme.
func JoinLocation(location, segment string) string {
	if location == "" {
		return ""
	}
	if i := strings.Index(location, "://"); i >= 0 {
		scheme, rest := location[:i+3], location[i+3:]
		return scheme + path.Join(rest, segment)
	}
	return path.Join(location, segment)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
