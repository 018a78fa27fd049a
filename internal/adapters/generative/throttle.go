package generative

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

// Throttled limits the request rate and the number of in-flight calls to
// a generative service shared by every stream.
type Throttled struct {
	next    ports.GenerativeService
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// NewThrottled wraps next. rps <= 0 disables rate limiting and
// maxConcurrent <= 0 disables the concurrency cap.
func NewThrottled(next ports.GenerativeService, rps float64, burst int, maxConcurrent int) *Throttled {
	t := &Throttled{next: next}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxConcurrent > 0 {
		t.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return t
}

func (t *Throttled) acquire(ctx context.Context) (func(), error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if t.sem == nil {
		return func() {}, nil
	}
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { t.sem.Release(1) }, nil
}

func (t *Throttled) DescribeImage(ctx context.Context, image models.ImageInput) (string, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return t.next.DescribeImage(ctx, image)
}

func (t *Throttled) GenerateImage(ctx context.Context, prompt string) (*models.ImageArtifact, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.next.GenerateImage(ctx, prompt)
}

func (t *Throttled) RefinePrompt(ctx context.Context, req ports.RefineRequest) (string, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	return t.next.RefinePrompt(ctx, req)
}

func (t *Throttled) Embed(ctx context.Context, text string) ([]float32, error) {
	release, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return t.next.Embed(ctx, text)
}
