package generative

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

// slowService records peak concurrency across calls.
type slowService struct {
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (s *slowService) enter() func() {
	s.calls.Add(1)
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return func() { s.active.Add(-1) }
}

func (s *slowService) DescribeImage(ctx context.Context, image models.ImageInput) (string, error) {
	defer s.enter()()
	return "described", nil
}

func (s *slowService) GenerateImage(ctx context.Context, prompt string) (*models.ImageArtifact, error) {
	defer s.enter()()
	return &models.ImageArtifact{Data: []byte(prompt)}, nil
}

func (s *slowService) RefinePrompt(ctx context.Context, req ports.RefineRequest) (string, error) {
	defer s.enter()()
	return req.CurrentPrompt + "!", nil
}

func (s *slowService) Embed(ctx context.Context, text string) ([]float32, error) {
	defer s.enter()()
	return []float32{1}, nil
}

func TestThrottled_Delegates(t *testing.T) {
	next := &slowService{}
	th := NewThrottled(next, 0, 0, 0)
	ctx := context.Background()

	text, err := th.DescribeImage(ctx, models.ImageInput{})
	require.NoError(t, err)
	assert.Equal(t, "described", text)

	artifact, err := th.GenerateImage(ctx, "fox")
	require.NoError(t, err)
	assert.Equal(t, []byte("fox"), artifact.Data)

	refined, err := th.RefinePrompt(ctx, ports.RefineRequest{CurrentPrompt: "fox"})
	require.NoError(t, err)
	assert.Equal(t, "fox!", refined)

	vec, err := th.Embed(ctx, "fox")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)

	assert.Equal(t, int32(4), next.calls.Load())
}

func TestThrottled_CapsConcurrency(t *testing.T) {
	next := &slowService{}
	th := NewThrottled(next, 0, 0, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = th.GenerateImage(context.Background(), "fox")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), next.calls.Load())
	assert.LessOrEqual(t, next.peak.Load(), int32(2))
}

func TestThrottled_CancelledWhileWaiting(t *testing.T) {
	next := &slowService{}
	th := NewThrottled(next, 0.001, 1, 0)

	// The first call consumes the only token.
	_, err := th.Embed(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = th.Embed(ctx, "b")
	assert.Error(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
}
