// Package generative implements ports.GenerativeService on an
// OpenAI-compatible API: vision chat for describe and refine, the images
// endpoint for generation and a separate embeddings endpoint.
package generative

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/longregen/reprompt/internal/adapters/circuitbreaker"
	"github.com/longregen/reprompt/internal/adapters/retry"
	"github.com/longregen/reprompt/internal/domain"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/llm"
	"github.com/longregen/reprompt/internal/ports"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the generative capability backed by an OpenAI-compatible API.
type Service struct {
	client     *llm.Client
	embedder   Embedder
	classifier ports.RefusalClassifier
	breaker    *circuitbreaker.CircuitBreaker
	policy     retry.Policy
	timeout    time.Duration
	readFile   func(string) ([]byte, error)
}

// Option configures a Service
type Option func(*Service)

// WithClassifier rejects refused chat answers at the adapter
func WithClassifier(c ports.RefusalClassifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithCallTimeout bounds each remote call, retries included
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithBreaker replaces the default circuit breaker
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// NewService creates a new generative service
func NewService(client *llm.Client, embedder Embedder, opts ...Option) *Service {
	s := &Service{
		client:   client,
		embedder: embedder,
		breaker: circuitbreaker.New(5, 30*time.Second, circuitbreaker.WithFailureFilter(func(err error) bool {
			return errors.Is(err, domain.ErrTransport)
		})),
		policy:   retry.DefaultPolicy(),
		timeout:  2 * time.Minute,
		readFile: os.ReadFile,
	}
	s.policy.Retryable = isRetryable
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Retryable == nil {
		s.policy.Retryable = isRetryable
	}
	return s
}

func (s *Service) DescribeImage(ctx context.Context, image models.ImageInput) (string, error) {
	part, err := s.imagePart(image)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       s.client.VisionModel,
		MaxTokens:   s.client.MaxTokens,
		Temperature: s.client.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: describeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: describeUserPrompt},
				part,
			}},
		},
	}
	return s.chat(ctx, "describe", req)
}

func (s *Service) RefinePrompt(ctx context.Context, r ports.RefineRequest) (string, error) {
	ref, err := s.imagePart(r.Reference)
	if err != nil {
		return "", fmt.Errorf("reference: %w", err)
	}
	gen, err := s.imagePart(r.Generated)
	if err != nil {
		return "", fmt.Errorf("generated image: %w", err)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: refineSystemPrompt},
	}
	for _, e := range r.History {
		user, assistant := historyTurn(e)
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: assistant},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: refineUserPrompt(r)},
			ref,
			gen,
		},
	})

	req := openai.ChatCompletionRequest{
		Model:       s.client.VisionModel,
		MaxTokens:   s.client.MaxTokens,
		Temperature: s.client.Temperature,
		Messages:    messages,
	}
	return s.chat(ctx, "refine", req)
}

func (s *Service) GenerateImage(ctx context.Context, prompt string) (*models.ImageArtifact, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.client.ImageModel,
		Size:           s.client.ImageSize,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	var resp openai.ImageResponse
	err := s.call(ctx, "generate", func(ctx context.Context) error {
		var err error
		resp, err = s.client.CreateImage(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no images returned", domain.ErrGenerationFailure)
	}

	img := resp.Data[0]
	artifact := &models.ImageArtifact{URL: img.URL, ContentType: "image/png"}
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: decode image payload: %v", domain.ErrGenerationFailure, err)
		}
		artifact.Data = data
		artifact.ContentType = http.DetectContentType(data)
	}
	if !artifact.Usable() {
		return nil, fmt.Errorf("%w: neither payload nor URL returned", domain.ErrGenerationFailure)
	}
	return artifact, nil
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.embedder.Embed(ctx, text)
}

func (s *Service) chat(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	var resp openai.ChatCompletionResponse
	err := s.call(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = s.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", domain.ErrEmptyResult, op)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: %s returned no text", domain.ErrEmptyResult, op)
	}
	if s.classifier != nil && s.classifier.Classify(text) == ports.Refused {
		return "", fmt.Errorf("%w: %s", domain.ErrServiceRefusal, op)
	}
	return text, nil
}

// call runs fn under the timeout, circuit breaker and retry policy and
// normalizes failures to domain.ErrTransport.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := retry.Do(ctx, s.policy, fn); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrTransport, op, err)
		}
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTransport, op, err)
	}
	return err
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// imagePart turns an image into a chat image part. Remote images are
// passed by URL; local files and inline payloads become data URLs.
func (s *Service) imagePart(image models.ImageInput) (openai.ChatMessagePart, error) {
	url, err := s.imageURL(image)
	if err != nil {
		return openai.ChatMessagePart{}, err
	}
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    url,
			Detail: openai.ImageURLDetailAuto,
		},
	}, nil
}

func (s *Service) imageURL(image models.ImageInput) (string, error) {
	switch {
	case len(image.Data) > 0:
		return dataURL(image.Data, image.ContentType), nil
	case image.URL != "":
		return image.URL, nil
	case image.IsRemote():
		return image.Path, nil
	case image.Path != "":
		data, err := s.readFile(image.Path)
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %v", domain.ErrTransport, image.Path, err)
		}
		return dataURL(data, image.ContentType), nil
	}
	return "", fmt.Errorf("%w: image has no payload or location", domain.ErrEmptyResult)
}

func dataURL(data []byte, contentType string) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// isRetryable retries rate limits, server errors and network faults.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retry.IsRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retry.IsRetryableHTTPStatus(reqErr.HTTPStatusCode)
	}
	return retry.IsRetryableError(err)
}
