package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/longregen/reprompt/internal/adapters/circuitbreaker"
	"github.com/longregen/reprompt/internal/adapters/retry"
	"github.com/longregen/reprompt/internal/domain"
)

const (
	// DefaultTimeout bounds a single embeddings request
	DefaultTimeout = 30 * time.Second
)

// Client is an OpenAI-compatible embedding client
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	policy     retry.Policy
	breaker    *circuitbreaker.CircuitBreaker
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a new embedding client. dimensions of 0 accepts any
// vector length.
func NewClient(baseURL, apiKey, model string, dimensions int, opts ...Option) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		policy:     retry.DefaultPolicy(),
		breaker: circuitbreaker.New(5, 30*time.Second, circuitbreaker.WithFailureFilter(func(err error) bool {
			return errors.Is(err, domain.ErrTransport)
		})),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbeddingRequest represents the request to the embeddings API
type EmbeddingRequest struct {
	Input any    `json:"input"` // string or []string
	Model string `json:"model"`
}

// EmbeddingResponse represents the response from the embeddings API
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
}

// EmbeddingData is one vector of an EmbeddingResponse
type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// apiError is a non-2xx response from the embeddings endpoint.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("embeddings API returned %d: %s", e.status, e.body)
}

func (e *apiError) HTTPStatus() int { return e.status }

// Embed returns the embedding of text. A response without vectors yields
// an empty slice and no error; callers treat that as an empty result.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var vectors [][]float32
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = c.embed(ctx, texts)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: embeddings: %w", domain.ErrTransport, err)
	}
	return vectors, err
}

// GetDimensions returns the configured dimensionality, 0 if unchecked
func (c *Client) GetDimensions() int {
	return c.dimensions
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := EmbeddingRequest{Model: c.model}
	if len(texts) == 1 {
		req.Input = texts[0]
	} else {
		req.Input = texts
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var respBody []byte
	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &apiError{status: resp.StatusCode, body: string(respBody)}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings %s: %w", domain.ErrTransport, c.baseURL, err)
	}

	var embeddingResp EmbeddingResponse
	if err := json.Unmarshal(respBody, &embeddingResp); err != nil {
		// Malformed bodies degrade to "no vectors".
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	for _, data := range embeddingResp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			continue
		}
		if c.dimensions > 0 && len(data.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrDimensionMismatch, c.dimensions, len(data.Embedding))
		}
		vectors[data.Index] = data.Embedding
	}
	if len(embeddingResp.Data) == 0 {
		return [][]float32{}, nil
	}
	return vectors, nil
}
