// Package llm provides an OpenAI-compatible client factory with tracing.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.GetTracerProvider().Tracer("reprompt/llm")

// Config holds the configuration for the LLM client.
type Config struct {
	BaseURL     string
	APIKey      string
	VisionModel string
	ImageModel  string
	ImageSize   string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
	Transport   http.RoundTripper
	Timeout     time.Duration
}

// Option configures a Config.
type Option func(*Config)

// WithVisionModel sets the model used for describe and refine chats.
func WithVisionModel(model string) Option {
	return func(c *Config) {
		c.VisionModel = model
	}
}

// WithImageModel sets the model used for image generation.
func WithImageModel(model string) Option {
	return func(c *Config) {
		c.ImageModel = model
	}
}

// WithImageSize sets the generated image size, e.g. "1024x1024".
func WithImageSize(size string) Option {
	return func(c *Config) {
		c.ImageSize = size
	}
}

// WithMaxTokens sets the default max tokens for completions.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float32) Option {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTransport sets a custom HTTP transport.
// This is ignored if WithHTTPClient is also used.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Config) {
		c.Transport = rt
	}
}

// WithTimeout sets the HTTP client timeout.
// This is ignored if WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// Client wraps the OpenAI client with configuration metadata.
type Client struct {
	*openai.Client
	BaseURL     string
	VisionModel string
	ImageModel  string
	ImageSize   string
	MaxTokens   int
	Temperature float32
}

// NewClient creates an OpenAI-compatible client with the given configuration.
// BaseURL should be the full API base URL (e.g., "https://api.openai.com/v1").
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	cfg := &Config{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		APIKey:      apiKey,
		VisionModel: openai.GPT4oMini,
		ImageModel:  openai.CreateImageModelDallE3,
		ImageSize:   openai.CreateImageSize1024x1024,
		MaxTokens:   1024,
		Timeout:     120 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.BaseURL = cfg.BaseURL

	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	} else {
		transport := cfg.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		openaiCfg.HTTPClient = &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		}
	}

	return &Client{
		Client:      openai.NewClientWithConfig(openaiCfg),
		BaseURL:     cfg.BaseURL,
		VisionModel: cfg.VisionModel,
		ImageModel:  cfg.ImageModel,
		ImageSize:   cfg.ImageSize,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

// CreateChatCompletion wraps the OpenAI client's CreateChatCompletion with an OTel span.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.request.max_tokens", req.MaxTokens),
		attribute.Int("llm.request.messages", len(req.Messages)),
	)
	if req.Temperature > 0 {
		span.SetAttributes(attribute.Float64("llm.request.temperature", float64(req.Temperature)))
	}

	resp, err := c.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens),
	)
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		span.SetAttributes(
			attribute.String("llm.response.finish_reason", string(choice.FinishReason)),
			attribute.Int("llm.response.content_length", len(choice.Message.Content)),
		)
	} else {
		span.SetAttributes(attribute.Int("llm.response.choices", 0))
	}

	return resp, nil
}

// CreateImage wraps the OpenAI client's CreateImage with an OTel span.
func (c *Client) CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.image", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.String("llm.request.size", req.Size),
		attribute.Int("llm.request.prompt_length", len(req.Prompt)),
	)

	resp, err := c.Client.CreateImage(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(attribute.Int("llm.response.images", len(resp.Data)))
	return resp, nil
}
