package models

import (
	"fmt"
	"time"
)

const (
	// MaxFinalists is the hard cap on candidates entering final re-ranking.
	MaxFinalists = 10
	// DefaultRerankMax caps how many candidates enter final re-ranking.
	DefaultRerankMax = MaxFinalists
	// DefaultCallTimeout bounds each generative service call.
	DefaultCallTimeout = 3 * time.Minute
)

// SearchConfig controls a single search run.
type SearchConfig struct {
	// MaxIterations is the number of rounds every stream is ticked at most
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// SimilarityThreshold ends the run as soon as any stream reaches it
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// StreamCount is the number of parallel refinement trajectories
	StreamCount int `json:"stream_count" yaml:"stream_count"`

	// OutputLocation names the sink generated artifacts are written to
	// (a directory, file://dir or s3://bucket/prefix). Empty keeps them in memory.
	OutputLocation string `json:"output_location" yaml:"output_location"`

	// DiversifySeeds gives every stream after the first its own bootstrap description
	DiversifySeeds bool `json:"diversify_seeds" yaml:"diversify_seeds"`

	// CallTimeout bounds each individual generative service call
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// RerankMax caps the number of finalists; zero means DefaultRerankMax.
	// Values above MaxFinalists are clamped.
	RerankMax int `json:"rerank_max" yaml:"rerank_max"`
}

// DefaultSearchConfig returns sensible defaults
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxIterations:       5,
		SimilarityThreshold: 0.9,
		StreamCount:         3,
		CallTimeout:         DefaultCallTimeout,
		RerankMax:           DefaultRerankMax,
	}
}

// Normalize clamps recoverable settings and returns a warning for each
// adjustment. Invalid settings are reported by Validate.
func (c SearchConfig) Normalize() (SearchConfig, []string) {
	var warnings []string
	if c.StreamCount < 1 {
		warnings = append(warnings, fmt.Sprintf("stream_count %d is below 1, using 1", c.StreamCount))
		c.StreamCount = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.RerankMax <= 0 {
		c.RerankMax = DefaultRerankMax
	}
	if c.RerankMax > MaxFinalists {
		warnings = append(warnings, fmt.Sprintf("rerank_max %d is above %d, using %d", c.RerankMax, MaxFinalists, MaxFinalists))
		c.RerankMax = MaxFinalists
	}
	return c, warnings
}

// Validate checks the settings that cannot be clamped.
func (c SearchConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %g", c.SimilarityThreshold)
	}
	return nil
}

// FinalistCount is min(2 x streams, RerankMax, MaxFinalists, ledgerSize).
func (c SearchConfig) FinalistCount(ledgerSize int) int {
	limit := c.RerankMax
	if limit <= 0 {
		limit = DefaultRerankMax
	}
	return max(0, min(2*c.StreamCount, limit, MaxFinalists, ledgerSize))
}
