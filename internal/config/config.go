package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/longregen/reprompt/internal/domain/models"
)

// Config holds all configuration for reprompt
type Config struct {
	Search    SearchConfig    `json:"search" yaml:"search"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Throttle  ThrottleConfig  `json:"throttle" yaml:"throttle"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	S3        S3Config        `json:"s3" yaml:"s3"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`

	// path is the file the configuration was read from, if any
	path string
}

// SearchConfig holds the default search settings
type SearchConfig struct {
	MaxIterations       int      `json:"max_iterations" yaml:"max_iterations"`
	SimilarityThreshold float64  `json:"similarity_threshold" yaml:"similarity_threshold"`
	StreamCount         int      `json:"stream_count" yaml:"stream_count"`
	OutputLocation      string   `json:"output_location" yaml:"output_location"`
	DiversifySeeds      bool     `json:"diversify_seeds" yaml:"diversify_seeds"`
	CallTimeout         Duration `json:"call_timeout" yaml:"call_timeout"`
	RerankMax           int      `json:"rerank_max" yaml:"rerank_max"`
}

// LLMConfig holds the OpenAI-compatible vision and image API configuration
type LLMConfig struct {
	URL         string   `json:"url" yaml:"url"`
	APIKey      string   `json:"api_key" yaml:"api_key"`
	VisionModel string   `json:"vision_model" yaml:"vision_model"`
	ImageModel  string   `json:"image_model" yaml:"image_model"`
	ImageSize   string   `json:"image_size" yaml:"image_size"` // e.g., "1024x1024"
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
}

// EmbeddingConfig holds embedding API configuration
type EmbeddingConfig struct {
	URL        string `json:"url" yaml:"url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	Model      string `json:"model" yaml:"model"`           // e.g., "text-embedding-3-small"
	Dimensions int    `json:"dimensions" yaml:"dimensions"` // 0 accepts whatever the service returns
}

// ThrottleConfig caps the load put on the generative service
type ThrottleConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"` // 0 disables rate limiting
	Burst             int     `json:"burst" yaml:"burst"`
	MaxConcurrency    int     `json:"max_concurrency" yaml:"max_concurrency"` // 0 disables the cap
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host        string   `json:"host" yaml:"host"`
	Port        int      `json:"port" yaml:"port"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`

	// ReferenceRoot is the only local directory API clients may name
	// references in. Empty allows http(s) references only.
	ReferenceRoot string `json:"reference_root" yaml:"reference_root"`

	// OutputRoot is the directory or s3://bucket/prefix a client-supplied
	// output_location must fall under. Empty rejects client output locations.
	OutputRoot string `json:"output_root" yaml:"output_root"`
}

// DatabaseConfig holds database configuration. An empty URL keeps runs in memory.
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url" yaml:"postgres_url"`
}

// S3Config holds settings shared by every s3:// output location
type S3Config struct {
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn or error
	Format string `json:"format" yaml:"format"` // json or console
}

// TracingConfig toggles span export
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultOutputLocation is where generated images go unless configured otherwise
const DefaultOutputLocation = "./reprompt-runs"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	search := models.DefaultSearchConfig()

	return &Config{
		Search: SearchConfig{
			MaxIterations:       search.MaxIterations,
			SimilarityThreshold: search.SimilarityThreshold,
			StreamCount:         search.StreamCount,
			OutputLocation:      DefaultOutputLocation,
			CallTimeout:         Duration(search.CallTimeout),
			RerankMax:           search.RerankMax,
		},
		LLM: LLMConfig{
			URL:         "https://api.openai.com/v1",
			VisionModel: "gpt-4o-mini",
			ImageModel:  "dall-e-3",
			ImageSize:   "1024x1024",
			MaxTokens:   1024,
			Temperature: 0.7,
			Timeout:     Duration(2 * time.Minute),
		},
		Embedding: EmbeddingConfig{
			URL:   "https://api.openai.com/v1",
			Model: "text-embedding-3-small",
		},
		Throttle: ThrottleConfig{
			RequestsPerSecond: 5,
			Burst:             5,
			MaxConcurrency:    8,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SearchDefaults converts the search section to the domain config
func (c *Config) SearchDefaults() models.SearchConfig {
	return models.SearchConfig{
		MaxIterations:       c.Search.MaxIterations,
		SimilarityThreshold: c.Search.SimilarityThreshold,
		StreamCount:         c.Search.StreamCount,
		OutputLocation:      c.Search.OutputLocation,
		DiversifySeeds:      c.Search.DiversifySeeds,
		CallTimeout:         c.Search.CallTimeout.Std(),
		RerankMax:           c.Search.RerankMax,
	}
}

// Path returns the file the configuration was loaded from, or "" when
// only defaults and environment were used.
func (c *Config) Path() string {
	return c.path
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// envBool loads a boolean environment variable into the target pointer if set and valid
func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// envDuration loads a duration ("90s", "2m") environment variable into the target pointer if set and valid
func envDuration(key string, target *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load reads the configuration file at path (or the default location when
// path is empty), applies REPROMPT_* environment overrides and validates
// the result. A missing default file is not an error; a missing explicit
// file is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != "" || os.Getenv("REPROMPT_CONFIG") != ""
	if path == "" {
		path = getConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeFile(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		cfg.path = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() {
	envInt("REPROMPT_SEARCH_MAX_ITERATIONS", &c.Search.MaxIterations)
	envFloat("REPROMPT_SEARCH_SIMILARITY_THRESHOLD", &c.Search.SimilarityThreshold)
	envInt("REPROMPT_SEARCH_STREAM_COUNT", &c.Search.StreamCount)
	envString("REPROMPT_SEARCH_OUTPUT_LOCATION", &c.Search.OutputLocation)
	envBool("REPROMPT_SEARCH_DIVERSIFY_SEEDS", &c.Search.DiversifySeeds)
	envDuration("REPROMPT_SEARCH_CALL_TIMEOUT", &c.Search.CallTimeout)
	envInt("REPROMPT_SEARCH_RERANK_MAX", &c.Search.RerankMax)

	envString("REPROMPT_LLM_URL", &c.LLM.URL)
	envString("REPROMPT_LLM_API_KEY", &c.LLM.APIKey)
	envString("REPROMPT_LLM_VISION_MODEL", &c.LLM.VisionModel)
	envString("REPROMPT_LLM_IMAGE_MODEL", &c.LLM.ImageModel)
	envString("REPROMPT_LLM_IMAGE_SIZE", &c.LLM.ImageSize)
	envInt("REPROMPT_LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	envFloat("REPROMPT_LLM_TEMPERATURE", &c.LLM.Temperature)
	envDuration("REPROMPT_LLM_TIMEOUT", &c.LLM.Timeout)

	envString("REPROMPT_EMBEDDING_URL", &c.Embedding.URL)
	envString("REPROMPT_EMBEDDING_API_KEY", &c.Embedding.APIKey)
	envString("REPROMPT_EMBEDDING_MODEL", &c.Embedding.Model)
	envInt("REPROMPT_EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)

	envFloat("REPROMPT_THROTTLE_REQUESTS_PER_SECOND", &c.Throttle.RequestsPerSecond)
	envInt("REPROMPT_THROTTLE_BURST", &c.Throttle.Burst)
	envInt("REPROMPT_THROTTLE_MAX_CONCURRENCY", &c.Throttle.MaxConcurrency)

	envString("REPROMPT_SERVER_HOST", &c.Server.Host)
	envInt("REPROMPT_SERVER_PORT", &c.Server.Port)
	envStringSlice("REPROMPT_CORS_ORIGINS", &c.Server.CORSOrigins)
	envString("REPROMPT_SERVER_REFERENCE_ROOT", &c.Server.ReferenceRoot)
	envString("REPROMPT_SERVER_OUTPUT_ROOT", &c.Server.OutputRoot)

	envString("REPROMPT_POSTGRES_URL", &c.Database.PostgresURL)

	envString("REPROMPT_S3_REGION", &c.S3.Region)
	envString("REPROMPT_S3_ENDPOINT", &c.S3.Endpoint)
	envBool("REPROMPT_S3_USE_PATH_STYLE", &c.S3.UsePathStyle)

	envString("REPROMPT_LOG_LEVEL", &c.Logging.Level)
	envString("REPROMPT_LOG_FORMAT", &c.Logging.Format)

	envBool("REPROMPT_TRACING_ENABLED", &c.Tracing.Enabled)

	// OPENAI_API_KEY is honored as a fallback for both services
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = key
		}
	}
}

// IsPostgresConfigured returns true if runs are archived in PostgreSQL
func (c *Config) IsPostgresConfigured() bool {
	return c.Database.PostgresURL != ""
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// Search validation
	if c.Search.MaxIterations < 1 {
		errs = append(errs, "search max_iterations must be positive")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		errs = append(errs, "search similarity_threshold must be between 0 and 1")
	}
	if c.Search.RerankMax < 0 {
		errs = append(errs, "search rerank_max must not be negative")
	} else if c.Search.RerankMax > models.MaxFinalists {
		errs = append(errs, fmt.Sprintf("search rerank_max must be at most %d", models.MaxFinalists))
	}
	if c.Search.CallTimeout < 0 {
		errs = append(errs, "search call_timeout must not be negative")
	}

	// LLM validation
	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}
	if c.LLM.VisionModel == "" {
		errs = append(errs, "LLM vision_model is required")
	}
	if c.LLM.ImageModel == "" {
		errs = append(errs, "LLM image_model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}

	// Embedding validation
	if c.Embedding.URL == "" {
		errs = append(errs, "Embedding URL is required")
	} else if !isValidURL(c.Embedding.URL) {
		errs = append(errs, "Embedding URL must be a valid URL")
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, "Embedding dimensions must not be negative")
	}

	// Throttle validation
	if c.Throttle.RequestsPerSecond < 0 {
		errs = append(errs, "throttle requests_per_second must not be negative")
	}
	if c.Throttle.MaxConcurrency < 0 {
		errs = append(errs, "throttle max_concurrency must not be negative")
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}
	if strings.Contains(c.Server.ReferenceRoot, "://") {
		errs = append(errs, "server reference_root must be a local directory")
	}
	if scheme, _, ok := strings.Cut(c.Server.OutputRoot, "://"); ok && scheme != "s3" && scheme != "file" {
		errs = append(errs, "server output_root must be a directory, file:// or s3:// location")
	}

	// Database validation (optional but validate if set)
	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	// S3 validation (optional but validate if set)
	if c.S3.Endpoint != "" && !isValidURL(c.S3.Endpoint) {
		errs = append(errs, "S3 endpoint must be a valid URL")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("REPROMPT_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	configDir := filepath.Join(homeDir, ".config", "reprompt")
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		candidate := filepath.Join(configDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return filepath.Join(configDir, "config.json")
}
