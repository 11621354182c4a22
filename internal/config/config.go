// Package config provides configuration management for the paper analysis service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the paper analysis service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Pipeline contains analysis pipeline settings.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Verify contains verification scoring settings.
	Verify VerifyConfig `mapstructure:"verify"`
	// Rank contains recommendation ranking settings.
	Rank RankConfig `mapstructure:"rank"`
	// Embeddings contains embedding provider client settings.
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	// PaperSources contains paper source API configurations.
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// PipelineConfig holds analysis pipeline settings.
type PipelineConfig struct {
	// MaxInFlight is the maximum number of concurrent provider calls per stage.
	MaxInFlight int `mapstructure:"max_in_flight"`
	// MaxRecommendations is the default number of ranked candidates to return.
	MaxRecommendations int `mapstructure:"max_recommendations"`
	// CitationNeighborLimit is the maximum papers fetched per citation direction.
	CitationNeighborLimit int `mapstructure:"citation_neighbor_limit"`
	// SearchMaxCandidates is the maximum candidates per resolution query.
	SearchMaxCandidates int `mapstructure:"search_max_candidates"`
	// AnalysisTimeout is the overall deadline for one analysis run.
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout"`
}

// VerifyConfig holds verification scoring settings.
type VerifyConfig struct {
	// VerifiedThreshold is the minimum score for a verified classification.
	VerifiedThreshold float64 `mapstructure:"verified_threshold"`
	// UncertainThreshold is the minimum score for an uncertain classification.
	UncertainThreshold float64 `mapstructure:"uncertain_threshold"`
	// TitleWeight is the weight of title similarity in the match score.
	TitleWeight float64 `mapstructure:"title_weight"`
	// AuthorWeight is the weight of author overlap in the match score.
	AuthorWeight float64 `mapstructure:"author_weight"`
	// YearWeight is the weight of year agreement in the match score.
	YearWeight float64 `mapstructure:"year_weight"`
}

// RankConfig holds recommendation ranking settings.
type RankConfig struct {
	// GraphWeight is the weight of graph proximity in the combined score.
	GraphWeight float64 `mapstructure:"graph_weight"`
	// SemanticWeight is the weight of semantic similarity in the combined score.
	SemanticWeight float64 `mapstructure:"semantic_weight"`
}

// EmbeddingsConfig holds embedding provider client settings.
type EmbeddingsConfig struct {
	// APIKey is the provider API key (loaded from PAPERLENS_EMBEDDINGS_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// BaseURL is the embeddings API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Model is the embedding model to use.
	Model string `mapstructure:"model"`
	// Timeout is the timeout for embedding API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// CacheSize is the capacity of the process-wide embedding cache.
	CacheSize int `mapstructure:"cache_size"`
}

// PaperSourcesConfig holds configuration for all paper source APIs.
type PaperSourcesConfig struct {
	// OpenAlex contains OpenAlex API settings.
	OpenAlex PaperSourceConfig `mapstructure:"openalex"`
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
}

// PaperSourceConfig holds configuration for a single paper source API.
type PaperSourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. PAPERLENS_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is sent with requests for polite-pool treatment (OpenAlex).
	Email string `mapstructure:"email"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PAPERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paperlens-analysis-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	// Embedding provider API key. A per-request key supplied over HTTP takes
	// precedence at call time and is never persisted.
	cfg.Embeddings.APIKey = os.Getenv("PAPERLENS_EMBEDDINGS_API_KEY")

	// Paper source API keys.
	cfg.PaperSources.OpenAlex.APIKey = os.Getenv("PAPERLENS_PAPER_SOURCES_OPENALEX_API_KEY")
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv("PAPERLENS_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Pipeline defaults
	v.SetDefault("pipeline.max_in_flight", 8)
	v.SetDefault("pipeline.max_recommendations", 10)
	v.SetDefault("pipeline.citation_neighbor_limit", 100)
	v.SetDefault("pipeline.search_max_candidates", 5)
	v.SetDefault("pipeline.analysis_timeout", "5m")

	// Verification defaults
	v.SetDefault("verify.verified_threshold", 0.85)
	v.SetDefault("verify.uncertain_threshold", 0.5)
	v.SetDefault("verify.title_weight", 0.5)
	v.SetDefault("verify.author_weight", 0.3)
	v.SetDefault("verify.year_weight", 0.2)

	// Ranking defaults
	v.SetDefault("rank.graph_weight", 0.5)
	v.SetDefault("rank.semantic_weight", 0.5)

	// Embedding provider defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("embeddings.base_url", "https://api.openai.com/v1")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout", "30s")
	v.SetDefault("embeddings.max_retries", 3)
	v.SetDefault("embeddings.retry_delay", "2s")
	v.SetDefault("embeddings.cache_size", 4096)

	// Paper sources defaults - OpenAlex
	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.email", "")
	v.SetDefault("paper_sources.openalex.timeout", "30s")
	v.SetDefault("paper_sources.openalex.rate_limit", 10.0)
	v.SetDefault("paper_sources.openalex.max_results", 200)

	// Paper sources defaults - Semantic Scholar
	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_limit", 10.0)
	v.SetDefault("paper_sources.semantic_scholar.max_results", 100)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate pipeline config
	if c.Pipeline.MaxInFlight <= 0 {
		return fmt.Errorf("pipeline max_in_flight must be positive")
	}
	if c.Pipeline.MaxRecommendations <= 0 {
		return fmt.Errorf("pipeline max_recommendations must be positive")
	}
	if c.Pipeline.CitationNeighborLimit <= 0 {
		return fmt.Errorf("pipeline citation_neighbor_limit must be positive")
	}

	// Validate verification thresholds
	if c.Verify.VerifiedThreshold < 0 || c.Verify.VerifiedThreshold > 1 {
		return fmt.Errorf("verify verified_threshold must be between 0 and 1")
	}
	if c.Verify.UncertainThreshold < 0 || c.Verify.UncertainThreshold > 1 {
		return fmt.Errorf("verify uncertain_threshold must be between 0 and 1")
	}
	if c.Verify.UncertainThreshold > c.Verify.VerifiedThreshold {
		return fmt.Errorf("verify uncertain_threshold (%.2f) must be <= verified_threshold (%.2f)",
			c.Verify.UncertainThreshold, c.Verify.VerifiedThreshold)
	}

	// Validate ranking weights
	if c.Rank.GraphWeight < 0 || c.Rank.SemanticWeight < 0 {
		return fmt.Errorf("rank weights must be non-negative")
	}
	if c.Rank.GraphWeight+c.Rank.SemanticWeight == 0 {
		return fmt.Errorf("at least one rank weight must be positive")
	}

	// Validate embeddings config
	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings base_url is required")
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings model is required")
	}
	if c.Embeddings.CacheSize <= 0 {
		return fmt.Errorf("embeddings cache_size must be positive")
	}

	// At least one paper source must be enabled.
	if !c.PaperSources.OpenAlex.Enabled && !c.PaperSources.SemanticScholar.Enabled {
		return fmt.Errorf("at least one paper source must be enabled")
	}

	return nil
}
