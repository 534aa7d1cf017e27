/**
 * Configuration for the Segmentation Worker
 *
 * Loads configuration from environment variables (optionally seeded from a
 * .env file by the entry points).
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://nexus-redis:6379"`
	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"redis"`
	QueueName    string `env:"QUEUE_NAME" envDefault:"segmentation"`

	// PostgreSQL configuration
	DatabaseURL string `env:"DATABASE_URL"`

	// Reasoning service configuration
	ReasoningProvider      string  `env:"REASONING_PROVIDER" envDefault:"ollama"`
	OllamaURL              string  `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel            string  `env:"OLLAMA_MODEL" envDefault:"llama3.1"`
	OllamaVisionModel      string  `env:"OLLAMA_VISION_MODEL" envDefault:"llava"`
	OllamaEmbedModel       string  `env:"OLLAMA_EMBED_MODEL" envDefault:"nomic-embed-text"`
	GeminiAPIKey           string  `env:"GEMINI_API_KEY"`
	GeminiModel            string  `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	MageAgentURL           string  `env:"MAGEAGENT_URL" envDefault:"http://nexus-mageagent:8080"`
	ReasoningRatePerSecond float64 `env:"REASONING_RATE_PER_SECOND" envDefault:"2"`
	ReasoningBurst         int     `env:"REASONING_BURST" envDefault:"1"`
	ContextSampleChars     int     `env:"CONTEXT_SAMPLE_CHARS" envDefault:"2000"`

	// Term index configuration
	TermIndex               string  `env:"TERM_INDEX" envDefault:"none"`
	QdrantURL               string  `env:"QDRANT_URL" envDefault:"nexus-qdrant:6334"`
	QdrantVectorSize        uint64  `env:"QDRANT_VECTOR_SIZE" envDefault:"768"`
	TermSimilarityThreshold float32 `env:"TERM_SIMILARITY_THRESHOLD" envDefault:"0.92"`

	// Slide image configuration
	SlideImageFormat       string `env:"SLIDE_IMAGE_FORMAT" envDefault:"png"`
	SlideImageMaxDimension int    `env:"SLIDE_IMAGE_MAX_DIMENSION" envDefault:"1280"`

	// Worker configuration
	WorkerConcurrency int   `env:"WORKER_CONCURRENCY" envDefault:"10"`
	MaxFileSize       int64 `env:"MAX_FILE_SIZE" envDefault:"52428800"`    // 50MB
	ProcessingTimeout int   `env:"PROCESSING_TIMEOUT" envDefault:"300000"` // 5 minutes, in ms

	// Tesseract configuration
	TesseractLanguage string `env:"TESSERACT_LANGUAGE" envDefault:"eng"`

	// Temporary directory for file processing
	TempDir string `env:"TEMP_DIR" envDefault:"/tmp/segmentation"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Node environment
	NodeEnv string `env:"NODE_ENV" envDefault:"development"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadLocalConfig loads configuration for one-off local runs, which have
// no database to hand results to.
func LoadLocalConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(false); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Timeout returns ProcessingTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireDatabase bool) error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if requireDatabase && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if !oneOf(c.QueueBackend, "redis", "asynq") {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	switch strings.ToLower(c.ReasoningProvider) {
	case "ollama":
		if c.OllamaURL == "" {
			return fmt.Errorf("OLLAMA_URL is required when REASONING_PROVIDER=ollama")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when REASONING_PROVIDER=gemini")
		}
	case "mageagent":
		if c.MageAgentURL == "" {
			return fmt.Errorf("MAGEAGENT_URL is required when REASONING_PROVIDER=mageagent")
		}
	case "none":
	default:
		return fmt.Errorf("REASONING_PROVIDER must be one of ollama, gemini, mageagent, none; got %q", c.ReasoningProvider)
	}

	if c.ReasoningRatePerSecond <= 0 {
		return fmt.Errorf("REASONING_RATE_PER_SECOND must be positive, got %v", c.ReasoningRatePerSecond)
	}

	if c.ReasoningBurst < 1 {
		return fmt.Errorf("REASONING_BURST must be at least 1, got %d", c.ReasoningBurst)
	}

	if c.ContextSampleChars < 100 || c.ContextSampleChars > 100000 {
		return fmt.Errorf("CONTEXT_SAMPLE_CHARS must be between 100 and 100000, got %d", c.ContextSampleChars)
	}

	if !oneOf(c.TermIndex, "none", "memory", "qdrant") {
		return fmt.Errorf("TERM_INDEX must be none, memory or qdrant, got %q", c.TermIndex)
	}

	if c.TermIndex == "qdrant" && c.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is required when TERM_INDEX=qdrant")
	}

	if c.TermSimilarityThreshold <= 0 || c.TermSimilarityThreshold > 1 {
		return fmt.Errorf("TERM_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.TermSimilarityThreshold)
	}

	if !oneOf(c.SlideImageFormat, "png", "webp") {
		return fmt.Errorf("SLIDE_IMAGE_FORMAT must be png or webp, got %q", c.SlideImageFormat)
	}

	if c.SlideImageMaxDimension < 64 || c.SlideImageMaxDimension > 8192 {
		return fmt.Errorf("SLIDE_IMAGE_MAX_DIMENSION must be between 64 and 8192, got %d", c.SlideImageMaxDimension)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
