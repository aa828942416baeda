package config

import (
	"fmt"
	"strings"
	"time"
)

// StoreBackend selects the job record store implementation.
type StoreBackend string

const (
	// StoreBackendRedis persists job records in Redis. The default and the
	// only backend that survives process restarts.
	StoreBackendRedis StoreBackend = "redis"
	// StoreBackendMemory keeps job records in process memory. Single-node
	// development and tests only.
	StoreBackendMemory StoreBackend = "memory"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Job store and archive configuration
//   - services.go: Transcription, generation, and worker configuration
//   - observability.go: Metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text log handler, debug level).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Store selects the job record store backend: "redis" or "memory".
	Store StoreBackend `env:"JOB_STORE" envDefault:"redis"`

	// JobTTL is the retention window for job records.
	JobTTL time.Duration `env:"JOB_TTL" envDefault:"24h"`

	// Job store and archive configuration
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Postgres DBConfig    `envPrefix:"DB_"`

	// Collaborator configuration
	Whisper WhisperConfig `envPrefix:"WHISPER_"`
	Ollama  OllamaConfig  `envPrefix:"OLLAMA_"`

	// Worker pool configuration
	Runner RunnerConfig `envPrefix:"RUNNER_"`

	// Observability configuration
	Metrics MetricsConfig `envPrefix:"STATSD_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Store = StoreBackend(strings.ToLower(strings.TrimSpace(string(c.Store))))
	if c.JobTTL <= 0 {
		c.JobTTL = 24 * time.Hour
	}

	c.Whisper.Sanitize()
	c.Ollama.Sanitize()
	c.Runner.Sanitize()
	c.Metrics.Sanitize()
}

// Validate rejects configurations that cannot be wired.
func (c *AppConfig) Validate() error {
	switch c.Store {
	case StoreBackendRedis, StoreBackendMemory:
	default:
		return fmt.Errorf("invalid job store backend: %q (valid options: redis, memory)", c.Store)
	}
	return nil
}
