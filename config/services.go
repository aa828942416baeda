package config

import "strings"

// WhisperConfig contains the transcription service settings.
type WhisperConfig struct {
	// BaseURL is the faster-whisper server endpoint (OpenAI-compatible API).
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8000/v1"`
	APIKey  string `env:"API_KEY"  envDefault:""`
	Model   string `env:"MODEL"    envDefault:"whisper-1"`
	// Language forces transcription language; empty means auto-detect.
	Language string `env:"LANGUAGE" envDefault:""`
}

// Sanitize applies guardrails to transcription configuration values.
func (c *WhisperConfig) Sanitize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Model == "" {
		c.Model = "whisper-1"
	}
}

// OllamaConfig contains the note generation service settings.
type OllamaConfig struct {
	// BaseURL is the Ollama endpoint (OpenAI-compatible API path).
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:11434/v1"`
	APIKey  string `env:"API_KEY"  envDefault:""`
	Model   string `env:"MODEL"    envDefault:"llama3.2"`
	// Temperature keeps generation conservative by default.
	Temperature float32 `env:"TEMPERATURE" envDefault:"0.3"`
}

// Sanitize applies guardrails to generation configuration values.
func (c *OllamaConfig) Sanitize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Model == "" {
		c.Model = "llama3.2"
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		c.Temperature = 0.3
	}
}

// RunnerConfig contains worker pool configuration.
type RunnerConfig struct {
	// Concurrency is the maximum number of jobs processed in parallel.
	Concurrency int `env:"CONCURRENCY" envDefault:"2"`

	// QueueSize is the pending task buffer.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"64"`
}

// Sanitize applies guardrails to runner configuration values.
func (c *RunnerConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
}
