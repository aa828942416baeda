// Package ollama provides the note generation collaborator backed by an
// Ollama server through its OpenAI-compatible chat API.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/medscribe/medscribe-go/internal/errors"
)

const (
	// DefaultBaseURL targets a local Ollama installation.
	DefaultBaseURL = "http://localhost:11434/v1"
	// DefaultModel is the generation model used unless configured otherwise.
	DefaultModel = "llama3.2"
	// DefaultTemperature keeps generation conservative; clinical notes need
	// consistency, not creativity.
	DefaultTemperature = 0.3
)

const systemPrompt = "You are an experienced clinician writing structured " +
	"clinical documentation. Given a medical consultation transcript, write " +
	"a SOAP note with exactly four sections headed SUBJECTIVE:, OBJECTIVE:, " +
	"ASSESSMENT: and PLAN:. Document only what the transcript supports. " +
	"Never invent findings, vital signs, or diagnoses."

// Config holds the generation service connection settings.
type Config struct {
	BaseURL     string  // server endpoint, defaults to DefaultBaseURL
	APIKey      string  // optional, local Ollama needs none
	Model       string  // model identifier, defaults to DefaultModel
	Temperature float32 // sampling temperature, defaults to DefaultTemperature
}

// chatAPI is the slice of the OpenAI client the adapter uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	Config Config
	API    chatAPI      // Optional: injected transport, mainly for tests
	Logger *slog.Logger // Optional: structured logger
}

// Client generates raw clinical-note text from consultation transcripts.
// The HTTP client is built once on first use.
type Client struct {
	cfg      Config
	api      chatAPI
	initOnce sync.Once
	logger   *slog.Logger
}

// NewClient constructs a new Client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Config.BaseURL == "" {
		opts.Config.BaseURL = DefaultBaseURL
	}
	if opts.Config.Model == "" {
		opts.Config.Model = DefaultModel
	}
	if opts.Config.Temperature == 0 {
		opts.Config.Temperature = DefaultTemperature
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		cfg:    opts.Config,
		api:    opts.API,
		logger: opts.Logger.With("component", "ollama_client"),
	}, nil
}

// MustNewClient constructs a new Client and panics on error.
func MustNewClient(opts ClientOptions) *Client {
	c, err := NewClient(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ollama client: %v", err))
	}
	return c
}

// Generate produces raw note text for the transcript. Empty transcripts
// fail before any network call. Language is an ISO 639-1 code; for
// non-English consultations the model is instructed to keep the clinical
// content in the original language with English section headers.
func (c *Client) Generate(ctx context.Context, transcript, language string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", apperrors.Generation("Failed to generate SOAP note: Empty transcription provided")
	}
	c.ensureAPI()

	c.logger.Info("generating clinical note",
		"model", c.cfg.Model, "chars", len(transcript), "language", language)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(transcript, language)},
		},
	})
	if err != nil {
		return "", c.classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.Generation("Failed to generate SOAP note: model returned no output").
			WithDetail("model", c.cfg.Model)
	}

	text := resp.Choices[0].Message.Content
	c.logger.Info("note generated", "model", c.cfg.Model, "chars", len(text))
	return text, nil
}

func (c *Client) ensureAPI() {
	c.initOnce.Do(func() {
		if c.api != nil {
			return
		}
		cfg := openai.DefaultConfig(c.cfg.APIKey)
		cfg.BaseURL = c.cfg.BaseURL
		c.api = openai.NewClientWithConfig(cfg)
		c.logger.Debug("generation client initialized",
			"endpoint", c.cfg.BaseURL, "model", c.cfg.Model)
	})
}

// classifyError distinguishes an unreachable server from a missing model so
// the stored job error carries an actionable hint.
func (c *Client) classifyError(err error) error {
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connect:") {
		return apperrors.Wrapf(err, apperrors.ErrCodeGeneration,
			"Cannot connect to Ollama at %s", c.cfg.BaseURL).
			WithDetail("endpoint", c.cfg.BaseURL).
			WithHint("make sure Ollama is running: 'ollama serve'")
	}

	if strings.Contains(msg, "not found") || strings.Contains(msg, "pull") {
		return apperrors.Wrapf(err, apperrors.ErrCodeGeneration,
			"Model '%s' not found in Ollama", c.cfg.Model).
			WithDetail("model", c.cfg.Model).
			WithHint(fmt.Sprintf("pull the model first: 'ollama pull %s'", c.cfg.Model))
	}

	return apperrors.Wrap(err, apperrors.ErrCodeGeneration, "Failed to generate SOAP note").
		WithDetail("endpoint", c.cfg.BaseURL).
		WithDetail("model", c.cfg.Model)
}

func buildUserPrompt(transcript, language string) string {
	var b strings.Builder
	b.WriteString("Write a SOAP note for the following consultation transcript.\n")
	if language != "" && !strings.EqualFold(language, "en") {
		fmt.Fprintf(&b, "\nThe transcript is in language code %q. "+
			"Write all clinical content in that language, keeping the four "+
			"section headers in English.\n", language)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}
