// Package whisper provides the transcription collaborator backed by a
// faster-whisper server exposing the OpenAI-compatible audio API.
package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medscribe/medscribe-go/internal/core"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	apperrors "github.com/medscribe/medscribe-go/internal/errors"
)

const (
	// DefaultBaseURL targets a local faster-whisper server.
	DefaultBaseURL = "http://localhost:8000/v1"
	// DefaultModel is the model identifier sent with every request.
	DefaultModel = "whisper-1"

	// Files beyond this size still transcribe but get flagged in the logs.
	largeFileBytes = 500 * 1024 * 1024
)

// supportedFormats are the audio container extensions accepted for upload.
var supportedFormats = []string{"mp3", "wav", "m4a", "ogg", "flac", "webm"}

// Config holds the transcription service connection settings.
type Config struct {
	BaseURL  string // server endpoint, defaults to DefaultBaseURL
	APIKey   string // optional bearer token, local servers usually need none
	Model    string // model identifier, defaults to DefaultModel
	Language string // forced language code, empty means auto-detect
}

// transcriptionAPI is the slice of the OpenAI client the adapter uses.
type transcriptionAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	Config   Config
	API      transcriptionAPI // Optional: injected transport, mainly for tests
	Diarizer core.Diarizer    // Optional: speaker attribution collaborator
	Logger   *slog.Logger     // Optional: structured logger
}

// Client transcribes consultation audio files. The underlying HTTP client is
// built once on first use; diarization, when configured, runs before
// transcription and any diarization failure downgrades to a plain
// transcript instead of failing the call.
type Client struct {
	cfg      Config
	api      transcriptionAPI
	initOnce sync.Once
	diarizer core.Diarizer
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
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		cfg:      opts.Config,
		api:      opts.API,
		diarizer: opts.Diarizer,
		logger:   opts.Logger.With("component", "whisper_client"),
	}, nil
}

// MustNewClient constructs a new Client and panics on error.
func MustNewClient(opts ClientOptions) *Client {
	c, err := NewClient(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create whisper client: %v", err))
	}
	return c
}

// Transcribe converts the audio file to text. The file is validated before
// any network call; unknown paths and unsupported formats fail fast as
// input errors carrying the offending path.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*model.TranscriptionResult, error) {
	if err := c.validateAudioFile(audioPath); err != nil {
		return nil, err
	}
	c.ensureAPI()

	c.logger.Info("starting transcription", "audio_path", audioPath)

	diarization := c.tryDiarize(ctx, audioPath)

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.Model,
		FilePath: audioPath,
		Language: c.cfg.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeTranscription,
			"Transcription failed for %s", audioPath).
			WithDetail("file_path", audioPath).
			WithDetail("endpoint", c.cfg.BaseURL).
			WithHint("make sure the transcription server is running and reachable")
	}

	text := strings.TrimSpace(resp.Text)
	language := resp.Language
	duration := resp.Duration
	if duration == 0 && len(resp.Segments) > 0 {
		duration = resp.Segments[len(resp.Segments)-1].End
	}

	result := &model.TranscriptionResult{
		Text:            text,
		Language:        language,
		DurationSeconds: duration,
	}

	if diarization != nil {
		mergeTranscript(diarization, text)
		result.Text = diarization.FormattedTranscript()
		if result.Text == "" {
			result.Text = text
		}
		result.SpeakerSegments = diarization.Segments
		result.Diarization = diarization
		c.logger.Info("transcription complete",
			"audio_path", audioPath, "chars", len(text),
			"duration_seconds", duration, "language", language,
			"speakers", diarization.NumSpeakers)
		return result, nil
	}

	c.logger.Info("transcription complete",
		"audio_path", audioPath, "chars", len(text),
		"duration_seconds", duration, "language", language)
	return result, nil
}

func (c *Client) ensureAPI() {
	c.initOnce.Do(func() {
		if c.api != nil {
			return
		}
		cfg := openai.DefaultConfig(c.cfg.APIKey)
		cfg.BaseURL = c.cfg.BaseURL
		c.api = openai.NewClientWithConfig(cfg)
		c.logger.Debug("transcription client initialized", "endpoint", c.cfg.BaseURL)
	})
}

// tryDiarize runs speaker attribution when a diarizer is configured.
// Failures are logged and swallowed; a consultation without speaker labels
// is still usable.
func (c *Client) tryDiarize(ctx context.Context, audioPath string) *model.DiarizationResult {
	if c.diarizer == nil {
		return nil
	}
	diarization, err := c.diarizer.Diarize(ctx, audioPath)
	if err != nil {
		c.logger.Error("speaker diarization failed", "audio_path", audioPath, "error", err)
		c.logger.Warn("continuing without speaker labels", "audio_path", audioPath)
		return nil
	}
	applyRoleLabels(diarization)
	c.logger.Info("diarization complete",
		"speakers", diarization.NumSpeakers, "segments", len(diarization.Segments))
	return diarization
}

func (c *Client) validateAudioFile(audioPath string) error {
	info, err := os.Stat(audioPath)
	if err != nil {
		return apperrors.Inputf("Audio file not found: %s", audioPath).
			WithDetail("file_path", audioPath)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(audioPath), "."))
	if !formatSupported(ext) {
		return apperrors.Inputf("Unsupported audio format: %s. Supported: %s",
			ext, strings.Join(supportedFormats, ", ")).
			WithDetail("file_path", audioPath).
			WithDetail("format", ext)
	}

	if info.Size() > largeFileBytes {
		c.logger.Warn("large audio file",
			"audio_path", audioPath, "size_mb", fmt.Sprintf("%.1f", float64(info.Size())/(1024*1024)))
	}
	return nil
}

func formatSupported(ext string) bool {
	for _, s := range supportedFormats {
		if ext == s {
			return true
		}
	}
	return false
}

// applyRoleLabels replaces raw speaker ids with consultation roles. The
// speaker with the most talk time is the doctor, the next is the patient,
// further speakers keep a generic label.
func applyRoleLabels(d *model.DiarizationResult) {
	stats := d.SpeakerStatistics()
	if len(stats) == 0 {
		return
	}

	type speakerTime struct {
		speaker string
		seconds float64
	}
	ranked := make([]speakerTime, 0, len(stats))
	for speaker, seconds := range stats {
		ranked = append(ranked, speakerTime{speaker, seconds})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].seconds != ranked[j].seconds {
			return ranked[i].seconds > ranked[j].seconds
		}
		return ranked[i].speaker < ranked[j].speaker
	})

	labels := make(map[string]string, len(ranked))
	if len(ranked) >= 2 {
		labels[ranked[0].speaker] = "Doctor"
		labels[ranked[1].speaker] = "Patient"
		for i, st := range ranked[2:] {
			labels[st.speaker] = fmt.Sprintf("Speaker_%d", i+3)
		}
	} else {
		labels[ranked[0].speaker] = "Speaker"
	}

	d.SpeakerLabels = labels
	for i := range d.Segments {
		if label, ok := labels[d.Segments[i].Speaker]; ok {
			d.Segments[i].Speaker = label
		}
	}
}

// mergeTranscript distributes the transcribed words across the speaker
// segments proportionally to each segment's duration. An approximation, but
// good enough to give the note generator speaker-attributed context.
func mergeTranscript(d *model.DiarizationResult, text string) {
	words := strings.Fields(text)
	if len(words) == 0 || len(d.Segments) == 0 {
		return
	}

	var total float64
	for _, seg := range d.Segments {
		total += seg.Duration()
	}
	if total == 0 {
		return
	}

	idx := 0
	for i := range d.Segments {
		proportion := d.Segments[i].Duration() / total
		n := int(float64(len(words)) * proportion)
		if n < 1 {
			n = 1
		}
		end := idx + n
		if end > len(words) {
			end = len(words)
		}
		d.Segments[i].Text = strings.Join(words[idx:end], " ")
		idx = end
		if idx >= len(words) {
			break
		}
	}

	// Leftover words go to the last segment.
	if idx < len(words) {
		last := len(d.Segments) - 1
		d.Segments[last].Text = strings.TrimSpace(d.Segments[last].Text + " " + strings.Join(words[idx:], " "))
	}
}
