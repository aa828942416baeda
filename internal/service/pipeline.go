package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"github.com/medscribe/medscribe-go/internal/core"
	"github.com/medscribe/medscribe-go/internal/data"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/note"
	"github.com/medscribe/medscribe-go/internal/observability/statsd"
)

// ProgressFunc observes pipeline progress. Invocation is best-effort: a
// callback that panics is logged and ignored, never allowed to abort the
// pipeline.
type ProgressFunc func(status model.JobStatus, message string, percent int)

// PipelineOptions groups dependencies for Pipeline.
type PipelineOptions struct {
	Transcriber core.Transcriber   // Required: transcription collaborator
	Generator   core.NoteGenerator // Required: note generation collaborator
	Extractor   *note.Extractor    // Optional: defaults to a standard extractor
	Validator   *note.Validator    // Optional: defaults to a standard validator
	Metrics     *statsd.Client     // Optional: metrics sink
	Clock       data.TimeProvider  // Optional: defaults to real time
	Logger      *slog.Logger       // Optional: structured logger
}

// Pipeline sequences transcription and note generation for one audio file.
// It owns the state machine pending, transcribing, generating, then
// completed or failed, and is the single boundary that converts collaborator
// errors into a terminal result.
type Pipeline struct {
	transcriber core.Transcriber
	generator   core.NoteGenerator
	extractor   *note.Extractor
	validator   *note.Validator
	metrics     *statsd.Client
	clock       data.TimeProvider
	logger      *slog.Logger
}

// NewPipeline constructs a new Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Transcriber == nil {
		return nil, errors.New("Transcriber is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("Generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = note.NewExtractor(note.ExtractorOptions{Logger: opts.Logger})
	}
	if opts.Validator == nil {
		opts.Validator = note.NewValidator(note.ValidatorOptions{Logger: opts.Logger})
	}
	if opts.Clock == nil {
		opts.Clock = &data.RealTimeProvider{}
	}

	return &Pipeline{
		transcriber: opts.Transcriber,
		generator:   opts.Generator,
		extractor:   opts.Extractor,
		validator:   opts.Validator,
		metrics:     opts.Metrics,
		clock:       opts.Clock,
		logger:      opts.Logger.With("component", "pipeline"),
	}, nil
}

// MustNewPipeline constructs a new Pipeline and panics on error.
func MustNewPipeline(opts PipelineOptions) *Pipeline {
	p, err := NewPipeline(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create pipeline: %v", err))
	}
	return p
}

// Process runs transcription then generation for the given audio file. The
// returned result always carries a terminal status; the error return is the
// underlying cause when the status is failed, nil otherwise. Each stage
// reports three checkpoints through the progress callback.
func (p *Pipeline) Process(ctx context.Context, audioPath string, onProgress ProgressFunc) (*model.ProcessingResult, error) {
	runID := uuid.NewString()[:8]
	start := p.clock.Now()

	p.logger.Info("starting pipeline", "run_id", runID, "audio_path", audioPath)

	result := &model.ProcessingResult{
		ID:            runID,
		Status:        model.JobStatusPending,
		AudioFilePath: audioPath,
		CreatedAt:     start,
	}

	err := p.runStages(ctx, result, onProgress)

	completedAt := p.clock.Now()
	result.CompletedAt = &completedAt

	if err == nil {
		result.Status = model.JobStatusCompleted
		result.ProcessingTimeSeconds = completedAt.Sub(start).Seconds()

		p.notify(onProgress, model.JobStatusCompleted,
			fmt.Sprintf("Processing complete in %.1fs", result.ProcessingTimeSeconds), 100)
		p.metrics.Count("pipeline.completed", 1, nil)
		p.metrics.Timing("pipeline.process", completedAt.Sub(start), nil)

		p.logger.Info("pipeline completed",
			"run_id", runID, "elapsed_seconds", result.ProcessingTimeSeconds)
		return result, nil
	}

	result.Status = model.JobStatusFailed
	p.metrics.Count("pipeline.failed", 1, map[string]string{"kind": string(apperrors.GetCode(err))})

	if appErr := apperrors.AsApp(err); appErr != nil {
		// Classified errors carry a caller-safe message verbatim.
		result.ErrorMessage = appErr.Message
		p.notify(onProgress, model.JobStatusFailed, "Error: "+appErr.Message, 0)
		p.logger.Error("pipeline failed", "run_id", runID, "error", err)
		return result, err
	}

	// Unclassified errors surface only a generic message; the detail stays
	// in the logs.
	result.ErrorMessage = "Unexpected error"
	p.notify(onProgress, model.JobStatusFailed, "Unexpected error", 0)
	p.logger.Error("unexpected pipeline error", "run_id", runID, "error", err)
	return result, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Unexpected error")
}

func (p *Pipeline) runStages(ctx context.Context, result *model.ProcessingResult, onProgress ProgressFunc) error {
	if err := p.runTranscription(ctx, result, onProgress); err != nil {
		return err
	}
	return p.runGeneration(ctx, result, onProgress)
}

func (p *Pipeline) runTranscription(ctx context.Context, result *model.ProcessingResult, onProgress ProgressFunc) error {
	p.notify(onProgress, model.JobStatusTranscribing, "Starting transcription...", TranscriptionProgress(0))
	result.Status = model.JobStatusTranscribing

	p.logger.Info("starting transcription", "run_id", result.ID)
	p.notify(onProgress, model.JobStatusTranscribing, "Processing audio with Whisper...", TranscriptionProgress(50))

	transcription, err := p.transcriber.Transcribe(ctx, result.AudioFilePath)
	if err != nil {
		return err
	}
	result.Transcription = transcription

	p.notify(onProgress, model.JobStatusTranscribing, "Transcription complete", TranscriptionProgress(100))
	p.logger.Info("transcription complete",
		"run_id", result.ID,
		"chars", len(transcription.Text),
		"duration_seconds", transcription.DurationSeconds)
	return nil
}

func (p *Pipeline) runGeneration(ctx context.Context, result *model.ProcessingResult, onProgress ProgressFunc) error {
	if result.Transcription == nil {
		return apperrors.Internal("cannot generate note without transcription")
	}

	p.notify(onProgress, model.JobStatusGenerating, "Starting note generation...", GenerationProgress(0))
	result.Status = model.JobStatusGenerating

	language := p.resolveLanguage(result.Transcription)
	p.logger.Info("starting note generation", "run_id", result.ID, "language", language)

	p.notify(onProgress, model.JobStatusGenerating, "Analyzing transcription...", GenerationProgress(30))
	p.notify(onProgress, model.JobStatusGenerating, "Generating SOAP note with LLM...", GenerationProgress(60))

	raw, err := p.generator.Generate(ctx, result.Transcription.Text, language)
	if err != nil {
		return err
	}
	result.Note = p.buildNote(raw)

	p.notify(onProgress, model.JobStatusGenerating, "SOAP note generated", GenerationProgress(100))
	p.logger.Info("note generated", "run_id", result.ID, "language", language,
		"warnings", len(result.Note.Warnings))
	return nil
}

// TranscribeOnly runs the transcription stage on its own. No job state is
// touched; tracking is the caller's choice.
func (p *Pipeline) TranscribeOnly(ctx context.Context, audioPath string) (*model.TranscriptionResult, error) {
	p.logger.Info("transcribe-only mode", "audio_path", audioPath)
	return p.transcriber.Transcribe(ctx, audioPath)
}

// GenerateNoteOnly runs the generation stage over existing transcript text,
// using the supplied language rather than one derived from transcription.
func (p *Pipeline) GenerateNoteOnly(ctx context.Context, transcript, language string) (*model.SOAPNote, error) {
	if language == "" {
		language = "en"
	}
	p.logger.Info("note-only mode", "language", language, "chars", len(transcript))

	raw, err := p.generator.Generate(ctx, transcript, language)
	if err != nil {
		return nil, err
	}
	return p.buildNote(raw), nil
}

// buildNote structures the raw generation output and applies the clinical
// validation battery. Warnings annotate the note; they never fail it.
func (p *Pipeline) buildNote(raw string) *model.SOAPNote {
	structured := p.extractor.Extract(raw)

	warnings := p.validator.Validate(structured)
	if len(warnings) > 0 {
		p.logger.Warn("note validation found issues", "count", len(warnings))
		for _, w := range warnings {
			p.logger.Warn(w)
		}
		p.metrics.Count("pipeline.validation.warnings", int64(len(warnings)), nil)
	}
	note.ApplyWarnings(structured, warnings)
	return structured
}

// resolveLanguage returns the transcription's detected language, falling
// back to text-based detection and finally to English.
func (p *Pipeline) resolveLanguage(tr *model.TranscriptionResult) string {
	if tr.Language != "" {
		return tr.Language
	}
	if iso := whatlanggo.DetectLang(tr.Text).Iso6391(); iso != "" {
		p.logger.Debug("language detected from transcript text", "language", iso)
		return iso
	}
	return "en"
}

// notify is the single best-effort call site for progress observers.
func (p *Pipeline) notify(onProgress ProgressFunc, status model.JobStatus, message string, percent int) {
	if onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("progress callback failed", "panic", r)
		}
	}()
	onProgress(status, message, percent)
}
