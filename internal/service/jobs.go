package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medscribe/medscribe-go/internal/core"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	apperrors "github.com/medscribe/medscribe-go/internal/errors"
	"github.com/medscribe/medscribe-go/internal/observability/statsd"
)

// Metadata keys recorded on submitted jobs.
const (
	MetaAudioFile        = "audio_file"
	MetaLanguage         = "language"
	MetaTranscriptLength = "transcript_length"
)

// ProcessResultPayload is the result stored for a completed full-pipeline job.
type ProcessResultPayload struct {
	Transcription         *model.TranscriptionResult `json:"transcription,omitempty"`
	Note                  *model.SOAPNote            `json:"note,omitempty"`
	AudioFilePath         string                     `json:"audio_file_path,omitempty"`
	ProcessingTimeSeconds float64                    `json:"processing_time_seconds,omitempty"`
}

// TranscribeResultPayload is the result stored for a transcription-only job.
type TranscribeResultPayload struct {
	Transcription *model.TranscriptionResult `json:"transcription"`
}

// GenerateResultPayload is the result stored for a generation-only job.
type GenerateResultPayload struct {
	Note     *model.SOAPNote `json:"note"`
	Language string          `json:"language"`
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store    core.JobStore    // Required: job record store
	Pipeline *Pipeline        // Required: processing pipeline
	Archive  core.NoteArchive // Optional: long-term result archive
	Metrics  *statsd.Client   // Optional: metrics sink
	Logger   *slog.Logger     // Optional: structured logger
}

// JobService submits tracked jobs and executes them against the pipeline.
// The Run methods are plain functions intended to be wrapped as queued tasks
// by whatever worker mechanism hosts them; the service itself does no
// scheduling.
type JobService struct {
	store    core.JobStore
	pipeline *Pipeline
	archive  core.NoteArchive
	metrics  *statsd.Client
	logger   *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("Pipeline is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &JobService{
		store:    opts.Store,
		pipeline: opts.Pipeline,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "job_service"),
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create job service: %v", err))
	}
	return svc
}

// SubmitProcess registers a pending full-pipeline job for the given audio
// file and returns its ID. Execution happens separately via RunProcessJob.
func (s *JobService) SubmitProcess(ctx context.Context, audioPath string, metadata map[string]string) (string, error) {
	metadata = withMeta(metadata, MetaAudioFile, audioPath)
	id, err := s.store.Create(ctx, model.JobTypeFullPipeline, metadata)
	if err != nil {
		return "", fmt.Errorf("submit process job: %w", err)
	}
	s.metrics.Count("jobs.submitted", 1, map[string]string{"job_type": string(model.JobTypeFullPipeline)})
	s.logger.Info("process job submitted", "job_id", id, "audio_path", audioPath)
	return id, nil
}

// SubmitTranscribe registers a pending transcription-only job.
func (s *JobService) SubmitTranscribe(ctx context.Context, audioPath string, metadata map[string]string) (string, error) {
	metadata = withMeta(metadata, MetaAudioFile, audioPath)
	id, err := s.store.Create(ctx, model.JobTypeTranscribeOnly, metadata)
	if err != nil {
		return "", fmt.Errorf("submit transcribe job: %w", err)
	}
	s.metrics.Count("jobs.submitted", 1, map[string]string{"job_type": string(model.JobTypeTranscribeOnly)})
	s.logger.Info("transcribe job submitted", "job_id", id, "audio_path", audioPath)
	return id, nil
}

// SubmitGenerate registers a pending generation-only job over existing
// transcript text.
func (s *JobService) SubmitGenerate(ctx context.Context, transcript, language string, metadata map[string]string) (string, error) {
	metadata = withMeta(metadata, MetaLanguage, language)
	metadata = withMeta(metadata, MetaTranscriptLength, fmt.Sprintf("%d", len(transcript)))
	id, err := s.store.Create(ctx, model.JobTypeGenerateNoteOnly, metadata)
	if err != nil {
		return "", fmt.Errorf("submit generate job: %w", err)
	}
	s.metrics.Count("jobs.submitted", 1, map[string]string{"job_type": string(model.JobTypeGenerateNoteOnly)})
	s.logger.Info("generate job submitted", "job_id", id, "language", language)
	return id, nil
}

// Get returns the job record for the given ID.
func (s *JobService) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	return s.store.Get(ctx, id)
}

// RunProcessJob executes the full pipeline for a submitted job, mirroring
// every progress checkpoint into the job store and finalizing the record in
// a terminal state. The returned error reflects the job outcome; the record
// is terminal either way.
func (s *JobService) RunProcessJob(ctx context.Context, jobID, audioPath string) error {
	result, err := s.pipeline.Process(ctx, audioPath, s.storeProgress(ctx, jobID))
	if err != nil {
		return s.failJob(ctx, jobID, err)
	}

	payload := ProcessResultPayload{
		Transcription:         result.Transcription,
		Note:                  result.Note,
		AudioFilePath:         result.AudioFilePath,
		ProcessingTimeSeconds: result.ProcessingTimeSeconds,
	}
	return s.completeJob(ctx, jobID, model.JobTypeFullPipeline, payload)
}

// RunTranscribeJob executes a transcription-only job.
func (s *JobService) RunTranscribeJob(ctx context.Context, jobID, audioPath string) error {
	progress := s.storeProgress(ctx, jobID)
	progress(model.JobStatusTranscribing, "Starting transcription...", 0)
	progress(model.JobStatusTranscribing, "Processing audio with Whisper...", 50)

	transcription, err := s.pipeline.TranscribeOnly(ctx, audioPath)
	if err != nil {
		return s.failJob(ctx, jobID, err)
	}
	progress(model.JobStatusTranscribing, "Transcription complete", 100)

	return s.completeJob(ctx, jobID, model.JobTypeTranscribeOnly,
		TranscribeResultPayload{Transcription: transcription})
}

// RunGenerateJob executes a generation-only job over supplied transcript text.
func (s *JobService) RunGenerateJob(ctx context.Context, jobID, transcript, language string) error {
	if language == "" {
		language = "en"
	}
	progress := s.storeProgress(ctx, jobID)
	progress(model.JobStatusGenerating, "Starting note generation...", 0)
	progress(model.JobStatusGenerating, "Generating SOAP note with LLM...", 60)

	structured, err := s.pipeline.GenerateNoteOnly(ctx, transcript, language)
	if err != nil {
		return s.failJob(ctx, jobID, err)
	}
	progress(model.JobStatusGenerating, "SOAP note generated", 100)

	return s.completeJob(ctx, jobID, model.JobTypeGenerateNoteOnly,
		GenerateResultPayload{Note: structured, Language: language})
}

// Fail transitions the job to the terminal failed state for an error raised
// outside normal execution, such as a task that could not be dispatched.
func (s *JobService) Fail(ctx context.Context, jobID string, cause error) error {
	return s.failJob(ctx, jobID, cause)
}

// storeProgress adapts store updates into a pipeline progress callback.
// Store write failures are logged, not propagated: progress mirroring is
// observational and must never abort processing.
func (s *JobService) storeProgress(ctx context.Context, jobID string) ProgressFunc {
	return func(status model.JobStatus, message string, percent int) {
		if status.Terminal() {
			// Terminal transitions are written by completeJob/failJob with
			// their payloads; writing them here would race the result.
			return
		}
		if err := s.store.SetProgress(ctx, jobID, percent, string(status)); err != nil {
			s.logger.Warn("failed to record job progress",
				"job_id", jobID, "percent", percent, "error", err)
		}
		s.logger.Debug("job progress", "job_id", jobID, "percent", percent, "message", message)
	}
}

func (s *JobService) completeJob(ctx context.Context, jobID string, jobType model.JobType, payload any) error {
	result, err := json.Marshal(payload)
	if err != nil {
		return s.failJob(ctx, jobID, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode job result"))
	}
	if err := s.store.SetCompleted(ctx, jobID, result); err != nil {
		return fmt.Errorf("finalize job %s: %w", jobID, err)
	}

	s.archiveResult(ctx, jobID, jobType, result)
	s.metrics.Count("jobs.completed", 1, map[string]string{"job_type": string(jobType)})
	s.logger.Info("job completed", "job_id", jobID, "job_type", jobType)
	return nil
}

// failJob records the terminal failed state and returns the original error.
func (s *JobService) failJob(ctx context.Context, jobID string, cause error) error {
	jobErr := toJobError(cause)
	if err := s.store.SetFailed(ctx, jobID, jobErr); err != nil {
		s.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
	s.metrics.Count("jobs.failed", 1, map[string]string{"kind": jobErr.Kind})
	s.logger.Error("job failed", "job_id", jobID, "kind", jobErr.Kind, "message", jobErr.Message)
	return cause
}

// archiveResult is best-effort long-term persistence; archive failures never
// affect the job outcome.
func (s *JobService) archiveResult(ctx context.Context, jobID string, jobType model.JobType, result []byte) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, jobID, jobType, result); err != nil {
		s.logger.Warn("failed to archive job result", "job_id", jobID, "error", err)
	}
}

// toJobError converts a pipeline error into the persisted error shape.
// Classified errors keep their message and detail bag verbatim; anything
// else surfaces only a generic message.
func toJobError(err error) *model.JobError {
	if appErr := apperrors.AsApp(err); appErr != nil {
		return &model.JobError{
			Kind:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
			Hint:    appErr.Hint,
		}
	}
	return &model.JobError{
		Kind:    string(apperrors.ErrCodeInternal),
		Message: "Unexpected error",
	}
}

func withMeta(metadata map[string]string, key, value string) map[string]string {
	if metadata == nil {
		metadata = map[string]string{}
	}
	if value != "" {
		metadata[key] = value
	}
	return metadata
}
