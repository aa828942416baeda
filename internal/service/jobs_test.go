package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/medscribe-go/internal/data"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	apperrors "github.com/medscribe/medscribe-go/internal/errors"
)

type fakeArchive struct {
	saved   map[string][]byte
	saveErr error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{saved: map[string][]byte{}}
}

func (f *fakeArchive) Save(ctx context.Context, jobID string, jobType model.JobType, result []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[jobID] = result
	return nil
}

func (f *fakeArchive) GetByJobID(ctx context.Context, jobID string) ([]byte, error) {
	payload, ok := f.saved[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("no archived result for job %s", jobID)
	}
	return payload, nil
}

type jobServiceFixture struct {
	svc         *JobService
	store       *data.MemoryJobStore
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	archive     *fakeArchive
}

func newJobServiceFixture(t *testing.T) *jobServiceFixture {
	t.Helper()
	f := &jobServiceFixture{
		store: data.NewMemoryJobStore(data.MemoryJobStoreOptions{}),
		transcriber: &fakeTranscriber{result: &model.TranscriptionResult{
			Text:            "Patient reports a persistent cough.",
			Language:        "en",
			DurationSeconds: 61.5,
		}},
		generator: &fakeGenerator{output: generatedNote},
		archive:   newFakeArchive(),
	}
	pipeline := MustNewPipeline(PipelineOptions{
		Transcriber: f.transcriber,
		Generator:   f.generator,
	})
	f.svc = MustNewJobService(JobServiceOptions{
		Store:    f.store,
		Pipeline: pipeline,
		Archive:  f.archive,
	})
	return f
}

// drainStatuses collects the status of every update published for a job
// until the channel closes or goes quiet.
func drainStatuses(t *testing.T, updates <-chan []byte) []model.JobStatus {
	t.Helper()
	var statuses []model.JobStatus
	for {
		select {
		case payload, ok := <-updates:
			if !ok {
				return statuses
			}
			var record model.JobRecord
			require.NoError(t, json.Unmarshal(payload, &record))
			statuses = append(statuses, record.Status)
		case <-time.After(200 * time.Millisecond):
			return statuses
		}
	}
}

func TestNewJobService_RequiredDependencies(t *testing.T) {
	pipeline := MustNewPipeline(PipelineOptions{
		Transcriber: &fakeTranscriber{},
		Generator:   &fakeGenerator{},
	})

	_, err := NewJobService(JobServiceOptions{Pipeline: pipeline})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store is required")

	_, err = NewJobService(JobServiceOptions{Store: data.NewMemoryJobStore(data.MemoryJobStoreOptions{})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pipeline is required")
}

func TestJobService_SubmitProcess(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)

	id, err := f.svc.SubmitProcess(ctx, "/audio/visit.wav", map[string]string{"user_id": "u-17"})
	require.NoError(t, err)

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeFullPipeline, record.JobType)
	assert.Equal(t, model.JobStatusPending, record.Status)
	assert.Equal(t, 0, record.Progress)
	assert.Equal(t, "/audio/visit.wav", record.Metadata[MetaAudioFile])
	assert.Equal(t, "u-17", record.Metadata["user_id"])
}

func TestJobService_SubmitGenerate_RecordsTranscriptLength(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)

	id, err := f.svc.SubmitGenerate(ctx, "short transcript", "es", nil)
	require.NoError(t, err)

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobTypeGenerateNoteOnly, record.JobType)
	assert.Equal(t, "es", record.Metadata[MetaLanguage])
	assert.Equal(t, "16", record.Metadata[MetaTranscriptLength])
}

func TestJobService_RunProcessJob_Success(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)

	id, err := f.svc.SubmitProcess(ctx, "/audio/visit.wav", nil)
	require.NoError(t, err)

	updates, cancel, err := f.store.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, f.svc.RunProcessJob(ctx, id, "/audio/visit.wav"))

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)
	require.NotNil(t, record.CurrentStage)
	assert.Equal(t, data.StageCompleted, *record.CurrentStage)
	require.Nil(t, record.Error)

	var payload ProcessResultPayload
	require.NoError(t, json.Unmarshal(record.Result, &payload))
	require.NotNil(t, payload.Transcription)
	assert.Equal(t, "Patient reports a persistent cough.", payload.Transcription.Text)
	require.NotNil(t, payload.Note)
	assert.Contains(t, payload.Note.Subjective, "persistent cough")
	assert.Equal(t, "/audio/visit.wav", payload.AudioFilePath)

	// Every checkpoint was mirrored to the store before the terminal write.
	statuses := drainStatuses(t, updates)
	assert.Contains(t, statuses, model.JobStatusTranscribing)
	assert.Contains(t, statuses, model.JobStatusGenerating)
	assert.Equal(t, model.JobStatusCompleted, statuses[len(statuses)-1])

	// Completed results land in the archive as well.
	archived, err := f.archive.GetByJobID(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, string(record.Result), string(archived))
}

func TestJobService_RunProcessJob_Failure(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)
	f.transcriber.err = apperrors.Transcription("Whisper service unavailable").
		WithDetail("file_path", "/audio/visit.wav").
		WithHint("make sure the transcription service is running")

	id, err := f.svc.SubmitProcess(ctx, "/audio/visit.wav", nil)
	require.NoError(t, err)

	err = f.svc.RunProcessJob(ctx, id, "/audio/visit.wav")
	require.Error(t, err)
	assert.True(t, apperrors.IsTranscription(err))

	record, getErr := f.svc.Get(ctx, id)
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, record.Status)
	require.NotNil(t, record.Error)
	assert.Equal(t, "transcription", record.Error.Kind)
	assert.Equal(t, "Whisper service unavailable", record.Error.Message)
	assert.Equal(t, "/audio/visit.wav", record.Error.Details["file_path"])
	assert.Equal(t, "make sure the transcription service is running", record.Error.Hint)

	// Progress and stage keep the last value reached before the failure.
	assert.Equal(t, 25, record.Progress)
	require.NotNil(t, record.CurrentStage)
	assert.Equal(t, string(model.JobStatusTranscribing), *record.CurrentStage)

	// Nothing to archive for failed jobs.
	_, err = f.archive.GetByJobID(ctx, id)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobService_RunProcessJob_UnclassifiedFailure(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)
	f.generator.err = assertableRawError{}

	id, err := f.svc.SubmitProcess(ctx, "/audio/visit.wav", nil)
	require.NoError(t, err)

	err = f.svc.RunProcessJob(ctx, id, "/audio/visit.wav")
	require.Error(t, err)

	record, getErr := f.svc.Get(ctx, id)
	require.NoError(t, getErr)
	require.NotNil(t, record.Error)
	assert.Equal(t, "internal", record.Error.Kind)
	assert.Equal(t, "Unexpected error", record.Error.Message)
	assert.NotContains(t, record.Error.Message, "connection pool")
}

type assertableRawError struct{}

func (assertableRawError) Error() string { return "connection pool exhausted" }

func TestJobService_RunProcessJob_ArchiveFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)
	f.archive.saveErr = apperrors.Internal("archive database unreachable")

	id, err := f.svc.SubmitProcess(ctx, "/audio/visit.wav", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.RunProcessJob(ctx, id, "/audio/visit.wav"))

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, record.Status)
}

func TestJobService_RunTranscribeJob(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)

	id, err := f.svc.SubmitTranscribe(ctx, "/audio/visit.mp3", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.RunTranscribeJob(ctx, id, "/audio/visit.mp3"))

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)

	var payload TranscribeResultPayload
	require.NoError(t, json.Unmarshal(record.Result, &payload))
	require.NotNil(t, payload.Transcription)
	assert.Equal(t, "Patient reports a persistent cough.", payload.Transcription.Text)
	assert.Zero(t, f.generator.calls)
}

func TestJobService_RunGenerateJob(t *testing.T) {
	ctx := context.Background()
	f := newJobServiceFixture(t)

	id, err := f.svc.SubmitGenerate(ctx, "raw transcript text", "", nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.RunGenerateJob(ctx, id, "raw transcript text", ""))

	record, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, record.Status)

	var payload GenerateResultPayload
	require.NoError(t, json.Unmarshal(record.Result, &payload))
	require.NotNil(t, payload.Note)
	assert.Equal(t, "en", payload.Language, "empty language defaults to English")
	assert.Zero(t, f.transcriber.calls)
}

func TestJobService_Get_Unknown(t *testing.T) {
	f := newJobServiceFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
