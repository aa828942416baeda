package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/medscribe-go/internal/data"
	"github.com/medscribe/medscribe-go/internal/domain/model"
	apperrors "github.com/medscribe/medscribe-go/internal/errors"
)

type fakeTranscriber struct {
	result   *model.TranscriptionResult
	err      error
	calls    int
	lastPath string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*model.TranscriptionResult, error) {
	f.calls++
	f.lastPath = audioPath
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerator struct {
	output         string
	err            error
	calls          int
	lastTranscript string
	lastLanguage   string
}

func (f *fakeGenerator) Generate(ctx context.Context, transcript, language string) (string, error) {
	f.calls++
	f.lastTranscript = transcript
	f.lastLanguage = language
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type progressEvent struct {
	status  model.JobStatus
	message string
	percent int
}

func recordProgress(events *[]progressEvent) ProgressFunc {
	return func(status model.JobStatus, message string, percent int) {
		*events = append(*events, progressEvent{status, message, percent})
	}
}

const generatedNote = `SUBJECTIVE:
Patient reports persistent cough for two weeks with clear sputum.

OBJECTIVE:
Lungs clear to auscultation bilaterally. No respiratory distress.

ASSESSMENT:
Post-viral cough, resolving.

PLAN:
Supportive care with honey and fluids. Return if symptoms worsen.`

func newTestPipeline(t *testing.T, tr *fakeTranscriber, gen *fakeGenerator, clock data.TimeProvider) *Pipeline {
	t.Helper()
	p, err := NewPipeline(PipelineOptions{
		Transcriber: tr,
		Generator:   gen,
		Clock:       clock,
	})
	require.NoError(t, err)
	return p
}

func TestNewPipeline_RequiredDependencies(t *testing.T) {
	_, err := NewPipeline(PipelineOptions{Generator: &fakeGenerator{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Transcriber is required")

	_, err = NewPipeline(PipelineOptions{Transcriber: &fakeTranscriber{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Generator is required")
}

func TestPipeline_Process_Success(t *testing.T) {
	tr := &fakeTranscriber{result: &model.TranscriptionResult{
		Text:            "Patient reports a persistent cough.",
		Language:        "en",
		DurationSeconds: 94.2,
	}}
	gen := &fakeGenerator{output: generatedNote}
	clock := data.NewFixedTimeProvider(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	p := newTestPipeline(t, tr, gen, clock)

	var events []progressEvent
	result, err := p.Process(context.Background(), "/audio/visit.wav", recordProgress(&events))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, model.JobStatusCompleted, result.Status)
	assert.Equal(t, "/audio/visit.wav", result.AudioFilePath)
	assert.Equal(t, "/audio/visit.wav", tr.lastPath)
	assert.Equal(t, "Patient reports a persistent cough.", gen.lastTranscript)
	assert.Equal(t, "en", gen.lastLanguage)
	require.NotNil(t, result.Transcription)
	require.NotNil(t, result.Note)
	assert.Contains(t, result.Note.Subjective, "persistent cough")
	require.NotNil(t, result.CompletedAt)
	assert.Empty(t, result.ErrorMessage)

	expected := []progressEvent{
		{model.JobStatusTranscribing, "Starting transcription...", 0},
		{model.JobStatusTranscribing, "Processing audio with Whisper...", 25},
		{model.JobStatusTranscribing, "Transcription complete", 50},
		{model.JobStatusGenerating, "Starting note generation...", 50},
		{model.JobStatusGenerating, "Analyzing transcription...", 65},
		{model.JobStatusGenerating, "Generating SOAP note with LLM...", 80},
		{model.JobStatusGenerating, "SOAP note generated", 100},
		{model.JobStatusCompleted, "Processing complete in 0.0s", 100},
	}
	assert.Equal(t, expected, events)
}

func TestPipeline_Process_DetectsLanguageFromText(t *testing.T) {
	tr := &fakeTranscriber{result: &model.TranscriptionResult{
		Text: "The patient describes intermittent chest tightness during exercise that resolves with rest.",
	}}
	gen := &fakeGenerator{output: generatedNote}
	p := newTestPipeline(t, tr, gen, nil)

	_, err := p.Process(context.Background(), "/audio/visit.wav", nil)
	require.NoError(t, err)
	assert.Equal(t, "en", gen.lastLanguage)
}

func TestPipeline_Process_TranscriptionFailure(t *testing.T) {
	cause := apperrors.Transcription("Whisper service unavailable")
	tr := &fakeTranscriber{err: cause}
	gen := &fakeGenerator{output: generatedNote}
	p := newTestPipeline(t, tr, gen, nil)

	var events []progressEvent
	result, err := p.Process(context.Background(), "/audio/visit.wav", recordProgress(&events))
	require.Error(t, err)
	assert.True(t, apperrors.IsTranscription(err))

	require.NotNil(t, result)
	assert.Equal(t, model.JobStatusFailed, result.Status)
	assert.Equal(t, "Whisper service unavailable", result.ErrorMessage)
	assert.Nil(t, result.Note)
	assert.Zero(t, gen.calls)

	last := events[len(events)-1]
	assert.Equal(t, model.JobStatusFailed, last.status)
	assert.Equal(t, "Error: Whisper service unavailable", last.message)
	assert.Equal(t, 0, last.percent)
}

func TestPipeline_Process_UnclassifiedErrorIsGeneric(t *testing.T) {
	tr := &fakeTranscriber{result: &model.TranscriptionResult{Text: "some transcript", Language: "en"}}
	gen := &fakeGenerator{err: errors.New("dial tcp 127.0.0.1:11434: socket buffer exhausted")}
	p := newTestPipeline(t, tr, gen, nil)

	var events []progressEvent
	result, err := p.Process(context.Background(), "/audio/visit.wav", recordProgress(&events))
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))

	// The raw cause never reaches callers or observers.
	assert.Equal(t, "Unexpected error", result.ErrorMessage)
	last := events[len(events)-1]
	assert.Equal(t, "Unexpected error", last.message)
	assert.NotContains(t, last.message, "socket buffer")
}

func TestPipeline_Process_CallbackPanicIsIsolated(t *testing.T) {
	tr := &fakeTranscriber{result: &model.TranscriptionResult{Text: "transcript", Language: "en"}}
	gen := &fakeGenerator{output: generatedNote}
	p := newTestPipeline(t, tr, gen, nil)

	result, err := p.Process(context.Background(), "/audio/visit.wav",
		func(status model.JobStatus, message string, percent int) {
			panic("observer bug")
		})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, result.Status)
}

func TestPipeline_Process_ValidationWarningsAnnotateNote(t *testing.T) {
	unsafe := `SUBJECTIVE:
Patient discloses ongoing domestic violence at home and fears her partner.

OBJECTIVE:
Bruising noted on left forearm in varying stages of healing.

ASSESSMENT:
Intimate partner violence with acute stress reaction.

PLAN:
Recommended couples counseling with partner to address conflict.`

	tr := &fakeTranscriber{result: &model.TranscriptionResult{Text: "transcript", Language: "en"}}
	gen := &fakeGenerator{output: unsafe}
	p := newTestPipeline(t, tr, gen, nil)

	result, err := p.Process(context.Background(), "/audio/visit.wav", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Note)
	assert.NotEmpty(t, result.Note.Warnings)
	assert.Contains(t, result.Note.Plan, "VALIDATION WARNINGS")
	assert.Contains(t, result.Note.Plan, "couples counseling")
}

func TestPipeline_TranscribeOnly(t *testing.T) {
	tr := &fakeTranscriber{result: &model.TranscriptionResult{Text: "hello", Language: "en"}}
	p := newTestPipeline(t, tr, &fakeGenerator{}, nil)

	got, err := p.TranscribeOnly(context.Background(), "/audio/visit.mp3")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "/audio/visit.mp3", tr.lastPath)
}

func TestPipeline_GenerateNoteOnly(t *testing.T) {
	gen := &fakeGenerator{output: generatedNote}
	p := newTestPipeline(t, &fakeTranscriber{}, gen, nil)

	got, err := p.GenerateNoteOnly(context.Background(), "raw transcript text", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "en", gen.lastLanguage, "empty language defaults to English")
	assert.Equal(t, "raw transcript text", gen.lastTranscript)
	assert.Contains(t, got.Plan, "Supportive care")
}

func TestPipeline_GenerateNoteOnly_Error(t *testing.T) {
	gen := &fakeGenerator{err: apperrors.Generation("Empty transcription provided")}
	p := newTestPipeline(t, &fakeTranscriber{}, gen, nil)

	_, err := p.GenerateNoteOnly(context.Background(), "", "en")
	require.Error(t, err)
	assert.True(t, apperrors.IsGeneration(err))
}
