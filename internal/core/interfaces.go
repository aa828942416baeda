// Package core defines the ports between the medscribe service layer and its
// collaborators and data stores.
package core

import (
	"context"

	"github.com/medscribe/medscribe-go/internal/domain/model"
)

// This file contains the interface definitions (ports in hexagonal
// architecture). Service implementations depend on these contracts, never on
// concrete stores or model clients.

// JobStore is the durable key-value store for job records with expiry and a
// per-job change-notification channel. Update is the only sanctioned
// mutation path; every state transition flows through it so subscribers
// observe a uniform stream.
type JobStore interface {
	// Create allocates a new pending record and returns its id.
	Create(ctx context.Context, jobType model.JobType, metadata map[string]string) (string, error)
	// Get returns the record, or a not_found error once it expired or never existed.
	Get(ctx context.Context, id string) (*model.JobRecord, error)
	// Update merges the partial fields, refreshes the updated timestamp,
	// re-persists with the retention TTL, and publishes the full record on
	// the job's channel. Unknown ids are a hard not_found error.
	Update(ctx context.Context, id string, update model.JobUpdate) (*model.JobRecord, error)
	// SetProgress marks the in-flight stage status with progress and label.
	SetProgress(ctx context.Context, id string, percent int, stage string) error
	// SetCompleted stores the result payload and moves the record to completed.
	SetCompleted(ctx context.Context, id string, result []byte) error
	// SetFailed overlays the error payload; progress and stage keep their
	// last known value.
	SetFailed(ctx context.Context, id string, jobErr *model.JobError) error
	// Subscribe returns a channel of raw update payloads for one job and an
	// idempotent unsubscribe func releasing the store-side subscription.
	Subscribe(ctx context.Context, id string) (<-chan []byte, func(), error)
}

// Transcriber converts a consultation audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*model.TranscriptionResult, error)
}

// NoteGenerator produces raw clinical-note text from a transcript. The same
// method serves the blocking and the queued execution paths; callers bound
// it with the context.
type NoteGenerator interface {
	Generate(ctx context.Context, transcript, language string) (string, error)
}

// Diarizer attributes speech segments to speakers. It is optional; callers
// treat any failure as "diarization unavailable", never as a job failure.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) (*model.DiarizationResult, error)
}

// NoteArchive persists completed results beyond the job store's retention
// window. Implementations must tolerate repeat writes for the same job.
type NoteArchive interface {
	Save(ctx context.Context, jobID string, jobType model.JobType, result []byte) error
	GetByJobID(ctx context.Context, jobID string) ([]byte, error)
}
