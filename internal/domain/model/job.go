// Package model defines the core data types and structures used throughout the medscribe job system.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeFullPipeline represents a full audio-to-note processing job.
	JobTypeFullPipeline JobType = "full_pipeline"
	// JobTypeTranscribeOnly represents a transcription-only job.
	JobTypeTranscribeOnly JobType = "transcribe_only"
	// JobTypeGenerateNoteOnly represents a note generation job from existing text.
	JobTypeGenerateNoteOnly JobType = "generate_note_only"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusTranscribing indicates the transcription stage is in flight.
	JobStatusTranscribing JobStatus = "transcribing"
	// JobStatusGenerating indicates the note generation stage is in flight.
	JobStatusGenerating JobStatus = "generating"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeFullPipeline || t == JobTypeTranscribeOnly || t == JobTypeGenerateNoteOnly
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusTranscribing || s == JobStatusGenerating ||
		s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal returns true once no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobError is the structured error payload stored on a failed job record.
type JobError struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Hint    string         `json:"hint,omitempty"`
}

// JobRecord is the persisted state of one tracked unit of work. Result and
// Error are mutually exclusive and both absent until a terminal status.
type JobRecord struct {
	JobID        string            `json:"job_id"`
	JobType      JobType           `json:"job_type"`
	Status       JobStatus         `json:"status"`
	Progress     int               `json:"progress"`
	CurrentStage *string           `json:"current_stage"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        *JobError         `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// JobUpdate is a partial mutation applied through the store's single update
// path. Nil fields are left untouched.
type JobUpdate struct {
	Status       *JobStatus
	Progress     *int
	CurrentStage *string
	Result       json.RawMessage
	Error        *JobError
}

// Apply merges the update into the record. The updated timestamp is owned by
// the store, not the caller.
func (u JobUpdate) Apply(rec *JobRecord) {
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.Progress != nil {
		rec.Progress = *u.Progress
	}
	if u.CurrentStage != nil {
		rec.CurrentStage = u.CurrentStage
	}
	if u.Result != nil {
		rec.Result = u.Result
	}
	if u.Error != nil {
		rec.Error = u.Error
	}
}
