// Package data provides the job record stores and long-term archive backing
// the medscribe pipeline.
package data

import (
	"time"

	"github.com/google/uuid"

	"github.com/medscribe/medscribe-go/internal/domain/model"
)

const (
	// DefaultJobTTL is the retention window for job records. After expiry a
	// lookup reports not found, never partial data.
	DefaultJobTTL = 24 * time.Hour

	jobKeyPrefix        = "job:"
	jobUpdateChanPrefix = "job_updates:"

	// StageCompleted is the stage label written alongside a completed status.
	StageCompleted = "completed"
)

// newPendingRecord builds the initial record for a freshly created job.
// IDs are generated independently of store state so concurrent creation
// never collides.
func newPendingRecord(jobType model.JobType, metadata map[string]string, now time.Time) *model.JobRecord {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &model.JobRecord{
		JobID:     uuid.NewString(),
		JobType:   jobType,
		Status:    model.JobStatusPending,
		Progress:  0,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// statusForStage maps a stage label onto the in-flight status enum. Unknown
// labels leave the status untouched so callers can use free-form labels for
// sub-steps without corrupting the state machine.
func statusForStage(stage string) (model.JobStatus, bool) {
	switch model.JobStatus(stage) {
	case model.JobStatusTranscribing:
		return model.JobStatusTranscribing, true
	case model.JobStatusGenerating:
		return model.JobStatusGenerating, true
	default:
		return "", false
	}
}

// progressUpdate assembles the JobUpdate for SetProgress.
func progressUpdate(percent int, stage string) model.JobUpdate {
	update := model.JobUpdate{
		Progress:     &percent,
		CurrentStage: &stage,
	}
	if status, ok := statusForStage(stage); ok {
		update.Status = &status
	}
	return update
}

// completedUpdate assembles the JobUpdate for SetCompleted.
func completedUpdate(result []byte) model.JobUpdate {
	status := model.JobStatusCompleted
	progress := 100
	stage := StageCompleted
	return model.JobUpdate{
		Status:       &status,
		Progress:     &progress,
		CurrentStage: &stage,
		Result:       result,
	}
}

// failedUpdate assembles the JobUpdate for SetFailed. Progress and stage are
// deliberately left alone: failure overlays history, it does not erase it.
func failedUpdate(jobErr *model.JobError) model.JobUpdate {
	status := model.JobStatusFailed
	return model.JobUpdate{
		Status: &status,
		Error:  jobErr,
	}
}
