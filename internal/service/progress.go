// Package service contains the processing pipeline, job submission surface,
// and update broadcasting for medscribe jobs.
package service

// Stage weights for overall progress accounting. Transcription covers the
// first half of the bar, generation the second half.
const (
	transcriptionWeight = 50
	generationWeight    = 50
)

// TranscriptionProgress maps a transcription-stage percentage (0-100) onto
// overall progress (0-50). Integer floor arithmetic keeps progress monotonic
// and prevents overshooting the stage boundary.
func TranscriptionProgress(stagePercent int) int {
	return stagePercent * transcriptionWeight / 100
}

// GenerationProgress maps a generation-stage percentage (0-100) onto overall
// progress (50-100).
func GenerationProgress(stagePercent int) int {
	return transcriptionWeight + stagePercent*generationWeight/100
}
