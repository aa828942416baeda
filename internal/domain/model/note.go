package model

import (
	"fmt"
	"strings"
	"time"
)

// SpeakerSegment is one speaker-attributed span of the consultation.
// Collections are ordered by start time; consumers assume but do not
// enforce that ordering.
type SpeakerSegment struct {
	Speaker    string   `json:"speaker"`
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Duration returns the length of the segment in seconds.
func (s SpeakerSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// LabeledText renders the segment as "Speaker: text", or empty when the
// segment carries no text.
func (s SpeakerSegment) LabeledText() string {
	if strings.TrimSpace(s.Text) == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", s.Speaker, s.Text)
}

// DiarizationResult is the complete speaker attribution for one audio file.
type DiarizationResult struct {
	Segments      []SpeakerSegment  `json:"segments"`
	NumSpeakers   int               `json:"num_speakers"`
	TotalDuration float64           `json:"total_duration"`
	SpeakerLabels map[string]string `json:"speaker_labels,omitempty"`
}

// FormattedTranscript renders the segments, one "Speaker: text" line each,
// skipping empty segments.
func (d DiarizationResult) FormattedTranscript() string {
	lines := make([]string, 0, len(d.Segments))
	for _, seg := range d.Segments {
		if line := seg.LabeledText(); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// SpeakerStatistics returns total speaking time per speaker in seconds.
func (d DiarizationResult) SpeakerStatistics() map[string]float64 {
	stats := make(map[string]float64, d.NumSpeakers)
	for _, seg := range d.Segments {
		stats[seg.Speaker] += seg.Duration()
	}
	return stats
}

// TranscriptionResult is the immutable output of the transcription stage.
type TranscriptionResult struct {
	Text            string             `json:"text"`
	Language        string             `json:"language"`
	DurationSeconds float64            `json:"duration_seconds"`
	Confidence      *float64           `json:"confidence,omitempty"`
	SpeakerSegments []SpeakerSegment   `json:"speaker_segments,omitempty"`
	Diarization     *DiarizationResult `json:"diarization,omitempty"`
}

// FormattedTranscript returns the speaker-labeled transcript when
// diarization ran, falling back to the plain text.
func (t TranscriptionResult) FormattedTranscript() string {
	if t.Diarization != nil {
		if formatted := t.Diarization.FormattedTranscript(); formatted != "" {
			return formatted
		}
	}
	if len(t.SpeakerSegments) > 0 {
		lines := make([]string, 0, len(t.SpeakerSegments))
		for _, seg := range t.SpeakerSegments {
			if line := seg.LabeledText(); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}
	return t.Text
}

// SOAPNote is the four-section structured clinical record. Every section is
// non-empty: the extractor substitutes a sentinel for missing content.
// Warnings holds the validator findings in emission order; the same findings
// are appended to Plan as readable text for consumers that only see the
// sections.
type SOAPNote struct {
	Subjective string   `json:"subjective"`
	Objective  string   `json:"objective"`
	Assessment string   `json:"assessment"`
	Plan       string   `json:"plan"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Formatted renders the note for terminal output or plain-text export.
func (n SOAPNote) Formatted() string {
	var b strings.Builder
	sections := []struct {
		title string
		body  string
	}{
		{"SUBJECTIVE", n.Subjective},
		{"OBJECTIVE", n.Objective},
		{"ASSESSMENT", n.Assessment},
		{"PLAN", n.Plan},
	}
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.title)
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", len(s.title)))
		b.WriteString("\n")
		b.WriteString(s.body)
	}
	return b.String()
}

// ProcessingResult is the aggregate produced by one pipeline run.
type ProcessingResult struct {
	ID                    string               `json:"id"`
	Status                JobStatus            `json:"status"`
	AudioFilePath         string               `json:"audio_file_path"`
	Transcription         *TranscriptionResult `json:"transcription,omitempty"`
	Note                  *SOAPNote            `json:"note,omitempty"`
	ErrorMessage          string               `json:"error_message,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	CompletedAt           *time.Time           `json:"completed_at,omitempty"`
	ProcessingTimeSeconds float64              `json:"processing_time_seconds,omitempty"`
}
