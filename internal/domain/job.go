package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	// JobStatusPending and JobStatusQueued are distinct labels on the wire
	// but mean the same thing: eligible for claiming.
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsReady reports whether a job in this status may be claimed by a worker.
func (s JobStatus) IsReady() bool {
	return s == JobStatusPending || s == JobStatusQueued
}

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Quality enumerates supported generation quality levels.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Valid reports whether q is one of the supported quality levels.
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// Job encapsulates the lifecycle of one prompt-to-audio generation request.
type Job struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Prompt       string     `json:"prompt"`
	Duration     int        `json:"duration"`
	Quality      Quality    `json:"quality"`
	Mode         string     `json:"mode"`
	Status       JobStatus  `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ResultURL    string     `json:"result_url,omitempty"`
	WavURL       string     `json:"wav_url,omitempty"`
	MP3URL       string     `json:"mp3_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

const (
	MaxPromptLength = 500
	MinDuration     = 1
	MaxDuration     = 60

	DefaultDuration = 10
	DefaultQuality  = QualityMedium
	DefaultMode     = "default"
)

// CreateJobInput carries the submitter-provided fields of a new job.
// Duration and Quality are pointers so an absent field can be told apart
// from an explicit zero value: only absence triggers a default, an explicit
// `"duration": 0` or `"quality": ""` must surface as a violation.
type CreateJobInput struct {
	Prompt   string   `json:"prompt"`
	Duration *int     `json:"duration,omitempty"`
	Quality  *Quality `json:"quality,omitempty"`
	Mode     string   `json:"mode,omitempty"`
}

// Normalize trims the prompt and fills in defaults for fields the submitter
// omitted. Run it before Validate so defaulted values are not reported as
// violations.
func (in *CreateJobInput) Normalize() {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Duration == nil {
		d := DefaultDuration
		in.Duration = &d
	}
	if in.Quality == nil {
		q := DefaultQuality
		in.Quality = &q
	}
	if strings.TrimSpace(in.Mode) == "" {
		in.Mode = DefaultMode
	}
}

// Validate returns every violation found, not just the first. An empty
// slice means the input is acceptable. Prompt length is counted in runes so
// multibyte prompts are not penalized for their encoding.
func (in CreateJobInput) Validate() []string {
	var errs []string
	if strings.TrimSpace(in.Prompt) == "" {
		errs = append(errs, "prompt cannot be empty")
	} else if utf8.RuneCountInString(in.Prompt) > MaxPromptLength {
		errs = append(errs, fmt.Sprintf("prompt must be %d characters or less", MaxPromptLength))
	}
	if in.Duration == nil || *in.Duration < MinDuration || *in.Duration > MaxDuration {
		errs = append(errs, fmt.Sprintf("duration must be between %d and %d seconds", MinDuration, MaxDuration))
	}
	if in.Quality == nil || !in.Quality.Valid() {
		errs = append(errs, fmt.Sprintf("quality must be one of: %s, %s, %s", QualityLow, QualityMedium, QualityHigh))
	}
	return errs
}
