package model

import "time"

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

const RedactedSecret = "REDACTED"

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is legal.
// Statuses only move forward: queued -> running -> done|failed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusDone || next == JobStatusFailed
	default:
		return false
	}
}

type Payload struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// Redacted returns a copy that is safe to expose to pollers.
func (p Payload) Redacted() Payload {
	p.Secret = RedactedSecret
	return p
}

type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Payload   Payload   `json:"payload"`
	Result    *Result   `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is the terminal record of a job run. Failed runs only carry
// Success, Error and FinishedAt; successful runs carry the solving trace.
type Result struct {
	Success            bool                      `json:"success"`
	Error              string                    `json:"error,omitempty"`
	Parsed             *ParsedPage               `json:"parsed,omitempty"`
	Resources          map[string]ResourceHandle `json:"resources,omitempty"`
	ExtractedTexts     map[string]ExtractedText  `json:"extracted_texts,omitempty"`
	Answer             any                       `json:"answer,omitempty"`
	SubmissionResponse any                       `json:"submission_response,omitempty"`
	StopReason         StopReason                `json:"stop_reason,omitempty"`
	Attempts           int                       `json:"attempts,omitempty"`
	HTMLPreview        string                    `json:"html_preview,omitempty"`
	FinishedAt         time.Time                 `json:"finished_at"`
}
