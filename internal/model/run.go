package model

import "time"

// RunStatus represents the current state of a fetch run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusMatched  RunStatus = "matched"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one match-and-retrieve invocation against a data center.
type Run struct {
	ID         string          `json:"id"`
	Agency     string          `json:"agency"`
	Origin     Origin          `json:"origin"`
	Status     RunStatus       `json:"status"`
	Event      *CandidateEvent `json:"event,omitempty"`
	EventCount int             `json:"event_count"`
	FileCount  int             `json:"file_count"`
	TraceCount int             `json:"trace_count"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RunResult carries the outcome of a completed run.
type RunResult struct {
	Event      *CandidateEvent `json:"event,omitempty"`
	EventCount int             `json:"event_count"`
	FileCount  int             `json:"file_count"`
	TraceCount int             `json:"trace_count"`
}

// TraceRecord is the stored summary of one trace retrieved by a run.
type TraceRecord struct {
	RunID        string    `json:"run_id"`
	TraceID      string    `json:"trace_id"`
	Station      string    `json:"station"`
	Channel      string    `json:"channel"`
	StartTime    time.Time `json:"start_time"`
	SamplingRate float64   `json:"sampling_rate"`
	Samples      int       `json:"samples"`
	Source       string    `json:"source,omitempty"`
}
