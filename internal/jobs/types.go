package jobs

import (
	"context"
	"time"
)

// State is the lifecycle state of the queue controller.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Status is the outcome of one processed file.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// FileResult describes one processed script file.
type FileResult struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	Path            string    `json:"path"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Encoding        string    `json:"encoding,omitempty"`
	Lossy           bool      `json:"lossy,omitempty"`
	TotalLines      int       `json:"total_lines"`
	TranslatedLines int       `json:"translated_lines"`
	UnchangedLines  int       `json:"unchanged_lines"`
	FailedSegments  int       `json:"failed_segments"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// ProgressFunc receives the percentage of lines consumed in the current file.
type ProgressFunc func(percent int)

// Executor processes one file to completion. It is called from the single
// queue worker, never concurrently.
type Executor func(ctx context.Context, path string, progress ProgressFunc) (*FileResult, error)

type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventFileStarted  EventType = "file_started"
	EventProgress     EventType = "progress"
	EventFileFinished EventType = "file_finished"
)

type Event struct {
	Type    EventType   `json:"type"`
	State   State       `json:"state,omitempty"`
	Path    string      `json:"path,omitempty"`
	Percent int         `json:"percent,omitempty"`
	Result  *FileResult `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Observer is called synchronously from the queue; it must not block or call
// back into the queue's mutating methods.
type Observer func(Event)

// Snapshot is a point-in-time view of the queue.
type Snapshot struct {
	State   State         `json:"state"`
	RunID   string        `json:"run_id,omitempty"`
	Pending []string      `json:"pending"`
	Current string        `json:"current,omitempty"`
	Percent int           `json:"percent"`
	Recent  []*FileResult `json:"recent"`
}
