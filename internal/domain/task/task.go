// Package task defines the Task domain entity for generation requests.
package task

import "time"

// Kind is the category of generation a task asks a worker to perform.
// The values are wire-level: they travel verbatim in the worker protocol.
type Kind string

const (
	KindImage              Kind = "Create Image"
	KindTextToVideo        Kind = "Text to Video"
	KindFramesToVideo      Kind = "Frames to Video"
	KindIngredientsToVideo Kind = "Ingredients to Video"
)

// Valid reports whether k is one of the known task kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindTextToVideo, KindFramesToVideo, KindIngredientsToVideo:
		return true
	}
	return false
}

// IsVideo reports whether the kind produces a video artifact.
func (k Kind) IsVideo() bool {
	return k != KindImage
}

// FileExt returns the expected artifact file extension for the kind.
func (k Kind) FileExt() string {
	if k.IsVideo() {
		return ".mp4"
	}
	return ".png"
}

// Status represents the current lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusAssigned   Status = "assigned"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
	StatusSaveFailed Status = "save_failed"
)

// Terminal reports whether the status is an end state. Terminal tasks only
// change state through an explicit retry.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusSaveFailed:
		return true
	}
	return false
}

// Retryable reports whether a task in this status may be reset to queued.
func (s Status) Retryable() bool {
	switch s {
	case StatusFailed, StatusTimedOut, StatusSaveFailed:
		return true
	}
	return false
}

// Task represents one generation request moving through the queue.
// At most one worker is bound to a task at a time, and that worker is busy
// exactly while the task is assigned.
type Task struct {
	ID              string     `json:"id"`
	Prompt          string     `json:"prompt"`
	Kind            Kind       `json:"task_type"`
	AspectRatio     string     `json:"aspect_ratio"`
	Resolution      string     `json:"resolution"`
	ReferenceImages []string   `json:"reference_images,omitempty"`
	OutputDir       string     `json:"output_dir,omitempty"`
	FileExt         string     `json:"file_ext"`
	RowNumber       string     `json:"row_number,omitempty"`
	Status          Status     `json:"status"`
	StatusDetail    string     `json:"status_detail,omitempty"`
	WorkerID        string     `json:"worker_id,omitempty"`
	SavedPath       string     `json:"saved_path,omitempty"`
	OutputDirPath   string     `json:"output_dir_path,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CreateRequest holds the fields needed to enqueue a new task.
type CreateRequest struct {
	Prompt          string   `json:"prompt"`
	Kind            Kind     `json:"task_type"`
	AspectRatio     string   `json:"aspect_ratio"`
	Resolution      string   `json:"resolution"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	OutputDir       string   `json:"output_dir,omitempty"`
	RowNumber       string   `json:"row_number,omitempty"`
}
