package domain

import "time"

type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusPaused      TaskStatus = "paused"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusError       TaskStatus = "error"
	TaskStatusCanceled    TaskStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusError, TaskStatusCanceled:
		return true
	}
	return false
}

type TaskFormat string

const (
	FormatVideo TaskFormat = "video"
	FormatAudio TaskFormat = "audio"
)

func (f TaskFormat) Valid() bool {
	return f == FormatVideo || f == FormatAudio
}

// Task represents one media retrieval job tracked by the system.
type Task struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Title           string     `json:"title,omitempty"`
	Format          TaskFormat `json:"format"`
	OutputDir       string     `json:"output_dir"`
	Status          TaskStatus `json:"status"`
	Progress        float64    `json:"progress"`
	Speed           string     `json:"speed,omitempty"`
	ETA             string     `json:"eta,omitempty"`
	TotalSize       string     `json:"total_size,omitempty"`
	DownloadedSize  string     `json:"downloaded_size,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	OutputFile      string     `json:"output_file,omitempty"`
	ArchiveLocation string     `json:"archive_location,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TaskUpdate is a partial mutation of a Task. Nil fields are left untouched,
// so the same value doubles as the progress_update payload pushed to
// subscribers: marshalled, only the fields that actually changed appear.
type TaskUpdate struct {
	Title           *string     `json:"title,omitempty"`
	Status          *TaskStatus `json:"status,omitempty"`
	Progress        *float64    `json:"progress,omitempty"`
	Speed           *string     `json:"speed,omitempty"`
	ETA             *string     `json:"eta,omitempty"`
	TotalSize       *string     `json:"total_size,omitempty"`
	DownloadedSize  *string     `json:"downloaded_size,omitempty"`
	ErrorMessage    *string     `json:"error_message,omitempty"`
	OutputFile      *string     `json:"output_file,omitempty"`
	ArchiveLocation *string     `json:"archive_location,omitempty"`
}

// Apply merges the update into t and bumps UpdatedAt.
func (u TaskUpdate) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Speed != nil {
		t.Speed = *u.Speed
	}
	if u.ETA != nil {
		t.ETA = *u.ETA
	}
	if u.TotalSize != nil {
		t.TotalSize = *u.TotalSize
	}
	if u.DownloadedSize != nil {
		t.DownloadedSize = *u.DownloadedSize
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.OutputFile != nil {
		t.OutputFile = *u.OutputFile
	}
	if u.ArchiveLocation != nil {
		t.ArchiveLocation = *u.ArchiveLocation
	}
	t.UpdatedAt = time.Now()
}

// Helpers for building TaskUpdate literals.

func StatusPtr(s TaskStatus) *TaskStatus { return &s }
func StringPtr(s string) *string         { return &s }
func Float64Ptr(f float64) *float64      { return &f }
