// Package events carries task notifications from the scheduler to whoever is listening.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/tunedl/internal/logger"
)

type Kind string

const (
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Progress is emitted whenever a transfer crosses a whole percent point.
type Progress struct {
	TaskID         uuid.UUID `json:"taskId"`
	Progress       float64   `json:"progress"`
	DownloadedSize int64     `json:"downloadedSize"`
	TotalSize      int64     `json:"totalSize"`
	Speed          int64     `json:"speed"` // bytes/sec
}

type Completed struct {
	TaskID   uuid.UUID `json:"taskId"`
	Filepath string    `json:"filepath"`
	FileSize int64     `json:"fileSize"`
}

type Failed struct {
	TaskID uuid.UUID `json:"taskId"`
	Error  string    `json:"error"`
}

// Event is one notification as delivered to listeners.
type Event struct {
	Kind      Kind
	Payload   any
	Timestamp time.Time
}

// Sink receives scheduler notifications. Emit must not block for long; it is called
// from transfer goroutines.
type Sink interface {
	Emit(kind Kind, payload any)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(kind Kind, payload any)

func (f SinkFunc) Emit(kind Kind, payload any) {
	f(kind, payload)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(Kind, any) {}

// LogSink writes completed and failed events to the log, and progress at debug level.
type LogSink struct{}

func (LogSink) Emit(kind Kind, payload any) {
	switch p := payload.(type) {
	case Progress:
		logger.Debugf("Task %s: %.0f%% (%d/%d bytes, %d B/s)", p.TaskID, p.Progress, p.DownloadedSize, p.TotalSize, p.Speed)
	case Completed:
		logger.Infof("Task %s completed: %s (%d bytes)", p.TaskID, p.Filepath, p.FileSize)
	case Failed:
		logger.Errorf("Task %s failed: %s", p.TaskID, p.Error)
	default:
		logger.Debugf("Event %s: %v", kind, payload)
	}
}
