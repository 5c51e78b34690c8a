package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/status"
)

// Task is the durable record of one download.
type Task struct {
	ID uuid.UUID `json:"id"`

	// Immutable input.
	Song    music.Song `json:"song"`
	Quality string     `json:"quality"`
	Source  string     `json:"source"`

	Filename string `json:"filename"`
	Filepath string `json:"filepath"`

	Status       status.Status `json:"status"`
	Progress     float64       `json:"progress"`
	Downloaded   int64         `json:"downloaded"`
	TotalSize    int64         `json:"totalSize"` // 0 until the server reports a length
	FileSize     int64         `json:"fileSize,omitempty"`
	RetryCount   int           `json:"retryCount"`
	ErrorMessage string        `json:"errorMessage,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// New creates a pending task for song at quality, writing into dir.
func New(song music.Song, quality, source, dir string) *Task {
	now := time.Now()
	filename := FilenameFor(song, quality)

	return &Task{
		ID:        uuid.New(),
		Song:      song,
		Quality:   quality,
		Source:    source,
		Filename:  filename,
		Filepath:  PathFor(dir, filename),
		Status:    status.Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SameSong reports whether t and other download the same song at the same quality.
// Songs without an id are told apart by their output path.
func (t *Task) SameSong(other *Task) bool {
	if t.Quality != other.Quality {
		return false
	}

	if t.Song.ID == "" || other.Song.ID == "" {
		return t.Filepath == other.Filepath
	}

	return t.Song.ID == other.Song.ID
}

// Clone returns a shallow copy safe to hand out to callers.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// StatusFields carries the optional columns written alongside a status change.
type StatusFields struct {
	Filepath     string
	FileSize     int64
	ErrorMessage string
	RetryCount   *int
}

// Apply updates t for a transition to st.
func (t *Task) Apply(st status.Status, f StatusFields, now time.Time) {
	t.Status = st
	t.UpdatedAt = now

	if f.Filepath != "" {
		t.Filepath = f.Filepath
	}

	if f.FileSize > 0 {
		t.FileSize = f.FileSize
	}

	if f.ErrorMessage != "" {
		t.ErrorMessage = f.ErrorMessage
	}

	if f.RetryCount != nil {
		t.RetryCount = *f.RetryCount
	}

	switch st {
	case status.Completed:
		t.CompletedAt = now
		t.ErrorMessage = ""
		t.Progress = 100
		if t.FileSize > 0 {
			t.Downloaded = t.FileSize
			t.TotalSize = t.FileSize
		}
	case status.Pending:
		if f.ErrorMessage == "" {
			t.ErrorMessage = ""
		}
	}
}

// ApplyProgress records transfer progress, keeping downloaded <= total once total is known.
func (t *Task) ApplyProgress(progress float64, downloaded, total int64, now time.Time) {
	if total > 0 && downloaded > total {
		total = downloaded
	}

	t.Progress = progress
	t.Downloaded = downloaded
	t.TotalSize = total
	t.UpdatedAt = now
}
