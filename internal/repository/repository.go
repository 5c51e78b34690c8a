package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/tunedl/internal/status"
	"github.com/NamanBalaji/tunedl/internal/task"
)

// TaskStore is the single source of truth for download task state.
type TaskStore interface {
	Insert(t *task.Task) error
	UpdateStatus(id uuid.UUID, st status.Status, f task.StatusFields) error
	UpdateProgress(id uuid.UUID, progress float64, downloaded, total int64) error
	Get(id uuid.UUID) (*task.Task, error)
	// List returns tasks newest first. An empty filter matches every status; limit <= 0 means no limit.
	List(filter []status.Status, limit int) ([]*task.Task, error)
	Delete(id uuid.UUID) error
}

// PluginRecord is a persisted plugin script.
type PluginRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Script    string    `json:"script"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PluginStore interface {
	SavePlugin(p *PluginRecord) error
	Plugins() ([]*PluginRecord, error)
	SetPluginEnabled(id string, enabled bool) error
	DeletePlugin(id string) error
}
