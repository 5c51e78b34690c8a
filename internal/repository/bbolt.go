package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/tunedl/internal/status"
	"github.com/NamanBalaji/tunedl/internal/task"
)

const (
	tasksBucket    = "tasks"
	pluginsBucket  = "plugins"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

var (
	// ErrTaskNotFound is returned when a task cannot be found
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskExists is returned when inserting a task whose id is already stored
	ErrTaskExists     = errors.New("task already exists")
	ErrPluginNotFound = errors.New("plugin not found")
)

// BboltRepository implements TaskStore and PluginStore on a single bbolt file.
// Every record is stored as JSON under its id.
type BboltRepository struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db:  db,
		now: time.Now,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{tasksBucket, pluginsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		if err := meta.Put([]byte("schema_version"), versionBytes); err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

func bucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket not found: %s", name)
	}

	return b, nil
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := b.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}

// Insert persists a new task.
func (r *BboltRepository) Insert(t *task.Task) error {
	if t == nil {
		return errors.New("cannot save nil task")
	}

	if t.ID == uuid.Nil {
		return errors.New("task ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, tasksBucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(t.ID.String())) != nil {
			return ErrTaskExists
		}

		return putJSON(b, t.ID.String(), t)
	})
}

// modify loads a task, applies fn and writes it back in one transaction.
func (r *BboltRepository) modify(id uuid.UUID, fn func(t *task.Task)) error {
	if id == uuid.Nil {
		return errors.New("task ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, tasksBucket)
		if err != nil {
			return err
		}

		data := b.Get([]byte(id.String()))
		if data == nil {
			return ErrTaskNotFound
		}

		t := &task.Task{}
		if err := json.Unmarshal(data, t); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}

		fn(t)

		return putJSON(b, id.String(), t)
	})
}

func (r *BboltRepository) UpdateStatus(id uuid.UUID, st status.Status, f task.StatusFields) error {
	if !st.Valid() {
		return fmt.Errorf("invalid status %q", st)
	}

	return r.modify(id, func(t *task.Task) {
		t.Apply(st, f, r.now())
	})
}

func (r *BboltRepository) UpdateProgress(id uuid.UUID, progress float64, downloaded, total int64) error {
	return r.modify(id, func(t *task.Task) {
		t.ApplyProgress(progress, downloaded, total, r.now())
	})
}

// Get retrieves a task by ID
func (r *BboltRepository) Get(id uuid.UUID) (*task.Task, error) {
	if id == uuid.Nil {
		return nil, errors.New("task ID cannot be empty")
	}

	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, tasksBucket)
		if err != nil {
			return err
		}

		// bbolt memory is only valid inside the transaction
		v := b.Get([]byte(id.String()))
		if v == nil {
			return ErrTaskNotFound
		}
		data = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	t := &task.Task{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return t, nil
}

func (r *BboltRepository) List(filter []status.Status, limit int) ([]*task.Task, error) {
	var tasks []*task.Task

	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, tasksBucket)
		if err != nil {
			return err
		}

		return b.ForEach(func(_, v []byte) error {
			t := &task.Task{}
			if err := json.Unmarshal(v, t); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}

			if len(filter) == 0 || slices.Contains(filter, t.Status) {
				tasks = append(tasks, t)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

// Delete removes a task
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("task ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, tasksBucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(id.String())) == nil {
			return ErrTaskNotFound
		}

		return b.Delete([]byte(id.String()))
	})
}

// SavePlugin inserts or replaces a plugin script, keeping the original creation time.
func (r *BboltRepository) SavePlugin(p *PluginRecord) error {
	if p == nil || p.ID == "" {
		return errors.New("plugin ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, pluginsBucket)
		if err != nil {
			return err
		}

		now := r.now()
		rec := *p
		rec.UpdatedAt = now
		rec.CreatedAt = now

		if old := b.Get([]byte(p.ID)); old != nil {
			var prev PluginRecord
			if err := json.Unmarshal(old, &prev); err == nil && !prev.CreatedAt.IsZero() {
				rec.CreatedAt = prev.CreatedAt
			}
		}

		return putJSON(b, rec.ID, &rec)
	})
}

// Plugins returns every stored plugin, oldest first.
func (r *BboltRepository) Plugins() ([]*PluginRecord, error) {
	var out []*PluginRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, pluginsBucket)
		if err != nil {
			return err
		}

		return b.ForEach(func(_, v []byte) error {
			p := &PluginRecord{}
			if err := json.Unmarshal(v, p); err != nil {
				return fmt.Errorf("failed to unmarshal plugin: %w", err)
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (r *BboltRepository) SetPluginEnabled(id string, enabled bool) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, pluginsBucket)
		if err != nil {
			return err
		}

		data := b.Get([]byte(id))
		if data == nil {
			return ErrPluginNotFound
		}

		p := &PluginRecord{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("failed to unmarshal plugin: %w", err)
		}

		p.Enabled = enabled
		p.UpdatedAt = r.now()

		return putJSON(b, id, p)
	})
}

func (r *BboltRepository) DeletePlugin(id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, pluginsBucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(id)) == nil {
			return ErrPluginNotFound
		}

		return b.Delete([]byte(id))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
