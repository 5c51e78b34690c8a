// Package engine schedules song downloads: a FIFO queue feeding a bounded set of
// concurrent transfers, with fixed-delay retries and recovery from the task store.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/events"
	"github.com/NamanBalaji/tunedl/internal/filesystem"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/repository"
	"github.com/NamanBalaji/tunedl/internal/status"
	"github.com/NamanBalaji/tunedl/internal/task"
	httpclient "github.com/NamanBalaji/tunedl/pkg/http"
)

const shutdownTimeout = 30 * time.Second

// Deps are the collaborators the scheduler drives. Store and Resolver are required.
type Deps struct {
	Store    repository.TaskStore
	Resolver Resolver
	Client   *httpclient.Client
	FS       filesystem.FileSystem
	Sink     events.Sink
}

type Scheduler struct {
	mu sync.Mutex

	cfg      Config
	store    repository.TaskStore
	resolver Resolver
	client   *httpclient.Client
	fs       filesystem.FileSystem
	sink     events.Sink
	limiter  *rate.Limiter

	queue   queue
	active  map[uuid.UUID]context.CancelFunc
	retries map[uuid.UUID]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running bool
}

// New creates a scheduler. It does nothing until Start is called.
func New(cfg Config, deps Deps) *Scheduler {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cfg:      cfg,
		store:    deps.Store,
		resolver: deps.Resolver,
		client:   deps.Client,
		fs:       deps.FS,
		sink:     deps.Sink,
		active:   make(map[uuid.UUID]context.CancelFunc),
		retries:  make(map[uuid.UUID]*time.Timer),
	}

	if s.client == nil {
		s.client = httpclient.NewClient()
	}
	if s.fs == nil {
		s.fs = filesystem.NewOSFileSystem()
	}
	if s.sink == nil {
		s.sink = events.NopSink{}
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(int(cfg.RateLimit), chunkSize))
	}

	return s
}

// runTask runs a function in a goroutine tracked by the WaitGroup
func (s *Scheduler) runTask(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Start recovers unfinished tasks from the store and begins scheduling. Tasks that were
// pending, downloading, paused or retrying are forced back to pending and requeued in
// creation order.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.queue = queue{}
	s.running = true
	s.mu.Unlock()

	tasks, err := s.store.List(nil, 0)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	recovered := 0

	s.mu.Lock()
	for _, t := range tasks {
		switch {
		case t.Status.Recoverable():
			if t.Status != status.Pending {
				if err := s.store.UpdateStatus(t.ID, status.Pending, task.StatusFields{}); err != nil {
					logger.Errorf("Failed to requeue task %s: %v", t.ID, err)
					continue
				}
				logger.Infof("Recovered task %s from %s", t.ID, t.Status)
			}
			s.queue.push(t.ID, true)
			recovered++

		case t.Status == status.Completed:
			exists, err := s.fs.FileExists(t.Filepath)
			if err == nil && !exists {
				logger.Warnf("Completed task %s is missing its file %s", t.ID, t.Filepath)
			}
		}
	}
	s.mu.Unlock()

	logger.Infof("Scheduler started: %d task(s) recovered, max concurrent %d", recovered, s.cfg.MaxConcurrent)

	s.tick()

	return nil
}

// Enqueue creates a download task for song unless its file already exists or an
// equivalent task is already waiting.
func (s *Scheduler) Enqueue(song music.Song, quality, source string) (uuid.UUID, EnqueueStatus, error) {
	if quality == "" {
		quality = music.DefaultQuality
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	waiting, err := s.store.List([]status.Status{status.Pending, status.Retrying, status.Downloading}, 0)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to list tasks: %w", err)
	}

	t := task.New(song, quality, source, s.cfg.DownloadDir)

	// A waiting duplicate wins over an existing file: that file may be its partial download.
	for _, w := range waiting {
		if w.SameSong(t) {
			logger.Debugf("Song %s (%s) already queued as %s", song, quality, w.ID)
			return w.ID, EnqueueQueued, nil
		}
	}

	exists, err := s.fs.FileExists(t.Filepath)
	if err != nil {
		return uuid.Nil, "", errors.NewIOError(t.Filepath, err)
	}
	if exists {
		logger.Infof("Skipping %s: %s already exists", song, t.Filepath)
		return uuid.Nil, EnqueueExists, nil
	}

	if err := s.store.Insert(t); err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to save task: %w", err)
	}

	logger.Infof("Enqueued task %s: %s [%s] via %s", t.ID, song, quality, source)

	// Without a running scheduler the task is picked up by recovery on the next Start.
	if s.running {
		s.queue.push(t.ID, true)
		defer s.runTask(s.tick)
	}

	return t.ID, EnqueuePending, nil
}

// tick starts queued tasks while there is a free slot.
func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	for len(s.active) < s.cfg.MaxConcurrent {
		id, ok := s.queue.popReady()
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(s.ctx)
		s.active[id] = cancel

		s.runTask(func() {
			s.process(ctx, id)
		})
	}
}

// process runs one attempt for a task and settles its outcome before freeing the slot.
func (s *Scheduler) process(ctx context.Context, id uuid.UUID) {
	err := s.transfer(ctx, id)

	switch {
	case err == nil:
	case stopped(ctx):
		logger.Infof("Transfer for task %s stopped", id)
	default:
		s.handleFailure(id, err)
	}

	s.mu.Lock()
	if cancel, ok := s.active[id]; ok {
		cancel()
		delete(s.active, id)
	}
	s.mu.Unlock()

	s.tick()
}

// handleFailure either schedules another attempt or marks the task failed.
func (s *Scheduler) handleFailure(id uuid.UUID, cause error) {
	t, err := s.store.Get(id)
	if err != nil {
		logger.Errorf("Task %s failed (%v) and could not be reloaded: %v", id, cause, err)
		return
	}

	if t.RetryCount < s.cfg.RetryLimit {
		n := t.RetryCount + 1
		if err := s.store.UpdateStatus(id, status.Retrying, task.StatusFields{ErrorMessage: cause.Error(), RetryCount: &n}); err != nil {
			logger.Errorf("Failed to mark task %s retrying: %v", id, err)
			return
		}

		logger.Warnf("Task %s failed, retry %d/%d in %s: %v", id, n, s.cfg.RetryLimit, s.cfg.RetryDelay, cause)

		s.mu.Lock()
		if s.running {
			s.queue.push(id, false)
			s.retries[id] = time.AfterFunc(s.cfg.RetryDelay, func() { s.markReady(id) })
		}
		s.mu.Unlock()

		return
	}

	final := errors.NewRetryLimitExceeded(id.String(), cause)
	if err := s.store.UpdateStatus(id, status.Failed, task.StatusFields{ErrorMessage: final.Error()}); err != nil {
		logger.Errorf("Failed to mark task %s failed: %v", id, err)
	}

	logger.Errorf("Task %s failed after %d retries: %v", id, t.RetryCount, cause)
	s.sink.Emit(events.KindFailed, events.Failed{TaskID: id, Error: final.Error()})
}

// markReady ends a retry delay: the task goes back to pending and becomes eligible.
func (s *Scheduler) markReady(id uuid.UUID) {
	s.mu.Lock()
	delete(s.retries, id)

	if !s.running || !s.queue.contains(id) {
		s.mu.Unlock()
		return
	}

	if err := s.store.UpdateStatus(id, status.Pending, task.StatusFields{}); err != nil {
		logger.Errorf("Failed to requeue task %s: %v", id, err)
	}
	s.queue.markReady(id)
	s.mu.Unlock()

	s.tick()
}

// Pause parks a waiting task. A task whose transfer is running cannot be paused.
func (s *Scheduler) Pause(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; ok {
		return ErrTaskActive
	}

	t, err := s.store.Get(id)
	if err != nil {
		return err
	}

	if !t.Status.CanPause() {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, t.Status)
	}

	s.queue.remove(id)
	s.stopRetry(id)

	if err := s.store.UpdateStatus(id, status.Paused, task.StatusFields{}); err != nil {
		return err
	}

	logger.Infof("Paused task %s", id)

	return nil
}

// Resume gives a paused or failed task a fresh set of attempts.
func (s *Scheduler) Resume(id uuid.UUID) error {
	s.mu.Lock()

	t, err := s.store.Get(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if !t.Status.CanResume() {
		s.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, t.Status)
	}

	zero := 0
	if err := s.store.UpdateStatus(id, status.Pending, task.StatusFields{RetryCount: &zero}); err != nil {
		s.mu.Unlock()
		return err
	}

	logger.Infof("Resumed task %s", id)

	running := s.running
	if running {
		s.queue.push(id, true)
	}
	s.mu.Unlock()

	if running {
		s.tick()
	}

	return nil
}

// Delete drops a task from the queue and the store. A running transfer is stopped; any
// partially written file is left on disk.
func (s *Scheduler) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.remove(id)
	s.stopRetry(id)

	if cancel, ok := s.active[id]; ok {
		cancel()
	}

	if err := s.store.Delete(id); err != nil {
		return err
	}

	logger.Infof("Deleted task %s", id)

	return nil
}

func (s *Scheduler) stopRetry(id uuid.UUID) {
	if tm, ok := s.retries[id]; ok {
		tm.Stop()
		delete(s.retries, id)
	}
}

// Task returns the persisted record for id.
func (s *Scheduler) Task(id uuid.UUID) (*task.Task, error) {
	return s.store.Get(id)
}

// Tasks lists tasks newest first, optionally filtered by status.
func (s *Scheduler) Tasks(filter []status.Status, limit int) ([]*task.Task, error) {
	return s.store.List(filter, limit)
}

// Stats returns counts and downloaded bytes per status plus queue depth and active count.
func (s *Scheduler) Stats() (Stats, error) {
	tasks, err := s.store.List(nil, 0)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Counts:        make(map[status.Status]int, len(status.All)),
		Bytes:         make(map[status.Status]int64, len(status.All)),
		MaxConcurrent: s.cfg.MaxConcurrent,
	}

	for _, t := range tasks {
		st.Counts[t.Status]++
		st.Bytes[t.Status] += t.Downloaded
	}

	s.mu.Lock()
	st.QueueDepth = s.queue.len()
	st.Active = len(s.active)
	s.mu.Unlock()

	return st, nil
}

// Shutdown stops scheduling, cancels running transfers between chunk writes and waits
// for them to return. Interrupted tasks stay downloading in the store and are recovered
// with a range resume on the next Start.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	logger.Infof("Starting scheduler shutdown...")

	s.running = false
	s.cancel()

	for id := range s.retries {
		s.stopRetry(id)
	}
	s.mu.Unlock()

	waitChan := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		logger.Infof("All transfers stopped")
	case <-time.After(shutdownTimeout):
		logger.Warnf("Shutdown timed out, some transfers may not have stopped")
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}

	logger.Infof("Scheduler shutdown complete")

	return nil
}
