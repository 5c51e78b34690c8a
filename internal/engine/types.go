package engine

import (
	"context"
	"time"

	"github.com/NamanBalaji/tunedl/internal/music"
	"github.com/NamanBalaji/tunedl/internal/status"
)

// Config contains download scheduler configuration
type Config struct {
	DownloadDir       string
	MaxConcurrent     int
	RetryLimit        int           // Failed attempts allowed before a task is marked failed
	RetryDelay        time.Duration // Fixed delay before a retried task becomes eligible again
	InactivityTimeout time.Duration // A transfer with no bytes for this long is aborted
	RateLimit         int64         // Bytes/sec across all transfers, 0 = unlimited
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		DownloadDir:       ".",
		MaxConcurrent:     3,
		RetryLimit:        3,
		RetryDelay:        3 * time.Second,
		InactivityTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.DownloadDir == "" {
		c.DownloadDir = def.DownloadDir
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = def.InactivityTimeout
	}

	return c
}

// Resolver turns a song into a playable URL through the plugin for source.
type Resolver interface {
	ResolveURL(ctx context.Context, source string, song music.Song, quality string) (string, error)
}

// EnqueueStatus is the outcome of Enqueue.
type EnqueueStatus string

const (
	EnqueueExists  EnqueueStatus = "exists"  // file already on disk, no task created
	EnqueueQueued  EnqueueStatus = "queued"  // an equivalent task is already waiting
	EnqueuePending EnqueueStatus = "pending" // new task created
)

// Stats aggregates task counts and bytes per status plus the live scheduler state.
type Stats struct {
	Counts        map[status.Status]int   `json:"counts"`
	Bytes         map[status.Status]int64 `json:"bytes"`
	QueueDepth    int                     `json:"queueDepth"`
	Active        int                     `json:"active"`
	MaxConcurrent int                     `json:"maxConcurrent"`
}
