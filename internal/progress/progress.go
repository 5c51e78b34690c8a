// Package progress measures transfer progress and speed.
package progress

import (
	"sync"
	"time"
)

// DefaultWindow is how far back the speed estimate looks.
const DefaultWindow = 3 * time.Second

// Snapshot is a point-in-time view of a transfer.
type Snapshot struct {
	Downloaded int64
	TotalSize  int64 // 0 while unknown
	Percent    int
	SpeedBPS   int64
	ETA        time.Duration
}

type sample struct {
	t     time.Time
	bytes int64
}

// Meter tracks bytes written by one transfer and derives a speed from a sliding window.
type Meter struct {
	mu         sync.Mutex
	window     time.Duration
	history    []sample
	downloaded int64
	total      int64

	now func() time.Time
}

// NewMeter starts a meter at offset bytes already on disk. total is 0 when unknown.
func NewMeter(offset, total int64) *Meter {
	m := &Meter{window: DefaultWindow, downloaded: offset, total: total, now: time.Now}
	m.history = append(m.history, sample{t: m.now(), bytes: offset})

	return m
}

// Add records n more bytes and returns the updated snapshot.
func (m *Meter) Add(n int64) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloaded += n

	now := m.now()
	m.history = append(m.history, sample{t: now, bytes: m.downloaded})

	// Keep one sample older than the window so the estimate spans all of it.
	cutoff := now.Add(-m.window)
	for len(m.history) > 2 && m.history[1].t.Before(cutoff) {
		m.history = m.history[1:]
	}

	return m.snapshot(now)
}

func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshot(m.now())
}

func (m *Meter) snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Downloaded: m.downloaded,
		TotalSize:  m.total,
		Percent:    Percent(m.downloaded, m.total),
	}

	if len(m.history) >= 2 {
		oldest := m.history[0]
		if elapsed := now.Sub(oldest.t).Seconds(); elapsed > 0 {
			s.SpeedBPS = int64(float64(m.downloaded-oldest.bytes) / elapsed)
		}
	}

	if s.SpeedBPS > 0 && m.total > m.downloaded {
		s.ETA = time.Duration(float64(m.total-m.downloaded)/float64(s.SpeedBPS)) * time.Second
	}

	return s
}

// Percent returns the whole percentage of total reached by downloaded, 0 when total is
// unknown and never more than 100.
func Percent(downloaded, total int64) int {
	if total <= 0 || downloaded <= 0 {
		return 0
	}

	if downloaded >= total {
		return 100
	}

	return int(downloaded * 100 / total)
}
