package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMeter(offset, total int64) (*Meter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := &Meter{window: DefaultWindow, downloaded: offset, total: total, now: clock.now}
	m.history = append(m.history, sample{t: clock.now(), bytes: offset})

	return m, clock
}

func TestPercent(t *testing.T) {
	tests := []struct {
		downloaded, total int64
		want              int
	}{
		{0, 100, 0},
		{50, 0, 0},
		{1, 100, 1},
		{199, 1000, 19},
		{999, 1000, 99},
		{1000, 1000, 100},
		{1200, 1000, 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.downloaded, tt.total), "%d/%d", tt.downloaded, tt.total)
	}
}

func TestMeterSpeed(t *testing.T) {
	m, clock := newTestMeter(0, 10_000)

	clock.advance(time.Second)
	s := m.Add(1000)
	assert.Equal(t, int64(1000), s.SpeedBPS)
	assert.Equal(t, 10, s.Percent)
	assert.Equal(t, 9*time.Second, s.ETA)

	clock.advance(time.Second)
	s = m.Add(3000)
	assert.Equal(t, int64(2000), s.SpeedBPS, "averaged over the whole window")
	assert.Equal(t, int64(4000), s.Downloaded)
}

func TestMeterWindowSlides(t *testing.T) {
	m, clock := newTestMeter(0, 0)

	for range 10 {
		clock.advance(time.Second)
		m.Add(100)
	}

	clock.advance(time.Second)
	s := m.Add(10_000)

	// Only the last few seconds count, so the burst dominates.
	assert.Greater(t, s.SpeedBPS, int64(2000))
	assert.Zero(t, s.Percent, "unknown total")
	assert.Zero(t, s.ETA)
}

func TestMeterStartsAtOffset(t *testing.T) {
	m, clock := newTestMeter(500, 1000)

	s := m.Snapshot()
	assert.Equal(t, int64(500), s.Downloaded)
	assert.Equal(t, 50, s.Percent)
	assert.Zero(t, s.SpeedBPS)

	clock.advance(2 * time.Second)
	s = m.Add(500)
	assert.Equal(t, int64(250), s.SpeedBPS, "resumed bytes are not counted as speed")
	assert.Equal(t, 100, s.Percent)
}

func TestNewMeter(t *testing.T) {
	m := NewMeter(10, 20)
	s := m.Snapshot()

	assert.Equal(t, int64(10), s.Downloaded)
	assert.Equal(t, int64(20), s.TotalSize)
}
