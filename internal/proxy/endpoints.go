package proxy

import "sync"

var DefaultEndpoints = []string{
	"https://lxmusicapi.onrender.com",
	"https://api.lxmusic.net",
	"https://music-api.example.com",
}

// Rotator is a rotation pointer over a static list of fallback API endpoints.
type Rotator struct {
	mu        sync.Mutex
	endpoints []string
	idx       int
}

func NewRotator(endpoints []string) *Rotator {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}

	return &Rotator{endpoints: append([]string(nil), endpoints...)}
}

func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.endpoints[r.idx]
}

// Advance moves to the next endpoint and returns it.
func (r *Rotator) Advance() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.idx = (r.idx + 1) % len(r.endpoints)

	return r.endpoints[r.idx]
}
