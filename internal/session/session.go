// Package session keeps per-platform request state shared by every plugin:
// accumulated cookies, default headers and the time of last activity.
package session

import (
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

const userAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"

// Session is the mutable state of one platform. It is never replaced, only mutated.
type Session struct {
	mu          sync.RWMutex
	platform    string
	cookies     map[string]string
	headers     map[string]string
	lastUpdated time.Time
}

// Snapshot is a consistent copy of a session taken for a single request.
type Snapshot struct {
	Platform    string
	Headers     map[string]string
	Cookies     map[string]string
	LastUpdated time.Time
}

// CookieHeader renders the cookies as a Cookie header value, sorted by name.
func (s Snapshot) CookieHeader() string {
	if len(s.Cookies) == 0 {
		return ""
	}

	names := make([]string, 0, len(s.Cookies))
	for n := range s.Cookies {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+"="+s.Cookies[n])
	}

	return strings.Join(parts, "; ")
}

func newSession(platform string) *Session {
	s := &Session{
		platform: platform,
		cookies:  make(map[string]string),
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"Cache-Control":   "no-cache",
			"Referer":         Referer(platform),
		},
		lastUpdated: time.Now(),
	}

	if platform != PlatformDefault {
		s.headers["Origin"] = strings.TrimSuffix(Referer(platform), "/")
	}

	return s
}

// Snapshot copies the session's headers and cookies.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Platform:    s.platform,
		Headers:     maps.Clone(s.headers),
		Cookies:     maps.Clone(s.cookies),
		LastUpdated: s.lastUpdated,
	}
}

// MergeCookies stores cookies, last write wins per name. An empty value deletes the cookie.
func (s *Session) MergeCookies(cookies map[string]string) {
	if len(cookies) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, value := range cookies {
		if value == "" {
			delete(s.cookies, name)
			continue
		}
		s.cookies[name] = value
	}

	s.lastUpdated = time.Now()
}

// SetHeader sets a default header sent with every request to the platform.
func (s *Session) SetHeader(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.headers[name] = value
	s.lastUpdated = time.Now()
}

// Touch records activity without changing state.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUpdated = time.Now()
	s.mu.Unlock()
}

// Store holds one lazily created Session per platform tag.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the platform's session, creating it on first use.
func (st *Store) Get(platform string) *Session {
	if platform == "" {
		platform = PlatformDefault
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[platform]
	if !ok {
		s = newSession(platform)
		st.sessions[platform] = s
	}

	return s
}

// ForURL is Get(PlatformFor(rawURL)).
func (st *Store) ForURL(rawURL string) *Session {
	return st.Get(PlatformFor(rawURL))
}

// Platforms lists the tags that currently have a session.
func (st *Store) Platforms() []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]string, 0, len(st.sessions))
	for p := range st.sessions {
		out = append(out, p)
	}
	sort.Strings(out)

	return out
}
