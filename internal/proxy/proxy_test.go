package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tunedl/internal/capability"
	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/session"
	httpclient "github.com/NamanBalaji/tunedl/pkg/http"
)

func newTestProxy(t *testing.T) (*Proxy, *State) {
	t.Helper()

	cfg := Config{RequestDelay: 0, CacheTTL: time.Minute, Endpoints: []string{"https://a.example", "https://b.example"}}
	state := NewState(cfg)
	p := New(httpclient.NewClient(), state, cfg)
	p.Jitter = func() time.Duration { return 0 }

	return p, state
}

func TestRequestAppliesSessionState(t *testing.T) {
	var seenCookie, seenReferer, seenUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCookie = r.Header.Get("Cookie")
		seenReferer = r.Header.Get("Referer")
		seenUA = r.Header.Get("User-Agent")
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":0}`)
	}))
	defer ts.Close()

	p, state := newTestProxy(t)

	resp, err := p.Request(context.Background(), ts.URL+"/first", Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"code": float64(0)}, resp.Body)
	assert.Empty(t, seenCookie)
	assert.Equal(t, session.Referer(session.PlatformDefault), seenReferer)
	assert.Contains(t, seenUA, "iPhone")

	_, err = p.Request(context.Background(), ts.URL+"/second", Options{Headers: map[string]string{"user-agent": "plugin-ua"}})
	require.NoError(t, err)
	assert.Equal(t, "sid=abc", seenCookie)
	assert.Equal(t, "plugin-ua", seenUA)

	assert.Equal(t, "abc", state.Sessions.Get(session.PlatformDefault).Snapshot().Cookies["sid"])
}

func TestGetIsCachedWithinTTL(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"list":[1,2]}`)
	}))
	defer ts.Close()

	p, state := newTestProxy(t)
	now := time.Now()
	state.Cache.now = func() time.Time { return now }

	first, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.EqualValues(t, 1, hits.Load())

	now = now.Add(2 * time.Minute)

	third, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.EqualValues(t, 2, hits.Load())

	p.ClearCache()
	assert.Zero(t, state.Cache.Len())

	fourth, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.False(t, fourth.FromCache)
	assert.EqualValues(t, 3, hits.Load())
}

func TestNonGetIsNeverCached(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `ok`)
	}))
	defer ts.Close()

	p, state := newTestProxy(t)

	for range 2 {
		resp, err := p.Request(context.Background(), ts.URL, Options{Method: "post"})
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Body)
	}

	assert.EqualValues(t, 2, hits.Load())
	assert.Zero(t, state.Cache.Len())
}

func TestBlockedResponseEvictsAndRotates(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"code":403,"message":"your IP is blocked"}`)
	}))
	defer ts.Close()

	p, state := newTestProxy(t)
	require.Equal(t, "https://a.example", p.CurrentEndpoint())

	resp, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err, "a block never fails the caller outright")
	assert.True(t, resp.Blocked)
	assert.Equal(t, "https://b.example", p.CurrentEndpoint())
	assert.Zero(t, state.Cache.Len())

	_, err = p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, "https://a.example", p.CurrentEndpoint())
}

func TestCacheDropsEntryThatLooksBlocked(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put("GET x", &Response{StatusCode: 200, Body: map[string]any{"msg": "Blocked"}})

	_, ok := c.Get("GET x")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}

	conn, _, err := hj.Hijack()
	if err == nil {
		conn.Close()
	}
}

func TestTransportFailureIsRetriedOnce(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			dropConnection(w)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer ts.Close()

	p, _ := newTestProxy(t)

	resp, err := p.Request(context.Background(), ts.URL, Options{Method: http.MethodPost})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, resp.Body)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, "https://a.example", p.CurrentEndpoint())
}

func TestTransportFailureAfterRetryRotates(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		dropConnection(w)
	}))
	defer ts.Close()

	p, _ := newTestProxy(t)

	_, err := p.Request(context.Background(), ts.URL, Options{Method: http.MethodPost})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, "https://b.example", p.CurrentEndpoint())
}

func TestRequestBodies(t *testing.T) {
	type echo struct {
		ContentType string `json:"contentType"`
		Body        string `json:"body"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(echo{ContentType: r.Header.Get("Content-Type"), Body: string(b)})
	}))
	defer ts.Close()

	p, _ := newTestProxy(t)

	tests := []struct {
		name string
		opts Options
		want echo
	}{
		{"json object", Options{Method: "POST", Body: map[string]any{"a": 1}}, echo{"application/json", `{"a":1}`}},
		{"raw string", Options{Method: "POST", Body: "x=1"}, echo{"application/json", "x=1"}},
		{"form", Options{Method: "POST", Form: map[string]any{"q": "a b"}}, echo{"application/x-www-form-urlencoded", "q=a+b"}},
		{"caller content type", Options{Method: "POST", Body: "x=1", Headers: map[string]string{"content-type": "text/plain"}}, echo{"text/plain", "x=1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.Request(context.Background(), ts.URL, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"contentType": tt.want.ContentType, "body": tt.want.Body}, resp.Body)
		})
	}
}

func TestBinaryFragmentIsFlagged(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0x49, 0x44, 0x33, 0x04, 0x00})
	}))
	defer ts.Close()

	p, state := newTestProxy(t)

	var flagged string
	p.OnFragment = func(rawURL string, _ *Response) { flagged = rawURL }

	resp, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.True(t, resp.SuspectedFragment)
	assert.Nil(t, resp.Body)
	assert.Len(t, resp.Raw, 5)
	assert.Equal(t, ts.URL, flagged)
	assert.Zero(t, state.Cache.Len(), "binary payloads are not cached")
}

func TestCompressedBodyIsDecoded(t *testing.T) {
	payload, err := capability.Gzip([]byte(`{"data":"x"}`))
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	p, _ := newTestProxy(t)

	resp, err := p.Request(context.Background(), ts.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": "x"}, resp.Body)
	assert.Equal(t, "gzip", resp.Headers["content-encoding"])
}

func TestRequestHeadersPerPlatform(t *testing.T) {
	st := session.NewStore()

	wy := requestHeaders(st.Get(session.PlatformWY).Snapshot(), nil, "")
	assert.NotEmpty(t, wy["X-Real-Ip"])
	assert.NotContains(t, wy, "X-Requested-With")

	tx := requestHeaders(st.Get(session.PlatformTX).Snapshot(), map[string]string{"cookie": "own=1"}, "")
	assert.Equal(t, "XMLHttpRequest", tx["X-Requested-With"])
	assert.Equal(t, "own=1", tx["Cookie"])

	st.Get(session.PlatformTX).MergeCookies(map[string]string{"uin": "9"})
	tx = requestHeaders(st.Get(session.PlatformTX).Snapshot(), map[string]string{"cookie": "own=1"}, "")
	assert.Equal(t, "own=1; uin=9", tx["Cookie"])
}

func TestThrottleSerializesDispatches(t *testing.T) {
	th := NewThrottle(40 * time.Millisecond)

	start := time.Now()
	for range 3 {
		require.NoError(t, th.Wait(context.Background()))
	}

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestThrottleHonoursContext(t *testing.T) {
	th := NewThrottle(time.Hour)
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, th.Wait(ctx), context.DeadlineExceeded)
}

func TestRotatorWraps(t *testing.T) {
	r := NewRotator(nil)
	assert.Equal(t, DefaultEndpoints[0], r.Current())
	assert.Equal(t, DefaultEndpoints[1], r.Advance())
	assert.Equal(t, DefaultEndpoints[2], r.Advance())
	assert.Equal(t, DefaultEndpoints[0], r.Advance())
}

func TestDetectors(t *testing.T) {
	assert.True(t, IsBlocked(map[string]any{"message": "IP Blocked"}))
	assert.False(t, IsBlocked(map[string]any{"message": "ok"}))
	assert.False(t, IsBlocked("blocked"))

	assert.True(t, IsSuspectedFragment([]byte{0xff, 0xfb, 0x90}))
	assert.False(t, IsSuspectedFragment([]byte("RIFF")))
	assert.False(t, IsSuspectedFragment(append([]byte{0x49, 0x44, 0x33}, make([]byte, 1<<20)...)))
}
