// Package proxy performs outbound HTTP calls on behalf of plugins. Every call goes through
// the platform session, one global throttle, a TTL cache for GETs and block detection.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/NamanBalaji/tunedl/internal/capability"
	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/session"
	httpclient "github.com/NamanBalaji/tunedl/pkg/http"
)

const (
	defaultRequestDelay = 5 * time.Second
	defaultCacheTTL     = 5 * time.Minute
	defaultTimeout      = 15 * time.Second
	maxBodySize         = 32 << 20
)

// Options is the per-call request description supplied by a plugin.
type Options struct {
	Method  string
	Headers map[string]string
	// Body is sent as is when it is a string or []byte and JSON encoded otherwise.
	Body any
	// Form is sent url-encoded when Body is nil.
	Form    map[string]any
	Binary  bool
	Timeout time.Duration
}

// Response is what the plugin sees. Body holds decoded JSON when the payload parses,
// the text otherwise, and nil for binary responses.
type Response struct {
	StatusCode        int
	Headers           map[string]string
	Body              any
	Raw               []byte
	Blocked           bool
	SuspectedFragment bool
	FromCache         bool
}

func (r *Response) clone() *Response {
	c := *r
	c.Headers = make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		c.Headers[k] = v
	}
	c.Raw = append([]byte(nil), r.Raw...)

	return &c
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type Config struct {
	RequestDelay time.Duration
	CacheTTL     time.Duration
	DisableCache bool
	Timeout      time.Duration
	Endpoints    []string
}

// State is the shared mutable state of the proxy. It is built once and handed to
// every component that needs it.
type State struct {
	Sessions  *session.Store
	Cache     *Cache
	Throttle  *Throttle
	Endpoints *Rotator
}

func NewState(cfg Config) *State {
	delay := cfg.RequestDelay
	if delay < 0 {
		delay = 0
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &State{
		Sessions:  session.NewStore(),
		Cache:     NewCache(ttl),
		Throttle:  NewThrottle(delay),
		Endpoints: NewRotator(cfg.Endpoints),
	}
}

// FragmentPolicy is called for every response flagged as a suspected fragment.
type FragmentPolicy func(rawURL string, resp *Response)

type Proxy struct {
	state        *State
	client       *httpclient.Client
	timeout      time.Duration
	disableCache bool

	// Jitter returns the pause before the single local retry.
	Jitter func() time.Duration
	// OnFragment is the policy hook for suspected truncated fragments. Nil means log only.
	OnFragment FragmentPolicy
}

func New(client *httpclient.Client, state *State, cfg Config) *Proxy {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Proxy{
		state:        state,
		client:       client,
		timeout:      timeout,
		disableCache: cfg.DisableCache,
		Jitter:       defaultJitter,
	}
}

func defaultJitter() time.Duration {
	return time.Second + rand.N(2*time.Second)
}

func randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", 1+rand.IntN(223), rand.IntN(256), rand.IntN(256), 1+rand.IntN(254))
}

func (p *Proxy) CurrentEndpoint() string {
	return p.state.Endpoints.Current()
}

func (p *Proxy) ClearCache() {
	p.state.Cache.Clear()
	logger.Infof("Proxy cache cleared")
}

// Request dispatches rawURL on behalf of a plugin.
func (p *Proxy) Request(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	platform := session.PlatformFor(rawURL)
	sess := p.state.Sessions.Get(platform)
	key := cacheKey(method, rawURL)
	cacheable := method == http.MethodGet && !p.disableCache && !opts.Binary

	if cacheable {
		if resp, ok := p.state.Cache.Get(key); ok {
			logger.Debugf("Cache hit for %s", rawURL)
			resp.FromCache = true
			return resp, nil
		}
	}

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, errors.NewHandlerError(rawURL, err)
	}

	if err := p.state.Throttle.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.dispatch(ctx, method, rawURL, sess, opts, body, contentType)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		logger.Warnf("Request to %s failed, retrying once: %v", rawURL, err)

		if err := sleep(ctx, p.Jitter()); err != nil {
			return nil, err
		}

		if session.IPSensitive(platform) {
			sess.SetHeader("X-Real-IP", randomIP())
		}

		resp, err = p.dispatch(ctx, method, rawURL, sess, opts, body, contentType)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			next := p.state.Endpoints.Advance()
			logger.Errorf("Request to %s failed after retry, rotated endpoint to %s: %v", rawURL, next, err)

			return nil, errors.NewTransportError(rawURL, err, 0)
		}
	}

	if resp.Blocked {
		p.state.Cache.Delete(key)
		next := p.state.Endpoints.Advance()
		logger.Warnf("Block detected for %s (platform %s), rotated endpoint to %s", rawURL, platform, next)

		return resp, nil
	}

	if resp.SuspectedFragment {
		logger.Warnf("Suspected truncated fragment from %s (%d bytes)", rawURL, len(resp.Raw))
		if p.OnFragment != nil {
			p.OnFragment(rawURL, resp)
		}
	}

	if cacheable && resp.OK() && resp.Body != nil {
		p.state.Cache.Put(key, resp)
	}

	return resp, nil
}

func (p *Proxy) dispatch(ctx context.Context, method, rawURL string, sess *session.Session, opts Options, body []byte, contentType string) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := requestHeaders(sess.Snapshot(), opts.Headers, contentType)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpResp, err := p.client.Send(ctx, method, rawURL, headers, reader)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, httpclient.ClassifyError(err)
	}

	if cookies := httpResp.Cookies(); len(cookies) > 0 {
		merged := make(map[string]string, len(cookies))
		for _, c := range cookies {
			merged[c.Name] = c.Value
		}
		sess.MergeCookies(merged)
	}

	sess.Touch()

	if enc := httpResp.Header.Get("Content-Encoding"); enc != "" {
		decoded, err := capability.DecodeContent(enc, raw)
		if err != nil {
			logger.Warnf("Failed to decode %s body from %s: %v", enc, rawURL, err)
		} else {
			raw = decoded
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    flattenHeaders(httpResp.Header),
		Raw:        raw,
	}

	if opts.Binary || isBinaryType(httpResp.Header.Get("Content-Type")) {
		resp.SuspectedFragment = IsSuspectedFragment(raw)
		return resp, nil
	}

	resp.Body = decodeBody(raw)
	resp.Blocked = IsBlocked(resp.Body)

	return resp, nil
}

func requestHeaders(snap session.Snapshot, extra map[string]string, contentType string) map[string]string {
	headers := make(map[string]string, len(snap.Headers)+len(extra)+3)
	for k, v := range snap.Headers {
		headers[textproto.CanonicalMIMEHeaderKey(k)] = v
	}

	if session.AJAXPlatform(snap.Platform) {
		headers["X-Requested-With"] = "XMLHttpRequest"
	}

	if session.IPSensitive(snap.Platform) {
		if _, ok := headers["X-Real-Ip"]; !ok {
			headers["X-Real-Ip"] = randomIP()
		}
	}

	if contentType != "" {
		headers["Content-Type"] = contentType
	}

	for k, v := range extra {
		headers[textproto.CanonicalMIMEHeaderKey(k)] = v
	}

	if cookie := snap.CookieHeader(); cookie != "" {
		if own := headers["Cookie"]; own != "" {
			headers["Cookie"] = own + "; " + cookie
		} else {
			headers["Cookie"] = cookie
		}
	}

	return headers
}

func encodeBody(opts Options) ([]byte, string, error) {
	switch b := opts.Body.(type) {
	case nil:
	case string:
		return []byte(b), "application/json", nil
	case []byte:
		return b, "application/octet-stream", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, "application/json", nil
	}

	if len(opts.Form) > 0 {
		values := url.Values{}
		for k, v := range opts.Form {
			values.Set(k, fmt.Sprint(v))
		}
		return []byte(values.Encode()), "application/x-www-form-urlencoded", nil
	}

	return nil, "", nil
}

func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}

	return string(raw)
}

func isBinaryType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "application/octet-stream")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	return out
}
