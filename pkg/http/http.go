package http

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/NamanBalaji/tunedl/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 100
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 16
	responseHeaderTimeout = 30 * time.Second

	DefaultUserAgent = "tunedl/1.0"
)

type Client struct {
	*http.Client
}

// NewClient creates a new HTTP client with custom transport settings.
// Compression is left to the caller so that byte offsets stay meaningful for ranged transfers.
func NewClient() *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       maxConnsPerHost,
	}

	return &Client{
		&http.Client{
			Transport: transport,
		},
	}
}

func generateRequest(ctx context.Context, method, urlStr string, headers map[string]string, body io.Reader) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestCreation, err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Send performs a request and returns the response whatever its status.
// Only transport failures are reported as errors, already classified.
func (c *Client) Send(ctx context.Context, method, urlStr string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := generateRequest(ctx, method, urlStr, headers, body)
	if err != nil {
		logger.Errorf("Failed to create %s request for %s: %v", method, urlStr, err)
		return nil, err
	}

	logger.Debugf("Sending %s request to %s", method, urlStr)

	resp, err := c.Do(req)
	if err != nil {
		logger.Debugf("%s request failed for %s: %v", method, urlStr, err)
		return nil, ClassifyError(err)
	}

	logger.Debugf("%s response for %s: status=%d", method, urlStr, resp.StatusCode)

	return resp, nil
}

// GetFrom performs a GET that resumes at offset. A Range header is only sent when offset > 0.
// 200, 206 and 416 responses are returned to the caller; other error statuses are classified.
func (c *Client) GetFrom(ctx context.Context, urlStr string, offset int64, headers map[string]string) (*http.Response, error) {
	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}

	if offset > 0 {
		h["Range"] = fmt.Sprintf("bytes=%d-", offset)
		logger.Debugf("Set Range header: bytes=%d- for %s", offset, urlStr)
	}

	resp, err := c.Send(ctx, http.MethodGet, urlStr, h, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		return resp, nil
	case resp.StatusCode >= http.StatusBadRequest:
		resp.Body.Close()
		logger.Errorf("GET request returned error status %d for %s", resp.StatusCode, urlStr)
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	return resp, nil
}

// IdleReader fails a body read that makes no progress within the timeout.
// On expiry it calls cancel, which is expected to abort the underlying request.
type IdleReader struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer

	mu      sync.Mutex
	expired bool
}

func NewIdleReader(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *IdleReader {
	r := &IdleReader{body: body, timeout: timeout}
	r.timer = time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.expired = true
		r.mu.Unlock()
		cancel()
	})

	return r
}

func (r *IdleReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)

	r.mu.Lock()
	expired := r.expired
	r.mu.Unlock()

	if expired {
		return n, ErrIdleTimeout
	}

	if n > 0 {
		r.timer.Reset(r.timeout)
	}

	return n, err
}

func (r *IdleReader) Close() error {
	r.timer.Stop()
	return r.body.Close()
}
