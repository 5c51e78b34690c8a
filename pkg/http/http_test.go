package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpmod "github.com/NamanBalaji/tunedl/pkg/http"
)

func TestSendReturnsErrorStatuses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing custom header")
		}
		if r.Header.Get("User-Agent") != "custom" {
			t.Errorf("expected per-call User-Agent to override default, got %q", r.Header.Get("User-Agent"))
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	c := httpmod.NewClient()
	resp, err := c.Send(context.Background(), http.MethodPost, ts.URL, map[string]string{"X-Test": "1", "User-Agent": "custom"}, strings.NewReader("ping"))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d; want %d", resp.StatusCode, http.StatusTeapot)
	}

	b, _ := io.ReadAll(resp.Body)
	if string(b) != "ping" {
		t.Errorf("body = %q; want ping", b)
	}
}

func TestSendInvalidURL(t *testing.T) {
	_, err := httpmod.NewClient().Send(context.Background(), http.MethodGet, "://bad", nil, nil)
	if !errors.Is(err, httpmod.ErrRequestCreation) {
		t.Errorf("err = %v; want ErrRequestCreation", err)
	}
}

func TestGetFromRange(t *testing.T) {
	var gotRange string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/done":
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		default:
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte("tail"))
		}
	}))
	defer ts.Close()

	c := httpmod.NewClient()

	resp, err := c.GetFrom(context.Background(), ts.URL+"/file", 0, nil)
	if err != nil {
		t.Fatalf("GetFrom: %v", err)
	}
	resp.Body.Close()
	if gotRange != "" {
		t.Errorf("Range = %q; want none for offset 0", gotRange)
	}

	resp, err = c.GetFrom(context.Background(), ts.URL+"/file", 1024, nil)
	if err != nil {
		t.Fatalf("GetFrom: %v", err)
	}
	resp.Body.Close()
	if gotRange != "bytes=1024-" {
		t.Errorf("Range = %q; want bytes=1024-", gotRange)
	}

	resp, err = c.GetFrom(context.Background(), ts.URL+"/done", 10, nil)
	if err != nil {
		t.Fatalf("416 with offset must be returned: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("status = %d; want 416", resp.StatusCode)
	}

	_, err = c.GetFrom(context.Background(), ts.URL+"/missing", 0, nil)
	if !errors.Is(err, httpmod.ErrResourceNotFound) {
		t.Errorf("err = %v; want ErrResourceNotFound", err)
	}
}

type stallingBody struct {
	ctx context.Context
}

func (s *stallingBody) Read(p []byte) (int, error) {
	<-s.ctx.Done()
	return 0, s.ctx.Err()
}

func (s *stallingBody) Close() error { return nil }

func TestIdleReaderExpires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := httpmod.NewIdleReader(&stallingBody{ctx: ctx}, 20*time.Millisecond, cancel)
	defer r.Close()

	_, err := r.Read(make([]byte, 8))
	if !errors.Is(err, httpmod.ErrIdleTimeout) {
		t.Errorf("err = %v; want ErrIdleTimeout", err)
	}
}

func TestIdleReaderPassesData(t *testing.T) {
	r := httpmod.NewIdleReader(io.NopCloser(strings.NewReader("payload")), time.Second, func() {})
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(b) != "payload" {
		t.Errorf("got %q", b)
	}
}
