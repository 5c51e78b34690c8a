package errors_test

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/NamanBalaji/tunedl/internal/errors"
)

func TestErrorString(t *testing.T) {
	base := stdErrors.New("underlying error")

	e := errors.NewHandlerError("kw.search", base)
	expected := "[HANDLER] kw.search: underlying error"
	if e.Error() != expected {
		t.Errorf("expected %q, got %q", expected, e.Error())
	}

	e2 := errors.NewTransportError("http://example.com", stdErrors.New("server error"), 502)
	expected2 := "[TRANSPORT] http://example.com (status: 502): server error"
	if e2.Error() != expected2 {
		t.Errorf("expected %q, got %q", expected2, e2.Error())
	}

	e3 := errors.NewUnknownPlugin("")
	if e3.Error() != "[UNKNOWN_PLUGIN] unknown plugin" {
		t.Errorf("unexpected message %q", e3.Error())
	}
}

func TestErrorIsMatchesSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"sandbox timeout", errors.NewSandboxTimeout("p", nil), errors.ErrSandboxTimeout},
		{"missing handler", errors.NewMissingHandler("p", nil), errors.ErrMissingHandler},
		{"unknown plugin", errors.NewUnknownPlugin("p"), errors.ErrUnknownPlugin},
		{"disabled", errors.NewPluginDisabled("p"), errors.ErrPluginDisabled},
		{"handler", errors.NewHandlerError("p", stdErrors.New("boom")), errors.ErrHandler},
		{"resolution", errors.NewResolutionError("p", nil), errors.ErrResolution},
		{"transport", errors.NewTransportError("u", stdErrors.New("reset"), 0), errors.ErrTransport},
		{"block", errors.NewBlockDetected("u", nil), errors.ErrBlockDetected},
		{"retry limit", errors.NewRetryLimitExceeded("t", nil), errors.ErrRetryLimitExceeded},
		{"io", errors.NewIOError("f", stdErrors.New("disk full")), errors.ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("expected %v to match sentinel %v", wrapped, tt.sentinel)
			}
		})
	}

	if errors.Is(errors.NewHandlerError("p", nil), errors.ErrTransport) {
		t.Error("handler error must not match transport sentinel")
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	base := stdErrors.New("connection reset")
	e := errors.NewTransportError("u", base, 0)
	if !errors.Is(e, base) {
		t.Errorf("expected cause %v to be reachable", base)
	}
}

func TestIsRetryable(t *testing.T) {
	if errors.IsRetryable(nil) {
		t.Error("nil must not be retryable")
	}
	if errors.IsRetryable(stdErrors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
	if !errors.IsRetryable(fmt.Errorf("wrap: %w", errors.NewTransportError("u", nil, 503))) {
		t.Error("transport errors are retryable")
	}
	if errors.IsRetryable(errors.NewRetryLimitExceeded("t", nil)) {
		t.Error("retry limit exceeded is terminal")
	}
}

func TestKindOf(t *testing.T) {
	if k := errors.KindOf(errors.NewResolutionError("kw", nil)); k != errors.KindResolution {
		t.Errorf("expected %s, got %s", errors.KindResolution, k)
	}
	if k := errors.KindOf(stdErrors.New("x")); k != errors.KindUnknown {
		t.Errorf("expected %s, got %s", errors.KindUnknown, k)
	}
}
