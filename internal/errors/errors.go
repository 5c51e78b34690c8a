package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type Kind string

const (
	KindSandboxTimeout     Kind = "SANDBOX_TIMEOUT"      // script exceeded its wall-clock budget
	KindMissingHandler     Kind = "MISSING_HANDLER"      // script registered no usable action
	KindUnknownPlugin      Kind = "UNKNOWN_PLUGIN"       // no plugin for id or source tag
	KindPluginDisabled     Kind = "PLUGIN_DISABLED"      // plugin toggled off
	KindHandler            Kind = "HANDLER"              // script-level failure
	KindResolution         Kind = "RESOLUTION"           // no usable playable URL
	KindTransport          Kind = "TRANSPORT"            // network or HTTP failure
	KindBlockDetected      Kind = "BLOCK_DETECTED"       // remote catalog signalled a block
	KindRetryLimitExceeded Kind = "RETRY_LIMIT_EXCEEDED" // task gave up
	KindIO                 Kind = "IO"                   // local file system
	KindUnknown            Kind = "UNKNOWN"
)

// Sentinels, one per kind, so callers can use errors.Is through any wrapping.
var (
	ErrSandboxTimeout     = New("sandbox timeout")
	ErrMissingHandler     = New("missing handler")
	ErrUnknownPlugin      = New("unknown plugin")
	ErrPluginDisabled     = New("plugin disabled")
	ErrHandler            = New("handler error")
	ErrResolution         = New("resolution error")
	ErrTransport          = New("transport error")
	ErrBlockDetected      = New("block detected")
	ErrRetryLimitExceeded = New("retry limit exceeded")
	ErrIO                 = New("I/O error")
)

var sentinels = map[Kind]error{
	KindSandboxTimeout:     ErrSandboxTimeout,
	KindMissingHandler:     ErrMissingHandler,
	KindUnknownPlugin:      ErrUnknownPlugin,
	KindPluginDisabled:     ErrPluginDisabled,
	KindHandler:            ErrHandler,
	KindResolution:         ErrResolution,
	KindTransport:          ErrTransport,
	KindBlockDetected:      ErrBlockDetected,
	KindRetryLimitExceeded: ErrRetryLimitExceeded,
	KindIO:                 ErrIO,
}

// Error is the structured error carried across the sandbox, proxy and scheduler.
type Error struct {
	Kind       Kind      // Taxonomy entry
	Op         string    // Plugin id, action or URL being processed
	Err        error     // Original error
	Retryable  bool      // Whether the caller's retry policy may try again
	StatusCode int       // HTTP status code, 0 when not applicable
	Timestamp  time.Time // When the error occurred
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status: %d): %v", e.Kind, e.Op, e.StatusCode, e.Err)
	}

	if e.Op == "" {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func newError(kind Kind, op string, err error, retryable bool) *Error {
	if err == nil {
		err = sentinels[kind]
	}

	return &Error{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Retryable: retryable,
		Timestamp: time.Now(),
	}
}

func NewSandboxTimeout(op string, err error) *Error {
	return newError(KindSandboxTimeout, op, err, false)
}

func NewMissingHandler(op string, err error) *Error {
	return newError(KindMissingHandler, op, err, false)
}

func NewUnknownPlugin(op string) *Error {
	return newError(KindUnknownPlugin, op, nil, false)
}

func NewPluginDisabled(op string) *Error {
	return newError(KindPluginDisabled, op, nil, false)
}

// NewHandlerError wraps a script failure. Handler errors are retryable from the
// scheduler's point of view, never inside the runtime.
func NewHandlerError(op string, err error) *Error {
	return newError(KindHandler, op, err, true)
}

func NewResolutionError(op string, err error) *Error {
	return newError(KindResolution, op, err, true)
}

func NewTransportError(op string, err error, statusCode int) *Error {
	e := newError(KindTransport, op, err, true)
	e.StatusCode = statusCode

	return e
}

func NewBlockDetected(op string, err error) *Error {
	return newError(KindBlockDetected, op, err, true)
}

func NewRetryLimitExceeded(op string, err error) *Error {
	return newError(KindRetryLimitExceeded, op, err, false)
}

func NewIOError(op string, err error) *Error {
	return newError(KindIO, op, err, true)
}

// IsRetryable determines if an error should be retried by the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if As(err, &e) {
		return e.Retryable
	}

	return false
}

// KindOf extracts the kind of the outermost structured error.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
