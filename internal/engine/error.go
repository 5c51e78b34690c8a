package engine

import (
	"context"
	"fmt"

	"github.com/NamanBalaji/tunedl/internal/errors"
	httpclient "github.com/NamanBalaji/tunedl/pkg/http"
)

var (
	// ErrTaskActive is returned when pausing a task whose transfer is already running
	ErrTaskActive = errors.New("task is transferring")

	// ErrInvalidTransition is returned when an operation is not allowed from the task's status
	ErrInvalidTransition = errors.New("operation not allowed in current task status")
)

// transportError wraps a failure from the HTTP client, which has already classified it.
func transportError(url string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	return errors.NewTransportError(url, err, 0)
}

// readError classifies a failure while streaming the body, keeping the original message.
func readError(url string, err error) error {
	class := httpclient.ClassifyError(err)
	if errors.Is(err, class) {
		return transportError(url, err)
	}

	return transportError(url, fmt.Errorf("%w: %v", class, err))
}

// stopped reports whether a transfer ended because its context was cancelled by
// Shutdown or Delete rather than by a failure worth retrying.
func stopped(ctx context.Context) bool {
	return ctx.Err() != nil
}
