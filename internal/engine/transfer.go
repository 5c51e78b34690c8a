package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/events"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/progress"
	"github.com/NamanBalaji/tunedl/internal/session"
	"github.com/NamanBalaji/tunedl/internal/status"
	"github.com/NamanBalaji/tunedl/internal/task"
	httpclient "github.com/NamanBalaji/tunedl/pkg/http"
)

const (
	chunkSize = 32 * 1024

	// unknownLengthFlush is how often progress is persisted when the server sends no length.
	unknownLengthFlush = 1 << 20
)

// transfer runs one download attempt: resolve the URL, resume from whatever is on disk,
// stream the body and record completion.
func (s *Scheduler) transfer(ctx context.Context, id uuid.UUID) error {
	t, err := s.store.Get(id)
	if err != nil {
		return err
	}

	if err := s.store.UpdateStatus(id, status.Downloading, task.StatusFields{}); err != nil {
		return err
	}

	logger.Infof("Starting transfer for task %s: %s", id, t.Song)

	url, err := s.resolver.ResolveURL(ctx, t.Source, t.Song, t.Quality)
	if err != nil {
		return err
	}

	offset, err := s.fs.PartialSize(t.Filepath)
	if err != nil {
		return errors.NewIOError(t.Filepath, err)
	}

	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()

	resp, err := s.client.GetFrom(reqCtx, url, offset, session.DownloadHeaders(url, t.Source))
	if err != nil {
		return transportError(url, err)
	}

	body := httpclient.NewIdleReader(resp.Body, s.cfg.InactivityTimeout, cancelReq)
	defer body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		logger.Debugf("Task %s: server has nothing past byte %d, treating as complete", id, offset)
		return s.complete(id, t.Filepath, offset)

	case resp.StatusCode == http.StatusOK && offset > 0:
		logger.Warnf("Task %s: server ignored range request, restarting from 0", id)
		offset = 0
	}

	total := int64(0)
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	out, err := s.fs.OpenForWrite(t.Filepath, offset > 0)
	if err != nil {
		return errors.NewIOError(t.Filepath, err)
	}
	defer out.Close()

	meter := progress.NewMeter(offset, total)
	written, err := s.stream(ctx, id, url, body, out, meter)
	if err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return errors.NewIOError(t.Filepath, err)
	}

	size := offset + written
	if total > 0 && size < total {
		return transportError(url, fmt.Errorf("%w: got %d of %d bytes", httpclient.ErrUnexpectedEOF, size, total))
	}

	return s.complete(id, t.Filepath, size)
}

// stream copies body to out chunk by chunk, honoring cancellation and the rate limit,
// and reports progress on every whole percent step.
func (s *Scheduler) stream(ctx context.Context, id uuid.UUID, url string, body io.Reader, out io.Writer, meter *progress.Meter) (int64, error) {
	buf := make([]byte, chunkSize)
	snap := meter.Snapshot()
	lastPercent := snap.Percent
	lastFlush := snap.Downloaded

	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if s.limiter != nil {
				if err := s.limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}

			if _, err := out.Write(buf[:n]); err != nil {
				return written, errors.NewIOError(url, err)
			}
			written += int64(n)

			snap = meter.Add(int64(n))
			if snap.Percent > lastPercent || (snap.TotalSize == 0 && snap.Downloaded-lastFlush >= unknownLengthFlush) {
				lastPercent = snap.Percent
				lastFlush = snap.Downloaded
				s.reportProgress(id, snap)
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, readError(url, readErr)
		}
	}
}

func (s *Scheduler) reportProgress(id uuid.UUID, snap progress.Snapshot) {
	pct := float64(snap.Percent)

	if err := s.store.UpdateProgress(id, pct, snap.Downloaded, snap.TotalSize); err != nil {
		logger.Warnf("Failed to save progress for task %s: %v", id, err)
	}

	s.sink.Emit(events.KindProgress, events.Progress{
		TaskID:         id,
		Progress:       pct,
		DownloadedSize: snap.Downloaded,
		TotalSize:      snap.TotalSize,
		Speed:          snap.SpeedBPS,
	})
}

func (s *Scheduler) complete(id uuid.UUID, path string, size int64) error {
	if err := s.store.UpdateStatus(id, status.Completed, task.StatusFields{Filepath: path, FileSize: size}); err != nil {
		return err
	}

	logger.Infof("Task %s completed: %s (%d bytes)", id, path, size)
	s.sink.Emit(events.KindCompleted, events.Completed{TaskID: id, Filepath: path, FileSize: size})

	return nil
}
