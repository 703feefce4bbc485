package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Miminimi234/lawl/backoff"
)

// Result describes a completed transfer.
type Result struct {
	Path     string
	Size     int64 // final size of the file on disk
	Attempts int
	Duration time.Duration
}

// Fetch downloads url to dest as one logical transfer that may span several
// physical attempts. A partial file left by a previous attempt (or a previous
// process) is resumed with a Range request; bytes already on disk are never
// re-fetched unless the server rejects ranged requests, in which case the
// transfer restarts from zero. On failure the partial file is left in place
// so a later invocation can resume it.
func (c *Client) Fetch(ctx context.Context, url, dest string) (*Result, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := backoff.Delay(attempt-1, c.opts.BackoffBase, c.opts.BackoffCap, c.opts.Jitter)
			c.opts.Logger.Warn("transfer retrying",
				"url", url,
				"attempt", attempt,
				"max_attempts", c.opts.MaxAttempts,
				"backoff", d,
				"error", lastErr)
			if err := c.doSleep(ctx, d); err != nil {
				return nil, err
			}
		}

		size, err := c.attempt(ctx, url, dest)
		if err == nil {
			res := &Result{
				Path:     dest,
				Size:     size,
				Attempts: attempt,
				Duration: time.Since(start),
			}
			c.opts.Logger.Info("transfer complete",
				"url", url, "path", dest, "bytes", size,
				"attempts", attempt, "duration", res.Duration)
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetch: %s failed after %d attempts: %w", url, c.opts.MaxAttempts, lastErr)
}

// attempt performs one physical download attempt, resuming from whatever is
// already on disk. It returns the final on-disk size on success.
func (c *Client) attempt(ctx context.Context, url, dest string) (int64, error) {
	offset := existingSize(dest)

	resp, err := c.get(ctx, url, offset)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}

	if offset > 0 && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		// Either the partial file already covers the full object or the
		// resume state is bogus. Restart from zero to be safe, releasing
		// this response first.
		resp.Body.Close()
		return c.restart(ctx, url, dest)
	}
	defer resp.Body.Close()

	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		// Server honored the range; append the tail.
		return c.copyBody(dest, resp, offset)

	case offset > 0 && resp.StatusCode == http.StatusOK:
		// Range ignored: the body is the whole object. Overwrite.
		return c.copyBody(dest, resp, 0)

	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		return c.copyBody(dest, resp, 0)

	default:
		return 0, checkStatus(resp.StatusCode)
	}
}

// restart truncates the partial file and re-requests the object from zero.
func (c *Client) restart(ctx context.Context, url, dest string) (int64, error) {
	if err := os.Truncate(dest, 0); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("truncate partial: %w", err)
	}
	resp, err := c.get(ctx, url, 0)
	if err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode); err != nil {
		return 0, err
	}
	return c.copyBody(dest, resp, 0)
}

// copyBody streams resp.Body into dest starting at offset. offset == 0
// truncates; otherwise bytes are appended at the end of the existing file.
func (c *Client) copyBody(dest string, resp *http.Response, offset int64) (int64, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open destination: %w", err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		// Keep the partial bytes: the next attempt resumes from here.
		return 0, fmt.Errorf("copy body (wrote %d bytes): %w", n, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("close destination: %w", closeErr)
	}

	total := offset + n
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return 0, fmt.Errorf("fetch: short body: got %d bytes, want %d", n, resp.ContentLength)
	}
	return total, nil
}

func (c *Client) doSleep(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	return backoff.Sleep(ctx, d)
}

// existingSize returns the size of a partial file at path, or 0.
func existingSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
