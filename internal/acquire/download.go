package acquire

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"quill/internal/services"
)

type downloadOptions struct {
	chunkBytes    int64
	retryAttempts int
	retryBackoff  time.Duration
	maxBackoff    time.Duration
	cancelled     func(context.Context) bool
	sleep         func(context.Context, time.Duration) error
}

func (o *downloadOptions) normalize() {
	if o.chunkBytes <= 0 {
		o.chunkBytes = 2 * 1024 * 1024
	}
	if o.retryAttempts < 0 {
		o.retryAttempts = 0
	}
	if o.retryBackoff <= 0 {
		o.retryBackoff = time.Second
	}
	if o.maxBackoff <= 0 {
		o.maxBackoff = 30 * time.Second
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
}

// downloadDirect streams the whole object into dest in one request.
func downloadDirect(ctx context.Context, fetcher Fetcher, sourceRef, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "acquisition", "create media file", "Failed to create download target", err)
	}
	defer out.Close()

	written, err := fetcher.Download(ctx, sourceRef, out)
	if err != nil {
		return written, err
	}
	return written, out.Close()
}

// downloadChunked pulls the object in sequential byte ranges, retrying each
// chunk on transient failure and resuming from the current file offset. The
// object size must be known.
func downloadChunked(ctx context.Context, fetcher Fetcher, sourceRef, dest string, totalSize int64, opts downloadOptions) (int64, error) {
	opts.normalize()
	if totalSize <= 0 {
		return 0, services.Wrap(services.ErrValidation, "acquisition", "chunked download", "Chunked transfers require a known size", nil)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "acquisition", "create media file", "Failed to create download target", err)
	}
	defer out.Close()

	// Resume from whatever a previous attempt already wrote.
	offset, err := out.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "acquisition", "resume download", "Failed to determine resume offset", err)
	}
	if offset > totalSize {
		// A previous run wrote garbage past the declared size; start over.
		if err := out.Truncate(0); err != nil {
			return 0, services.Wrap(services.ErrConfiguration, "acquisition", "reset download", "Failed to reset oversized partial download", err)
		}
		offset = 0
	}
	if _, err := out.Seek(offset, io.SeekStart); err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "acquisition", "resume download", "Failed to seek to resume offset", err)
	}

	for offset < totalSize {
		if opts.cancelled != nil && opts.cancelled(ctx) {
			return offset, services.ErrCancelled
		}

		length := opts.chunkBytes
		if remaining := totalSize - offset; remaining < length {
			length = remaining
		}

		written, err := downloadChunkWithRetry(ctx, fetcher, sourceRef, out, offset, length, opts)
		if err != nil {
			return offset, err
		}
		if written == 0 {
			return offset, services.Wrap(services.ErrTransient, "acquisition", "chunked download", "Gateway returned an empty range", nil)
		}
		offset += written
	}

	if err := out.Close(); err != nil {
		return offset, services.Wrap(services.ErrConfiguration, "acquisition", "finalize download", "Failed to flush downloaded media", err)
	}
	return offset, nil
}

func downloadChunkWithRetry(ctx context.Context, fetcher Fetcher, sourceRef string, out *os.File, offset, length int64, opts downloadOptions) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.retryAttempts; attempt++ {
		if attempt > 0 {
			if err := opts.sleep(ctx, backoffWithJitter(opts.retryBackoff, opts.maxBackoff, attempt-1)); err != nil {
				return 0, err
			}
			// The failed attempt may have written a partial chunk; rewind.
			if _, err := out.Seek(offset, io.SeekStart); err != nil {
				return 0, services.Wrap(services.ErrConfiguration, "acquisition", "rewind chunk", "Failed to rewind after chunk failure", err)
			}
			if err := out.Truncate(offset); err != nil {
				return 0, services.Wrap(services.ErrConfiguration, "acquisition", "rewind chunk", "Failed to truncate after chunk failure", err)
			}
		}

		written, err := fetcher.DownloadRange(ctx, sourceRef, out, offset, length)
		if err == nil {
			return written, nil
		}
		lastErr = err
		if !services.IsTransient(err) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("chunk at offset %d failed after %d attempts: %w", offset, opts.retryAttempts+1, lastErr)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << attempt
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
