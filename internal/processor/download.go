package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/segment-worker/internal/logging"
)

const (
	downloadMaxRetries     = 5
	downloadInitialBackoff = time.Second
	downloadMaxBackoff     = 32 * time.Second
)

// loadFile loads file from buffer or URL
func (dp *DocumentProcessor) loadFile(ctx context.Context, log *logging.Logger, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		log.Debug("Using file buffer", "bytes", len(req.FileBuffer))
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		data, err := dp.downloadFileFromURL(ctx, log, req.FileURL, req.FileSize)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		log.Info("File downloaded", "bytes", len(data))
		return data, nil
	}

	return nil, fmt.Errorf("no file source provided (buffer or URL)")
}

// backoffDelay doubles from downloadInitialBackoff per attempt, capped at
// downloadMaxBackoff.
func backoffDelay(attempt int) time.Duration {
	d := downloadInitialBackoff << uint(attempt-1)
	if d > downloadMaxBackoff || d <= 0 {
		return downloadMaxBackoff
	}
	return d
}

// downloadFileFromURL fetches fileURL with exponential backoff between
// attempts. Oversized bodies fail immediately without retry.
func (dp *DocumentProcessor) downloadFileFromURL(ctx context.Context, log *logging.Logger, fileURL string, expectedSize int64) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt - 1)
			log.Info("Retrying download", "attempt", attempt, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		data, retry, err := dp.fetch(ctx, log, fileURL, expectedSize)
		if err == nil {
			log.Debug("Download successful", "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		log.Warn("Download attempt failed", "attempt", attempt, "maxRetries", downloadMaxRetries, "error", err)
	}

	return nil, fmt.Errorf("failed to download file after %d attempts: %w", downloadMaxRetries, lastErr)
}

// fetch performs one GET. The bool reports whether a failure is worth retrying.
func (dp *DocumentProcessor) fetch(ctx context.Context, log *logging.Logger, fileURL string, expectedSize int64) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid file URL: %w", err)
	}

	resp, err := dp.http.Do(httpReq)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 4xx other than 408/429 will not get better on retry
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > 0 && expectedSize > 0 && resp.ContentLength != expectedSize {
		log.Warn("Content-Length mismatch", "expected", expectedSize, "got", resp.ContentLength)
	}

	limit := dp.config.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, limit)
	}
	if limit <= 0 {
		limit = 1 << 30
	}

	// One byte past the limit lets validation report the upload as too large.
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, false, nil
}
