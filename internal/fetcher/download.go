package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const maxDownloadRetries = 3

// download fetches one release file into s.destDir, verifying its
// SHA256 against the index-reported digest, retrying transient
// failures with exponential backoff.
func (s *Service) download(ctx context.Context, f releaseFile) (string, error) {
	var lastErr error

	for attempt := range maxDownloadRetries {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}

		path, err := s.doDownload(ctx, f)
		if err == nil {
			return path, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return "", err
		}

		lastErr = err
	}

	return "", fmt.Errorf("after %d attempts: %w", maxDownloadRetries, lastErr)
}

func (s *Service) doDownload(ctx context.Context, f releaseFile) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("requesting %s: %w", f.URL, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, f.URL)
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", &retryableError{err: err}
		}

		return "", err
	}

	destPath := filepath.Join(s.destDir, f.Filename)
	tmpPath := destPath + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	h := sha256.New()

	_, copyErr := io.Copy(io.MultiWriter(out, h), resp.Body)
	if closeErr := out.Close(); closeErr != nil && copyErr == nil {
		copyErr = fmt.Errorf("closing temp file: %w", closeErr)
	}

	if copyErr != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("writing %s: %w", f.Filename, copyErr)
	}

	if f.SHA256 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != f.SHA256 {
			_ = os.Remove(tmpPath)

			return "", fmt.Errorf("sha256 mismatch for %s: expected %s, got %s", f.Filename, f.SHA256, got)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)

		return "", fmt.Errorf("renaming %s: %w", f.Filename, err)
	}

	return destPath, nil
}
