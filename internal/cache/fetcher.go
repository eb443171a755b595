// Package cache downloads, stores and evicts binary assets under a global
// size quota, delegating encryption of premium content to cryptox.
package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/serenity-app/serenity/internal/common"
)

// ProgressFunc receives the downloaded fraction in [0, 1]. The fraction stays
// at 0 when the source does not report its length.
type ProgressFunc func(fraction float64)

// Fetcher streams the content at url into destPath.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string, onProgress ProgressFunc) error
}

// HTTPFetcher downloads over HTTPS with bounded retries on transient
// failures (network errors and 5xx responses).
type HTTPFetcher struct {
	http       *http.Client
	maxRetries uint64
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		http:       &http.Client{Timeout: 10 * time.Minute},
		maxRetries: 3,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	backoff := retry.WithMaxRetries(f.maxRetries, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("%w: %s", common.ErrDownloadFailed, resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: %s", common.ErrDownloadFailed, resp.Status)
		}

		return streamTo(destPath, resp.Body, resp.ContentLength, onProgress)
	})
}

// streamTo copies r into destPath via a sibling temp file and rename,
// reporting progress as bytes arrive. total < 0 means unknown length.
func streamTo(destPath string, r io.Reader, total int64, onProgress ProgressFunc) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var written int64
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				return fmt.Errorf("write temp: %w", werr)
			}
			written += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(written) / float64(total))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			tmp.Close()
			return fmt.Errorf("read body: %w", rerr)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return fmt.Errorf("rename %s: %w", destPath, err)
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}
