package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Fetch downloads url to dest unless dest already exists. The body is
// written to a temporary file and renamed into place, so an interrupted
// download never leaves a partial archive behind. Server errors are
// retried; client errors are not.
func Fetch(ctx context.Context, client *http.Client, url string, dest string) (bool, error) {
	logger := slog.Default().With("component", "fetch", "url", url)
	if _, err := os.Stat(dest); err == nil {
		logger.Info("archive already present, skipping download", "path", dest)
		return false, nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("creating download directory: %w", err)
		}
	}

	var written int64
	err := resilience.Retry(ctx, "download "+url, resilience.RetryConfig{MaxAttempts: 4, InitialDelay: 500 * time.Millisecond}, func() error {
		n, err := download(ctx, client, url, dest)
		written = n
		return err
	})
	if err != nil {
		return false, err
	}
	logger.Info("archive downloaded", "path", dest, "bytes", written)
	return true, nil
}

func download(ctx context.Context, client *http.Client, url string, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("requesting archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return 0, resilience.Permanent(err)
		}
		return 0, err
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("creating %s: %w", tmp, err))
	}
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("downloading archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return 0, resilience.Permanent(fmt.Errorf("renaming archive: %w", err))
	}
	return n, nil
}
