package common

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/xerrors"
)

// FileSize returns the current on-disk size of the file at path.
func FileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, xerrors.Errorf("file size: %w", err)
	}
	return fi.Size(), nil
}

// RepeatEvery executes the given function f repeatedly at specified intervals until the context is cancelled.
// The function is called immediately upon start, then repeatedly after each interval duration.
// The execution runs in a separate goroutine; the returned channel is closed once the loop has stopped.
func RepeatEvery(ctx context.Context, interval time.Duration, f func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f() // instant call
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f()
			}
		}
	}()
	return done
}

// ReadableSize formats a byte count for humans: 2048 -> "2.0 KiB".
func ReadableSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
