// Package staging maintains the staging directory between runs: interrupted
// conversions leave partial decode output and orphaned artwork sidecars
// behind, and organized items leave empty directories.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"melt/internal/logging"
)

// CleanStaleResult contains the outcome of a stale artifact cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// staleExtensions are conversion byproducts that are safe to delete once no
// run is writing to them. Decoded audio awaiting the organizer is never
// touched.
var staleExtensions = map[string]struct{}{
	".partial": {},
	".cover":   {},
}

// CleanStale removes conversion byproducts older than maxAge and prunes
// directories the removals left empty.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	var candidates []string
	var dirs []string

	walkErr := filepath.WalkDir(stagingDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if path != stagingDir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if _, stale := staleExtensions[strings.ToLower(filepath.Ext(path))]; !stale {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if info.ModTime().Before(cutoff) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if walkErr != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: walkErr})
		return result
	}

	for _, path := range candidates {
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed stale staging artifact", logging.String("path", path))
	}

	// Deepest directories first so emptied parents get pruned too.
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err == nil {
			result.Removed = append(result.Removed, dirs[i])
		}
	}

	return result
}
