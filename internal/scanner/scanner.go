// Package scanner discovers NCM containers and copyable audio files under
// source directories and enqueues them for processing.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"melt/internal/config"
	"melt/internal/logging"
	"melt/internal/ncm"
	"melt/internal/queue"
	"melt/internal/services"
)

// Scanner walks source paths and records work items in the queue.
type Scanner struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// Result summarizes one scan pass.
type Result struct {
	Containers int
	AudioFiles int
	Skipped    int
	Enqueued   int
	Duplicates int
}

// New constructs a Scanner.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Scanner {
	return &Scanner{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "scanner")}
}

// Scan walks each root and enqueues every container and, when copy_audio is
// enabled, every file with a recognized audio extension. Files already in the
// queue are counted as duplicates, not re-enqueued.
func (s *Scanner) Scan(ctx context.Context, roots ...string) (Result, error) {
	var result Result
	if len(roots) == 0 {
		return result, services.Wrap(
			services.ErrValidation, "scanning", "validate inputs",
			"No source paths given; pass at least one file or directory", nil)
	}
	audioExts := s.cfg.AudioExtensionSet()
	for _, root := range roots {
		expanded, err := config.ExpandPath(root)
		if err != nil {
			return result, services.Wrap(services.ErrValidation, "scanning", "resolve source path", fmt.Sprintf("Cannot resolve source path %q", root), err)
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return result, services.Wrap(services.ErrNotFound, "scanning", "stat source path", fmt.Sprintf("Source path %q is not accessible", root), err)
		}
		if !info.IsDir() {
			if err := s.visit(ctx, &result, filepath.Dir(expanded), expanded, audioExts); err != nil {
				return result, err
			}
			continue
		}
		walkErr := filepath.WalkDir(expanded, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if entry.IsDir() {
				if strings.HasPrefix(entry.Name(), ".") && path != expanded {
					return filepath.SkipDir
				}
				return nil
			}
			return s.visit(ctx, &result, expanded, path, audioExts)
		})
		if walkErr != nil {
			if errors.Is(walkErr, context.Canceled) {
				return result, walkErr
			}
			return result, services.Wrap(services.ErrTransient, "scanning", "walk source tree", fmt.Sprintf("Scan of %q aborted", root), walkErr)
		}
	}
	s.logger.Info("scan completed",
		logging.Int("containers", result.Containers),
		logging.Int("audio_files", result.AudioFiles),
		logging.Int("enqueued", result.Enqueued),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Scanner) visit(ctx context.Context, result *Result, root, path string, audioExts map[string]struct{}) error {
	ext := strings.ToLower(filepath.Ext(path))
	var kind queue.Kind
	switch {
	case ext == ".ncm":
		ok, err := isContainerFile(path)
		if err != nil {
			s.logger.Warn("unreadable candidate skipped", logging.String("path", path), logging.Error(err))
			result.Skipped++
			return nil
		}
		if !ok {
			s.logger.Warn("file has .ncm extension but no container magic", logging.String("path", path))
			result.Skipped++
			return nil
		}
		kind = queue.KindConvert
		result.Containers++
	default:
		if _, isAudio := audioExts[ext]; !isAudio || !s.cfg.Conversion.CopyAudio {
			result.Skipped++
			return nil
		}
		kind = queue.KindCopy
		result.AudioFiles++
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	existing, err := s.store.FindBySource(ctx, path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "scanning", "check queue", "Queue lookup failed during scan", err)
	}
	if existing != nil {
		result.Duplicates++
		return nil
	}
	if _, err := s.store.NewItem(ctx, kind, path, rel); err != nil {
		return services.Wrap(services.ErrTransient, "scanning", "enqueue item", fmt.Sprintf("Failed to enqueue %q", path), err)
	}
	result.Enqueued++
	return nil
}

// isContainerFile checks the leading magic without reading the whole file.
func isContainerFile(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()
	header := make([]byte, len(ncm.MagicHeader()))
	if _, err := io.ReadFull(file, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return ncm.IsContainer(header), nil
}
