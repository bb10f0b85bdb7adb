// Package organizer moves staged audio into its final library location.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"melt/internal/config"
	"melt/internal/fileutil"
	"melt/internal/logging"
	"melt/internal/queue"
	"melt/internal/services"
	"melt/internal/stage"
	"melt/internal/textutil"
)

// Organizer moves staged files into the library tree.
type Organizer struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// New constructs the organizer stage handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Organizer {
	return &Organizer{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "organizer")}
}

func (o *Organizer) Prepare(ctx context.Context, item *queue.Item) error {
	item.SetProgress("Organizing", "Preparing library move", 0)
	item.ErrorMessage = ""
	return nil
}

func (o *Organizer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, o.logger)
	if item.StagedFile == "" {
		return services.Wrap(
			services.ErrValidation, "organizing", "validate inputs",
			"No staged file present for organization; run conversion first", nil)
	}

	target, err := o.libraryPath(item)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(target); statErr == nil {
		if !o.cfg.Conversion.OverwriteExisting {
			logger.Warn("library file already exists, routing to review",
				logging.String("target", target))
			item.NeedsReview = true
			if item.ReviewReason == "" {
				item.ReviewReason = fmt.Sprintf("library file already exists: %s", target)
			}
			item.FinalFile = target
			item.SetProgress("Organizing", "Target exists, left in staging", 100)
			return nil
		}
		if err := os.Remove(target); err != nil {
			return services.Wrap(services.ErrTransient, "organizing", "replace existing file", fmt.Sprintf("Failed to replace %q", target), err)
		}
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "organizing", "stat target", fmt.Sprintf("Cannot inspect %q", target), statErr)
	}

	item.SetProgress("Organizing", "Moving into library", 40)
	if err := fileutil.EnsureParentDir(target); err != nil {
		return services.Wrap(services.ErrConfiguration, "organizing", "ensure library dir", "Cannot create library directory", err)
	}
	if err := fileutil.MoveFile(item.StagedFile, target); err != nil {
		return services.Wrap(services.ErrTransient, "organizing", "move to library", fmt.Sprintf("Failed to move %q into the library", item.StagedFile), err)
	}
	item.FinalFile = target
	o.cleanupSidecar(ctx, item)

	item.SetProgress("Organizing", fmt.Sprintf("Available in library: %s", filepath.Base(target)), 100)
	logger.Info("library move completed",
		logging.String("staged_file", item.StagedFile),
		logging.String("final_file", target))
	item.StagedFile = ""
	return nil
}

// libraryPath derives the destination from the item's relative path with the
// decoded format extension and sanitized path segments.
func (o *Organizer) libraryPath(item *queue.Item) (string, error) {
	rel := item.RelPath
	if rel == "" {
		rel = filepath.Base(item.SourcePath)
	}
	if item.Format != "" {
		rel = fileutil.ReplaceExt(rel, "."+item.Format)
	}
	rel = textutil.SanitizeRelPath(rel)
	if rel == "" {
		return "", services.Wrap(
			services.ErrValidation, "organizing", "derive target",
			fmt.Sprintf("Cannot derive a library name for %q", item.SourcePath), nil)
	}
	return filepath.Join(o.cfg.Paths.LibraryDir, rel), nil
}

// cleanupSidecar removes the artwork file left next to the staged audio.
func (o *Organizer) cleanupSidecar(ctx context.Context, item *queue.Item) {
	if item.ArtworkFile == "" {
		return
	}
	if err := os.Remove(item.ArtworkFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WithContext(ctx, o.logger).Warn("failed to remove artwork sidecar",
			logging.String("artwork_file", item.ArtworkFile), logging.Error(err))
	}
	item.ArtworkFile = ""
}

// HealthCheck verifies the library root is configured and creatable.
func (o *Organizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "organizer"
	if o.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	dir := strings.TrimSpace(o.cfg.Paths.LibraryDir)
	if dir == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("library directory unavailable: %v", err))
	}
	return stage.Healthy(name)
}
