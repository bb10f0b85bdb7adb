// Package converter decodes NCM containers into staged audio files and
// mirrors plain audio files into the staging area.
package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"melt/internal/config"
	"melt/internal/fileutil"
	"melt/internal/logging"
	"melt/internal/ncm"
	"melt/internal/queue"
	"melt/internal/services"
	"melt/internal/stage"
)

// Converter decodes queue items into the staging directory.
type Converter struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// New constructs the converter stage handler.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Converter {
	return &Converter{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "converter")}
}

func (c *Converter) Prepare(ctx context.Context, item *queue.Item) error {
	item.SetProgress("Converting", "Preparing conversion", 0)
	item.ErrorMessage = ""
	if item.SourcePath == "" {
		return services.Wrap(
			services.ErrValidation, "converting", "validate inputs",
			"Queue item has no source path", nil)
	}
	if _, err := os.Stat(item.SourcePath); err != nil {
		return services.Wrap(
			services.ErrNotFound, "converting", "stat source",
			fmt.Sprintf("Source file %q disappeared since scanning", item.SourcePath), err)
	}
	return nil
}

func (c *Converter) Execute(ctx context.Context, item *queue.Item) error {
	if item.Kind == queue.KindCopy {
		return c.stageCopy(ctx, item)
	}
	return c.decode(ctx, item)
}

// stageCopy mirrors a plain audio file into staging with a verified copy.
func (c *Converter) stageCopy(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, c.logger)
	target := c.stagingPath(item, filepath.Ext(item.SourcePath))
	item.SetProgress("Converting", "Copying audio file", 20)
	if err := fileutil.CopyFileVerified(item.SourcePath, target); err != nil {
		return services.Wrap(services.ErrTransient, "converting", "copy audio", fmt.Sprintf("Failed to stage %q", item.SourcePath), err)
	}
	item.StagedFile = target
	item.Format = strings.TrimPrefix(strings.ToLower(filepath.Ext(item.SourcePath)), ".")
	item.SetProgress("Converting", "Audio file staged", 100)
	logger.Info("audio file staged", logging.String("staged_file", target))
	return nil
}

// decode runs the container decoder and lands the audio, metadata, and cover
// art in the staging directory. Partial output is removed on failure.
func (c *Converter) decode(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, c.logger)
	source, err := os.Open(item.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "converting", "open source", fmt.Sprintf("Cannot open %q", item.SourcePath), err)
	}
	defer source.Close()

	// Decode into a temp name first; the extension is only known once the
	// payload format is sniffed.
	tempPath := c.stagingPath(item, ".partial")
	if err := fileutil.EnsureParentDir(tempPath); err != nil {
		return services.Wrap(services.ErrConfiguration, "converting", "ensure staging dir", "Cannot create staging directory", err)
	}
	sink, err := os.Create(tempPath)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "converting", "create staging file", "Cannot create staging file", err)
	}

	item.SetProgress("Converting", "Decoding container", 20)
	result, decodeErr := ncm.Decode(source, sink)
	closeErr := sink.Close()
	if decodeErr != nil {
		_ = os.Remove(tempPath)
		marker := services.ErrCorrupt
		if errors.Is(decodeErr, ncm.ErrTruncatedInput) {
			marker = services.ErrValidation
		}
		return services.Wrap(marker, "converting", "decode container", fmt.Sprintf("Failed to decode %q", item.SourcePath), decodeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return services.Wrap(services.ErrTransient, "converting", "flush staging file", "Failed to flush decoded audio", closeErr)
	}

	finalPath := fileutil.ReplaceExt(tempPath, "."+result.Format)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return services.Wrap(services.ErrTransient, "converting", "finalize staging file", "Failed to finalize decoded audio", err)
	}
	item.StagedFile = finalPath
	item.Format = result.Format

	if result.MetadataErr != nil {
		logger.Warn("metadata box unreadable, continuing with audio only",
			logging.String("source", item.SourcePath),
			logging.Error(result.MetadataErr))
	}
	if result.Metadata != nil {
		encoded, err := json.Marshal(result.Metadata)
		if err != nil {
			return services.Wrap(services.ErrTransient, "converting", "encode metadata", "Failed to encode container metadata", err)
		}
		item.MetadataJSON = string(encoded)
	}
	if result.Image != nil {
		sidecar := fileutil.ReplaceExt(finalPath, ".cover")
		if err := os.WriteFile(sidecar, result.Image.Bytes, 0o644); err != nil {
			logger.Warn("failed to write artwork sidecar", logging.Error(err))
		} else {
			item.ArtworkFile = sidecar
		}
	}

	item.SetProgress("Converting", "Container decoded", 100)
	logger.Info("container decoded",
		logging.String("staged_file", finalPath),
		logging.String("format", result.Format),
		logging.Int64("audio_bytes", result.AudioBytes),
		logging.Bool("has_metadata", result.Metadata != nil),
		logging.Bool("has_artwork", result.Image != nil))
	return nil
}

// stagingPath mirrors the item's relative path under the staging directory.
func (c *Converter) stagingPath(item *queue.Item, ext string) string {
	rel := item.RelPath
	if rel == "" {
		rel = filepath.Base(item.SourcePath)
	}
	return fileutil.ReplaceExt(filepath.Join(c.cfg.Paths.StagingDir, rel), ext)
}

// HealthCheck verifies the staging directory exists and is writable.
func (c *Converter) HealthCheck(ctx context.Context) stage.Health {
	const name = "converter"
	if c.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	dir := strings.TrimSpace(c.cfg.Paths.StagingDir)
	if dir == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("staging directory unavailable: %v", err))
	}
	return stage.Healthy(name)
}
