package tagging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"melt/internal/artwork"
	"melt/internal/config"
	"melt/internal/logging"
	"melt/internal/ncm"
	"melt/internal/queue"
	"melt/internal/services"
	"melt/internal/stage"
)

// Tagger embeds track metadata into staged audio files.
type Tagger struct {
	cfg     *config.Config
	store   *queue.Store
	logger  *slog.Logger
	fetcher artwork.Fetcher
}

// NewTagger constructs the tagging stage handler using default dependencies.
func NewTagger(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Tagger {
	return NewTaggerWithFetcher(cfg, store, logger, artwork.NewFetcher(cfg))
}

// NewTaggerWithFetcher allows injecting the artwork fetcher (used in tests).
func NewTaggerWithFetcher(cfg *config.Config, store *queue.Store, logger *slog.Logger, fetcher artwork.Fetcher) *Tagger {
	return &Tagger{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "tagger"),
		fetcher: fetcher,
	}
}

func (t *Tagger) Prepare(ctx context.Context, item *queue.Item) error {
	item.SetProgress("Tagging", "Preparing metadata embedding", 0)
	item.ErrorMessage = ""
	return nil
}

// Execute embeds tags and artwork into the staged file. Embedding problems
// route the item to manual review instead of failing it; the decoded audio is
// intact and still worth organizing.
func (t *Tagger) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, t.logger)
	if item.Kind == queue.KindCopy || !t.cfg.Conversion.EmbedMetadata {
		item.SetProgress("Tagging", "Metadata embedding skipped", 100)
		return nil
	}
	if item.StagedFile == "" {
		return services.Wrap(
			services.ErrValidation, "tagging", "validate inputs",
			"No staged file present for tagging; run conversion first", nil)
	}

	meta, err := stage.ParseMetadata(item)
	if err != nil {
		return err
	}
	if meta == nil {
		logger.Info("no metadata available, skipping tag embedding",
			logging.String("staged_file", item.StagedFile))
		item.SetProgress("Tagging", "No metadata to embed", 100)
		return nil
	}

	img := t.loadArtwork(ctx, item, meta)
	item.SetProgress("Tagging", "Embedding metadata", 40)

	switch strings.ToLower(item.Format) {
	case "mp3":
		err = EmbedMP3(item.StagedFile, meta, img)
	case "flac":
		err = EmbedFLAC(item.StagedFile, meta, img)
	default:
		err = fmt.Errorf("unsupported tag format %q", item.Format)
	}
	if err != nil {
		logger.Warn("tag embedding failed, routing to review",
			logging.String("staged_file", item.StagedFile),
			logging.Error(err))
		item.NeedsReview = true
		item.ReviewReason = fmt.Sprintf("tag embedding failed: %v", err)
		item.SetProgress("Tagging", "Tag embedding failed", 100)
		return nil
	}

	item.SetProgress("Tagging", "Metadata embedded", 100)
	logger.Info("tags embedded",
		logging.String("staged_file", item.StagedFile),
		logging.String("title", meta.MusicName),
		logging.Bool("has_artwork", img != nil))
	return nil
}

// loadArtwork prefers the cover extracted from the container and falls back
// to downloading the album-art URL. Artwork is optional; failures only log.
func (t *Tagger) loadArtwork(ctx context.Context, item *queue.Item, meta *ncm.Metadata) *ncm.Image {
	logger := logging.WithContext(ctx, t.logger)
	if item.ArtworkFile != "" {
		data, err := os.ReadFile(item.ArtworkFile)
		if err != nil {
			logger.Warn("artwork sidecar unreadable", logging.String("artwork_file", item.ArtworkFile), logging.Error(err))
		} else if len(data) > 0 {
			return &ncm.Image{Bytes: data, MIME: ncm.SniffImageMIME(data)}
		}
	}
	if t.fetcher == nil {
		return nil
	}
	img, err := t.fetcher.Fetch(ctx, meta.AlbumPic)
	if err != nil {
		logger.Warn("artwork download failed", logging.String("url", meta.AlbumPic), logging.Error(err))
		return nil
	}
	return img
}

// HealthCheck verifies the staging directory is usable for in-place tag
// rewrites.
func (t *Tagger) HealthCheck(ctx context.Context) stage.Health {
	const name = "tagger"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(t.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}
