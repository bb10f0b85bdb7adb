package tagging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"

	"melt/internal/logging"
	"melt/internal/ncm"
	"melt/internal/queue"
	"melt/internal/testsupport"
)

func writeStubMP3(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "track.mp3")
	// Bare MPEG frame sync, no existing ID3 tag.
	if err := os.WriteFile(path, []byte{0xFF, 0xFB, 0x90, 0x00, 0x00, 0x00}, 0o644); err != nil {
		t.Fatalf("write stub mp3: %v", err)
	}
	return path
}

func metadataJSON(t *testing.T, meta *ncm.Metadata) string {
	t.Helper()
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	return string(data)
}

func TestEmbedMP3WritesTags(t *testing.T) {
	path := writeStubMP3(t, t.TempDir())
	meta := &ncm.Metadata{
		MusicName: "Night Song",
		Album:     "Evening Album",
		Artist:    ncm.ArtistList{{Name: "Some Artist", ID: 7}},
	}
	img := &ncm.Image{Bytes: []byte{0xFF, 0xD8, 0xFF, 0xE0}, MIME: "image/jpeg"}

	if err := EmbedMP3(path, meta, img); err != nil {
		t.Fatalf("EmbedMP3: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen tag: %v", err)
	}
	defer tag.Close()
	if tag.Title() != "Night Song" {
		t.Fatalf("title = %q", tag.Title())
	}
	if tag.Artist() != "Some Artist" {
		t.Fatalf("artist = %q", tag.Artist())
	}
	if tag.Album() != "Evening Album" {
		t.Fatalf("album = %q", tag.Album())
	}
	if frames := tag.GetFrames(tag.CommonID("Attached picture")); len(frames) != 1 {
		t.Fatalf("picture frames = %d, want 1", len(frames))
	}
}

func TestTaggerRoutesEmbedFailureToReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := testsupport.NewItem(t, store, "/in/track.ncm", "track.ncm")
	item.Status = queue.StatusTagging
	item.Format = "flac"
	item.StagedFile = filepath.Join(t.TempDir(), "missing.flac")
	item.MetadataJSON = metadataJSON(t, &ncm.Metadata{MusicName: "X"})

	tagger := NewTaggerWithFetcher(cfg, store, logging.NewNop(), nil)
	if err := tagger.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error, want review routing: %v", err)
	}
	if !item.NeedsReview || item.ReviewReason == "" {
		t.Fatalf("expected review routing, got %+v", item)
	}
}

func TestTaggerSkipsCopyItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := &queue.Item{Kind: queue.KindCopy, Status: queue.StatusTagging}
	tagger := NewTaggerWithFetcher(cfg, store, logging.NewNop(), nil)
	if err := tagger.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.NeedsReview {
		t.Fatal("copy item should not be routed to review")
	}
}

func TestTaggerSkipsWhenEmbeddingDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Conversion.EmbedMetadata = false
	store := testsupport.MustOpenStore(t, cfg)

	item := &queue.Item{Kind: queue.KindConvert, Status: queue.StatusTagging, Format: "mp3"}
	tagger := NewTaggerWithFetcher(cfg, store, logging.NewNop(), nil)
	if err := tagger.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.NeedsReview {
		t.Fatal("disabled embedding should not route to review")
	}
}

func TestTaggerPrefersArtworkSidecar(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	dir := t.TempDir()
	path := writeStubMP3(t, dir)
	sidecar := filepath.Join(dir, "track.cover")
	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}
	if err := os.WriteFile(sidecar, cover, 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	item := testsupport.NewItem(t, store, "/in/track.ncm", "track.ncm")
	item.Status = queue.StatusTagging
	item.Format = "mp3"
	item.StagedFile = path
	item.ArtworkFile = sidecar
	item.MetadataJSON = metadataJSON(t, &ncm.Metadata{MusicName: "With Cover"})

	tagger := NewTaggerWithFetcher(cfg, store, logging.NewNop(), nil)
	if err := tagger.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.NeedsReview {
		t.Fatalf("unexpected review routing: %s", item.ReviewReason)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("reopen tag: %v", err)
	}
	defer tag.Close()
	frames := tag.GetFrames(tag.CommonID("Attached picture"))
	if len(frames) != 1 {
		t.Fatalf("picture frames = %d, want 1", len(frames))
	}
	pic, ok := frames[0].(id3v2.PictureFrame)
	if !ok {
		t.Fatalf("unexpected frame type %T", frames[0])
	}
	if len(pic.Picture) != len(cover) {
		t.Fatalf("picture size = %d, want %d", len(pic.Picture), len(cover))
	}
}
