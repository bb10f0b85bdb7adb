package workflow

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"

	"melt/internal/converter"
	"melt/internal/logging"
	"melt/internal/ncm"
	"melt/internal/organizer"
	"melt/internal/scanner"
	"melt/internal/tagging"
	"melt/internal/testsupport"
)

func TestPipelineEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Conversion.EmbedMetadata = false
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	audio := bytes.Repeat([]byte("integration audio payload "), 128)
	source := filepath.Join(t.TempDir(), "music", "artist", "song.ncm")
	testsupport.WriteContainer(t, source, testsupport.ContainerSpec{
		Audio: audio,
		Metadata: &ncm.Metadata{
			Format:    "mp3",
			MusicName: "Integration Song",
			Album:     "Integration Album",
			Artist:    ncm.ArtistList{{Name: "Integration Artist", ID: 1}},
		},
	})

	scan := scanner.New(cfg, store, logger)
	if _, err := scan.Scan(context.Background(), filepath.Dir(filepath.Dir(source))); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	mgr := NewManager(cfg, store, logger, StageSet{
		Converter: converter.New(cfg, store, logger),
		Tagger:    tagging.NewTaggerWithFetcher(cfg, store, logger, nil),
		Organizer: organizer.New(cfg, store, logger),
	})
	stats, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Completed != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	final := filepath.Join(cfg.Paths.LibraryDir, "artist", "song.mp3")
	decoded, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read library file: %v", err)
	}
	if !bytes.Equal(decoded, audio) {
		t.Fatal("library audio does not match original payload")
	}
}

func TestPipelineEmbedsTagsEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	// ID3-less MPEG bytes so the tagger has a file it can rewrite.
	audio := append([]byte{0xFF, 0xFB, 0x90, 0x00}, bytes.Repeat([]byte{0x55}, 512)...)
	source := filepath.Join(t.TempDir(), "song.ncm")
	testsupport.WriteContainer(t, source, testsupport.ContainerSpec{
		Audio: audio,
		Image: []byte{0xFF, 0xD8, 0xFF, 0xE0, 1},
		Metadata: &ncm.Metadata{
			Format:    "mp3",
			MusicName: "Tagged Song",
			Album:     "Tagged Album",
			Artist:    ncm.ArtistList{{Name: "Tagged Artist", ID: 2}},
		},
	})

	scan := scanner.New(cfg, store, logger)
	if _, err := scan.Scan(context.Background(), source); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	mgr := NewManager(cfg, store, logger, StageSet{
		Converter: converter.New(cfg, store, logger),
		Tagger:    tagging.NewTaggerWithFetcher(cfg, store, logger, nil),
		Organizer: organizer.New(cfg, store, logger),
	})
	stats, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	final := filepath.Join(cfg.Paths.LibraryDir, "song.mp3")
	tag, err := id3v2.Open(final, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("open tagged file: %v", err)
	}
	defer tag.Close()
	if tag.Title() != "Tagged Song" || tag.Artist() != "Tagged Artist" {
		t.Fatalf("tag = %q / %q", tag.Title(), tag.Artist())
	}
}
