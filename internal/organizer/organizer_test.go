package organizer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"melt/internal/logging"
	"melt/internal/queue"
	"melt/internal/testsupport"
)

func writeStaged(t *testing.T, dir, name string, payload []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write staged file: %v", err)
	}
	return path
}

func TestExecuteMovesIntoLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	payload := []byte("decoded audio")
	staged := writeStaged(t, cfg.Paths.StagingDir, filepath.Join("album", "track.mp3"), payload)
	sidecar := writeStaged(t, cfg.Paths.StagingDir, filepath.Join("album", "track.cover"), []byte{1, 2})

	item := &queue.Item{
		Kind:        queue.KindConvert,
		Status:      queue.StatusOrganizing,
		SourcePath:  "/in/album/track.ncm",
		RelPath:     filepath.Join("album", "track.ncm"),
		Format:      "mp3",
		StagedFile:  staged,
		ArtworkFile: sidecar,
	}
	org := New(cfg, store, logging.NewNop())
	if err := org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := filepath.Join(cfg.Paths.LibraryDir, "album", "track.mp3")
	if item.FinalFile != want {
		t.Fatalf("final file = %q, want %q", item.FinalFile, want)
	}
	moved, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read library file: %v", err)
	}
	if string(moved) != string(payload) {
		t.Fatal("library file does not match staged payload")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged file left behind after move")
	}
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Fatal("artwork sidecar left behind after move")
	}
}

func TestExecuteRoutesExistingTargetToReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	staged := writeStaged(t, cfg.Paths.StagingDir, "track.mp3", []byte("new"))
	writeStaged(t, cfg.Paths.LibraryDir, "track.mp3", []byte("old"))

	item := &queue.Item{
		Kind:       queue.KindConvert,
		Status:     queue.StatusOrganizing,
		SourcePath: "/in/track.ncm",
		RelPath:    "track.ncm",
		Format:     "mp3",
		StagedFile: staged,
	}
	org := New(cfg, store, logging.NewNop())
	if err := org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !item.NeedsReview {
		t.Fatal("expected review routing for existing target")
	}
	existing, err := os.ReadFile(filepath.Join(cfg.Paths.LibraryDir, "track.mp3"))
	if err != nil {
		t.Fatalf("read library file: %v", err)
	}
	if string(existing) != "old" {
		t.Fatal("existing library file was overwritten")
	}
	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("staged file should remain for review: %v", err)
	}
}

func TestExecuteOverwritesWhenConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOverwrite())
	store := testsupport.MustOpenStore(t, cfg)

	staged := writeStaged(t, cfg.Paths.StagingDir, "track.mp3", []byte("new"))
	writeStaged(t, cfg.Paths.LibraryDir, "track.mp3", []byte("old"))

	item := &queue.Item{
		Kind:       queue.KindConvert,
		Status:     queue.StatusOrganizing,
		SourcePath: "/in/track.ncm",
		RelPath:    "track.ncm",
		Format:     "mp3",
		StagedFile: staged,
	}
	org := New(cfg, store, logging.NewNop())
	if err := org.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.NeedsReview {
		t.Fatal("overwrite mode should not route to review")
	}
	replaced, err := os.ReadFile(filepath.Join(cfg.Paths.LibraryDir, "track.mp3"))
	if err != nil {
		t.Fatalf("read library file: %v", err)
	}
	if string(replaced) != "new" {
		t.Fatal("library file was not replaced")
	}
}

func TestExecuteRequiresStagedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item := &queue.Item{Kind: queue.KindConvert, Status: queue.StatusOrganizing}
	org := New(cfg, store, logging.NewNop())
	if err := org.Execute(context.Background(), item); err == nil {
		t.Fatal("expected error for missing staged file")
	}
}
