package queue_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"melt/internal/queue"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewItemAndFetch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewItem(ctx, queue.KindConvert, "/in/album/song.ncm", "album/song.ncm")
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	if item.ID == 0 || item.Status != queue.StatusPending || item.Kind != queue.KindConvert {
		t.Fatalf("unexpected item: %+v", item)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil || fetched.SourcePath != "/in/album/song.ncm" {
		t.Fatalf("fetched = %+v", fetched)
	}
}

func TestNewItemDeduplicatesBySourcePath(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.NewItem(ctx, queue.KindConvert, "/in/song.ncm", "song.ncm")
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	second, err := store.NewItem(ctx, queue.KindConvert, "/in/song.ncm", "song.ncm")
	if err != nil {
		t.Fatalf("NewItem (repeat): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected deduplicated item, got ids %d and %d", first.ID, second.ID)
	}

	stats, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("total = %d, want 1", stats.Total)
	}
}

func TestClaimNextForStatuses(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.NewItem(ctx, queue.KindConvert, fmt.Sprintf("/in/%d.ncm", i), ""); err != nil {
			t.Fatalf("NewItem: %v", err)
		}
	}

	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		item, err := store.ClaimNextForStatuses(ctx, queue.StatusConverting, queue.StatusPending)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if item == nil {
			t.Fatalf("claim %d: no item", i)
		}
		if item.Status != queue.StatusConverting {
			t.Fatalf("claimed item status = %s", item.Status)
		}
		if seen[item.ID] {
			t.Fatalf("item %d claimed twice", item.ID)
		}
		seen[item.ID] = true
	}

	if item, err := store.ClaimNextForStatuses(ctx, queue.StatusConverting, queue.StatusPending); err != nil || item != nil {
		t.Fatalf("expected drained queue, got %+v / %v", item, err)
	}
}

func TestUpdatePersistsFields(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewItem(ctx, queue.KindConvert, "/in/x.ncm", "x.ncm")
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	item.Status = queue.StatusConverted
	item.Format = "flac"
	item.StagedFile = "/staging/x.flac"
	item.MetadataJSON = `{"musicName":"X"}`
	item.NeedsReview = true
	item.ReviewReason = "tag embedding failed"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusConverted || got.Format != "flac" || got.StagedFile != "/staging/x.flac" {
		t.Fatalf("got = %+v", got)
	}
	if !got.NeedsReview || got.ReviewReason != "tag embedding failed" {
		t.Fatalf("review fields lost: %+v", got)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	cases := []struct {
		stuck    queue.Status
		expected queue.Status
	}{
		{queue.StatusConverting, queue.StatusPending},
		{queue.StatusTagging, queue.StatusConverted},
		{queue.StatusOrganizing, queue.StatusTagged},
	}
	ids := make([]int64, 0, len(cases))
	for i, tc := range cases {
		item, err := store.NewItem(ctx, queue.KindConvert, fmt.Sprintf("/in/stuck-%d.ncm", i), "")
		if err != nil {
			t.Fatalf("NewItem: %v", err)
		}
		item.Status = tc.stuck
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update: %v", err)
		}
		ids = append(ids, item.ID)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != int64(len(cases)) {
		t.Fatalf("reset = %d, want %d", reset, len(cases))
	}
	for i, tc := range cases {
		got, err := store.GetByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status != tc.expected {
			t.Fatalf("%s rolled back to %s, want %s", tc.stuck, got.Status, tc.expected)
		}
	}
}

func TestRetryFailed(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	item, err := store.NewItem(ctx, queue.KindConvert, "/in/fail.ncm", "")
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	item.SetFailed("boom")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried = %d, want 1", retried)
	}
	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusPending || got.ErrorMessage != "" {
		t.Fatalf("got = %+v", got)
	}
}

func TestClearByStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	done, err := store.NewItem(ctx, queue.KindCopy, "/in/done.mp3", "")
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	done.Status = queue.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.NewItem(ctx, queue.KindConvert, "/in/keep.ncm", ""); err != nil {
		t.Fatalf("NewItem: %v", err)
	}

	removed, err := store.Clear(ctx, queue.StatusCompleted)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].SourcePath != "/in/keep.ncm" {
		t.Fatalf("items = %+v", items)
	}
}
