package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"melt/internal/config"
)

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "queue.db"))
}

// OpenPath connects to the queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewItem enqueues a source file. Re-enqueueing a source path that is already
// queued returns the existing item untouched, so repeated scans are cheap.
func (s *Store) NewItem(ctx context.Context, kind Kind, sourcePath, relPath string) (*Item, error) {
	if sourcePath == "" {
		return nil, errors.New("source path must not be empty")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO queue_items (
            source_path, rel_path, kind, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		sourcePath,
		nullableString(relPath),
		string(kind),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return s.FindBySource(ctx, sourcePath)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindBySource returns the item for a source path, nil when absent.
func (s *Store) FindBySource(ctx context.Context, sourcePath string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE source_path = ?`, sourcePath)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET source_path = ?, rel_path = ?, kind = ?, status = ?, format = ?,
             staged_file = ?, artwork_file = ?, final_file = ?, metadata_json = ?,
             error_message = ?, needs_review = ?, review_reason = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             updated_at = ?
         WHERE id = ?`,
		item.SourcePath,
		nullableString(item.RelPath),
		string(item.Kind),
		item.Status,
		nullableString(item.Format),
		nullableString(item.StagedFile),
		nullableString(item.ArtworkFile),
		nullableString(item.FinalFile),
		nullableString(item.MetadataJSON),
		nullableString(item.ErrorMessage),
		boolToInt(item.NeedsReview),
		nullableString(item.ReviewReason),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ClaimNextForStatuses atomically transitions the oldest item matching any of
// the given statuses into the processing status and returns it. Atomicity is
// what lets several workers share one queue without double-claiming.
func (s *Store) ClaimNextForStatuses(ctx context.Context, processing Status, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+2)
	args = append(args, string(processing), time.Now().UTC().Format(time.RFC3339Nano))
	for _, status := range statuses {
		args = append(args, status)
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM queue_items WHERE status IN (`+placeholders+`)
             ORDER BY created_at, id LIMIT 1
         )
         RETURNING `+itemColumns,
		args...,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next item: %w", err)
	}
	return item, nil
}

// NextForStatuses returns the oldest item matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE status IN (`+placeholders+`) ORDER BY created_at, id LIMIT 1`,
		args...,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}
