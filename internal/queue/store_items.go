package queue

import (
	"context"
	"fmt"
	"time"
)

// List returns items filtered by status, newest last. No statuses means all items.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes items in the given statuses; without statuses it empties the queue.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	query := `DELETE FROM queue_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// RetryFailed rewinds failed and review items to pending so a new run picks
// them up from the top of the pipeline.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items
         SET status = ?, error_message = NULL, needs_review = 0, review_reason = NULL,
             progress_stage = NULL, progress_percent = 0, progress_message = NULL,
             updated_at = ?
         WHERE status IN (?, ?)`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusFailed,
		StatusReview,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// ResetStuckProcessing rewinds items stranded mid-stage by a killed run back
// to the start of that stage. Partial staging output is overwritten on retry.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var total int64
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	for _, transition := range stageRollbackTransitions {
		res, err := s.db.ExecContext(ctx,
			`UPDATE queue_items SET status = ?, updated_at = ? WHERE status = ?`,
			transition.to, timestamp, transition.from,
		)
		if err != nil {
			return total, fmt.Errorf("rollback %s items: %w", transition.from, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

// CountByStatus returns per-status item counts.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// Summary aggregates the per-status counts into headline stats.
func (s *Store) Summary(ctx context.Context) (Stats, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{}
	for status, count := range counts {
		stats.Total += count
		switch status {
		case StatusPending, StatusConverted, StatusTagged:
			stats.Pending += count
		case StatusConverting, StatusTagging, StatusOrganizing:
			stats.Processing += count
		case StatusCompleted:
			stats.Completed += count
		case StatusFailed:
			stats.Failed += count
		case StatusReview:
			stats.Review += count
		}
	}
	return stats, nil
}
