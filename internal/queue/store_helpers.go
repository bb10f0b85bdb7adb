package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, source_path, rel_path, kind, status, format, staged_file, artwork_file, final_file, metadata_json, error_message, needs_review, review_reason, progress_stage, progress_percent, progress_message, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              int64
		sourcePath      string
		relPath         sql.NullString
		kind            string
		statusStr       string
		format          sql.NullString
		stagedFile      sql.NullString
		artworkFile     sql.NullString
		finalFile       sql.NullString
		metadata        sql.NullString
		errorMessage    sql.NullString
		needsReview     sql.NullInt64
		reviewReason    sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&relPath,
		&kind,
		&statusStr,
		&format,
		&stagedFile,
		&artworkFile,
		&finalFile,
		&metadata,
		&errorMessage,
		&needsReview,
		&reviewReason,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		SourcePath:      sourcePath,
		RelPath:         relPath.String,
		Kind:            Kind(kind),
		Status:          Status(statusStr),
		Format:          format.String,
		StagedFile:      stagedFile.String,
		ArtworkFile:     artworkFile.String,
		FinalFile:       finalFile.String,
		MetadataJSON:    metadata.String,
		ErrorMessage:    errorMessage.String,
		ReviewReason:    reviewReason.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
