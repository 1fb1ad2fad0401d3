package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// ingestionLedger implements driven.IngestionLedger.
type ingestionLedger struct {
	store *Store
}

var _ driven.IngestionLedger = (*ingestionLedger)(nil)

// Get retrieves the record for (collection, path).
func (l *ingestionLedger) Get(ctx context.Context, collection, path string) (*domain.IngestionRecord, error) {
	row := l.store.db.QueryRowContext(ctx, `
		SELECT collection, path, content_hash, version, title, summary,
		       last_success, last_error, updated_at
		FROM ingestion_records WHERE collection = ? AND path = ?
	`, collection, path)

	return scanIngestionRecordRow(row)
}

// Put creates or replaces the record.
func (l *ingestionLedger) Put(ctx context.Context, rec domain.IngestionRecord) error {
	if rec.Collection == "" || rec.Path == "" {
		return domain.ErrInvalidInput
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO ingestion_records
			(collection, path, content_hash, version, title, summary, last_success, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, path) DO UPDATE SET
			content_hash = excluded.content_hash,
			version = excluded.version,
			title = excluded.title,
			summary = excluded.summary,
			last_success = excluded.last_success,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, rec.Collection, rec.Path, rec.ContentHash, rec.Version, rec.Title, rec.Summary,
		formatNullableTime(rec.LastSuccess), nullString(rec.LastError),
		rec.UpdatedAt.Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("saving ingestion record: %w", err)
	}
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (l *ingestionLedger) Delete(ctx context.Context, collection, path string) error {
	_, err := l.store.db.ExecContext(ctx,
		"DELETE FROM ingestion_records WHERE collection = ? AND path = ?",
		collection, path)
	if err != nil {
		return fmt.Errorf("deleting ingestion record: %w", err)
	}
	return nil
}

// ListPaths returns all recorded paths in the collection.
func (l *ingestionLedger) ListPaths(ctx context.Context, collection string) ([]string, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT path FROM ingestion_records WHERE collection = ? ORDER BY path
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying ledger paths: %w", err)
	}
	defer rows.Close()

	var paths []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning ledger path: %w", err)
		}
		paths = append(paths, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger paths: %w", err)
	}

	return paths, nil
}

// List returns all records in the collection.
func (l *ingestionLedger) List(ctx context.Context, collection string) ([]domain.IngestionRecord, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT collection, path, content_hash, version, title, summary,
		       last_success, last_error, updated_at
		FROM ingestion_records WHERE collection = ? ORDER BY path
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying ingestion records: %w", err)
	}
	defer rows.Close()

	var records []domain.IngestionRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanIngestionRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ingestion records: %w", err)
	}

	return records, nil
}

// scanIngestionRecordRow scans a single ingestion record row.
func scanIngestionRecordRow(row *sql.Row) (*domain.IngestionRecord, error) {
	var rec domain.IngestionRecord
	var lastSuccess, lastError, updatedAt sql.NullString

	if err := row.Scan(&rec.Collection, &rec.Path, &rec.ContentHash, &rec.Version,
		&rec.Title, &rec.Summary, &lastSuccess, &lastError, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning ingestion record: %w", err)
	}

	rec.LastSuccess = parseNullableTime(lastSuccess)
	if lastError.Valid {
		rec.LastError = lastError.String
	}
	rec.UpdatedAt = parseNullableTime(updatedAt)

	return &rec, nil
}

// scanIngestionRecordRows scans an ingestion record from *sql.Rows.
func scanIngestionRecordRows(rows *sql.Rows) (*domain.IngestionRecord, error) {
	var rec domain.IngestionRecord
	var lastSuccess, lastError, updatedAt sql.NullString

	if err := rows.Scan(&rec.Collection, &rec.Path, &rec.ContentHash, &rec.Version,
		&rec.Title, &rec.Summary, &lastSuccess, &lastError, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning ingestion record: %w", err)
	}

	rec.LastSuccess = parseNullableTime(lastSuccess)
	if lastError.Valid {
		rec.LastError = lastError.String
	}
	rec.UpdatedAt = parseNullableTime(updatedAt)

	return &rec, nil
}
