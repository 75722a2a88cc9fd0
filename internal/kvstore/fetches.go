package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FetchStatus is the last known outcome of fetching one asset.
type FetchStatus string

const (
	FetchRunning   FetchStatus = "running"
	FetchCompleted FetchStatus = "completed"
	FetchSkipped   FetchStatus = "skipped"
	FetchCancelled FetchStatus = "cancelled"
	FetchFailed    FetchStatus = "failed"
)

// IsTerminal reports whether the status ends a fetch.
func (s FetchStatus) IsTerminal() bool {
	return s != FetchRunning
}

// FetchRecord is one row of the fetch journal.
type FetchRecord struct {
	AssetID      string
	Title        string
	Status       FetchStatus
	OutputPath   string
	ErrorMessage string
	Bytes        int64
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// BeginFetch marks assetID as running, resetting any previous outcome.
func (s *Store) BeginFetch(ctx context.Context, assetID, title string) error {
	ts := s.timestamp()
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO fetches (asset_id, title, status, output_path, error_message, bytes, started_at, updated_at)
		 VALUES (?, ?, ?, '', '', 0, ?, ?)
		 ON CONFLICT(asset_id) DO UPDATE SET
		     title = excluded.title,
		     status = excluded.status,
		     output_path = '',
		     error_message = '',
		     bytes = 0,
		     started_at = excluded.started_at,
		     updated_at = excluded.updated_at`,
		assetID, title, FetchRunning, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("begin fetch %s: %w", assetID, err)
	}
	return nil
}

// FinishFetch records the terminal outcome for assetID.
func (s *Store) FinishFetch(ctx context.Context, assetID string, status FetchStatus, outputPath string, bytes int64, cause error) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish fetch %s: status %q is not terminal", assetID, status)
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	ts := s.timestamp()
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO fetches (asset_id, status, output_path, error_message, bytes, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(asset_id) DO UPDATE SET
		     status = excluded.status,
		     output_path = excluded.output_path,
		     error_message = excluded.error_message,
		     bytes = excluded.bytes,
		     updated_at = excluded.updated_at`,
		assetID, status, outputPath, message, bytes, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("finish fetch %s: %w", assetID, err)
	}
	return nil
}

// GetFetch returns the journal row for assetID, or nil when none exists.
func (s *Store) GetFetch(ctx context.Context, assetID string) (*FetchRecord, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectFetchColumns+" WHERE asset_id = ?", assetID)
	record, err := scanFetch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fetch %s: %w", assetID, err)
	}
	return record, nil
}

// RecentFetches returns up to limit journal rows, most recently updated first.
func (s *Store) RecentFetches(ctx context.Context, limit int) ([]FetchRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectFetchColumns+" ORDER BY updated_at DESC, asset_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list fetches: %w", err)
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		record, err := scanFetch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fetch: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetches: %w", err)
	}
	return records, nil
}

// ResetStuckFetches marks rows left running by an interrupted process as
// cancelled and returns how many were changed.
func (s *Store) ResetStuckFetches(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE fetches SET status = ?, error_message = ?, updated_at = ? WHERE status = ?",
			FetchCancelled, "interrupted", s.timestamp(), FetchRunning,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset stuck fetches: %w", err)
	}
	return affected, nil
}

const selectFetchColumns = `SELECT asset_id, title, status, output_path, error_message, bytes, started_at, updated_at FROM fetches`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFetch(row rowScanner) (*FetchRecord, error) {
	var (
		record    FetchRecord
		status    string
		startedAt string
		updatedAt string
	)
	if err := row.Scan(
		&record.AssetID,
		&record.Title,
		&status,
		&record.OutputPath,
		&record.ErrorMessage,
		&record.Bytes,
		&startedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = FetchStatus(status)
	record.StartedAt, _ = time.Parse(timestampLayout, startedAt)
	record.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
	return &record, nil
}
