package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// RecordStore persists request records in the requests table.
type RecordStore struct {
	DB  *sql.DB
	now func() time.Time
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{DB: db, now: time.Now}
}

// Create inserts a pending record. Creating an id that already exists fails.
func (s *RecordStore) Create(ctx context.Context, queryID, query string) (*Record, error) {
	now := s.now()
	ts := formatTime(now)
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO requests (query_id, query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		queryID, query, string(StatusPending), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create record %s: %w", queryID, err)
	}
	return &Record{
		QueryID:   queryID,
		Query:     query,
		Status:    StatusPending,
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}, nil
}

func (s *RecordStore) Get(ctx context.Context, queryID string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx, selectRecord+` WHERE query_id = ?`, queryID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, queryID)
	}
	return rec, err
}

func (s *RecordStore) MarkInProgress(ctx context.Context, queryID string) error {
	return s.update(ctx, queryID,
		`UPDATE requests SET status = ?, error = NULL, updated_at = ? WHERE query_id = ?`,
		string(StatusInProgress), formatTime(s.now()), queryID)
}

// MarkDone stores result and the completion timestamp.
func (s *RecordStore) MarkDone(ctx context.Context, queryID string, result []byte) error {
	ts := formatTime(s.now())
	return s.update(ctx, queryID,
		`UPDATE requests SET status = ?, result = ?, updated_at = ?, completed_at = ? WHERE query_id = ?`,
		string(StatusDone), nullable(result), ts, ts, queryID)
}

// MarkFailed stores the failure reason together with whatever partial
// result the run produced before failing.
func (s *RecordStore) MarkFailed(ctx context.Context, queryID, reason string, partial []byte) error {
	ts := formatTime(s.now())
	return s.update(ctx, queryID,
		`UPDATE requests SET status = ?, error = ?, result = COALESCE(?, result), updated_at = ?, completed_at = ? WHERE query_id = ?`,
		string(StatusFailed), reason, nullable(partial), ts, ts, queryID)
}

// List returns the most recent records first.
func (s *RecordStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, selectRecord+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ListStale returns records in status whose last update is older than before.
func (s *RecordStore) ListStale(ctx context.Context, status Status, before time.Time) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx,
		selectRecord+` WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		string(status), formatTime(before))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *RecordStore) update(ctx context.Context, queryID, query string, args ...any) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", queryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, queryID)
	}
	return nil
}

const selectRecord = `SELECT query_id, query, status, result, error, created_at, updated_at, completed_at FROM requests`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec              Record
		status           string
		result, errMsg   sql.NullString
		created, updated string
		completed        sql.NullString
	)
	if err := row.Scan(&rec.QueryID, &rec.Query, &status, &result, &errMsg, &created, &updated, &completed); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if result.Valid && result.String != "" {
		rec.Result = []byte(result.String)
	}
	rec.Error = errMsg.String
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	if completed.Valid {
		t := parseTime(completed.String)
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
