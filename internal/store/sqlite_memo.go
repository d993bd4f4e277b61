package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteBackend keeps memo entries in the memo table. Each Put touches a
// single row, so concurrent writers never drop each other's entries.
type SQLiteBackend struct {
	DB *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{DB: db}
}

func (b *SQLiteBackend) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := b.DB.QueryRowContext(ctx,
		`SELECT value FROM memo WHERE namespace = ? AND key = ?`, string(ns), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	_, err := b.DB.ExecContext(ctx,
		`INSERT INTO memo (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(ns), key, value, formatTime(time.Now()))
	return err
}

func (b *SQLiteBackend) Clear(ctx context.Context, ns Namespace) error {
	_, err := b.DB.ExecContext(ctx, `DELETE FROM memo WHERE namespace = ?`, string(ns))
	return err
}
