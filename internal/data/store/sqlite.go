package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dtsresolve/internal/core/ports"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

var _ ports.DurableStore = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db        *sql.DB
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

func OpenSQLite(path, namespace string, ttl time.Duration) (*SQLiteStore, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("cache path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("cache path %q is a directory", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache sqlite %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache sqlite %q: %w", cleanPath, err)
	}
	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:        db,
		namespace: namespaceOrDefault(namespace),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

func migrateSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS cache_entries (
  namespace TEXT NOT NULL,
  cache_key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (namespace, cache_key)
);
`)
	if err != nil {
		return fmt.Errorf("migrate cache schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("cache store not initialized")
	}
	var (
		value     string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM cache_entries WHERE namespace = ? AND cache_key = ?`,
		s.namespace, key,
	).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache entry %q: %w", key, err)
	}
	if s.ttl > 0 && s.now().Sub(time.UnixMilli(updatedAt)) > s.ttl {
		return "", false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	return s.PutBatch(ctx, []ports.WriteRequest{{Key: key, Value: value}})
}

// PutBatch upserts every request in one transaction.
func (s *SQLiteStore) PutBatch(ctx context.Context, batch []ports.WriteRequest) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cache store not initialized")
	}
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO cache_entries (namespace, cache_key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(namespace, cache_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare cache upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC().UnixMilli()
	for _, req := range batch {
		if _, err := stmt.ExecContext(ctx, s.namespace, req.Key, req.Value, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert cache entry %q: %w", req.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
