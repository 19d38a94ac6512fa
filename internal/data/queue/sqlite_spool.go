package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dtsresolve/internal/core/ports"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

var _ ports.WriteSpoolPort = (*SQLiteSpool)(nil)

// SQLiteSpool persists cache writes the memory queue could not take or the
// store failed to apply. Rows are partitioned by namespace so one spool file
// can serve several registries.
type SQLiteSpool struct {
	db        *sql.DB
	namespace string
}

func OpenSQLiteSpool(path string, namespace string) (*SQLiteSpool, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("spool path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("spool path %q is a directory", cleanPath)
	}
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create spool directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriverName, "file:"+cleanPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open spool %q: %w", cleanPath, err)
	}
	// one connection serializes writers within the process
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping spool %q: %w", cleanPath, err)
	}
	if err := migrateSpoolSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	ns := strings.TrimSpace(namespace)
	if ns == "" {
		ns = "default"
	}
	return &SQLiteSpool{db: db, namespace: ns}, nil
}

// Enqueue stores req as due now, replacing any pending write to the same key.
func (s *SQLiteSpool) Enqueue(req ports.WriteRequest) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	now := time.Now().UTC().UnixMilli()
	_, err := s.db.Exec(`
INSERT OR REPLACE INTO pending_writes (namespace, cache_key, value, attempts, due_at, written_at, last_error)
VALUES (?, ?, ?, 0, ?, ?, '')`, s.namespace, req.Key, req.Value, now, now)
	if err != nil {
		return fmt.Errorf("spool write %q: %w", req.Key, err)
	}
	return nil
}

// DequeueBatch returns up to maxItems due rows, oldest first. Rows stay in
// the spool until acknowledged.
func (s *SQLiteSpool) DequeueBatch(ctx context.Context, maxItems int) ([]ports.SpoolRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("spool not initialized")
	}
	if maxItems <= 0 {
		maxItems = 1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, cache_key, value, attempts FROM pending_writes
WHERE namespace = ? AND due_at <= ?
ORDER BY id LIMIT ?`, s.namespace, time.Now().UTC().UnixMilli(), maxItems)
	if err != nil {
		return nil, fmt.Errorf("read due spool rows: %w", err)
	}
	defer rows.Close()

	var out []ports.SpoolRow
	for rows.Next() {
		var row ports.SpoolRow
		if err := rows.Scan(&row.ID, &row.Request.Key, &row.Request.Value, &row.Attempts); err != nil {
			return nil, fmt.Errorf("scan spool row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spool rows: %w", err)
	}
	return out, nil
}

// Ack removes applied rows. A row replaced by a newer write since it was
// dequeued has a new id and is left in place.
func (s *SQLiteSpool) Ack(ids []int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	return s.eachInTx("ack", ids, `DELETE FROM pending_writes WHERE namespace = ? AND id = ?`, func(stmt *sql.Stmt, id int64) error {
		_, err := stmt.Exec(s.namespace, id)
		return err
	})
}

// Nack records a failed attempt and defers the rows until nextAttemptAt.
func (s *SQLiteSpool) Nack(rows []ports.SpoolRow, nextAttemptAt time.Time, lastErr string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("spool not initialized")
	}
	attempts := make(map[int64]int, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		attempts[row.ID] = row.Attempts + 1
		ids = append(ids, row.ID)
	}
	due := nextAttemptAt.UTC().UnixMilli()
	return s.eachInTx("nack", ids, `
UPDATE pending_writes SET attempts = ?, due_at = ?, last_error = ?
WHERE namespace = ? AND id = ?`, func(stmt *sql.Stmt, id int64) error {
		_, err := stmt.Exec(attempts[id], due, lastErr, s.namespace, id)
		return err
	})
}

// eachInTx runs query once per id inside a single transaction.
func (s *SQLiteSpool) eachInTx(op string, ids []int64, query string, exec func(*sql.Stmt, int64) error) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("spool %s: begin: %w", op, err)
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("spool %s: prepare: %w", op, err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if err := exec(stmt, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("spool %s row %d: %w", op, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("spool %s: commit: %w", op, err)
	}
	return nil
}

func (s *SQLiteSpool) PendingCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("spool not initialized")
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pending_writes WHERE namespace = ?`, s.namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count spool rows: %w", err)
	}
	return count, nil
}

func (s *SQLiteSpool) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
