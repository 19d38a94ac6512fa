package queue

import (
	"database/sql"
	"fmt"
)

// pending_writes holds at most one row per (namespace, cache_key). A newer
// write replaces the row and receives a fresh id.
const spoolSchema = `
CREATE TABLE IF NOT EXISTS pending_writes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  namespace TEXT NOT NULL,
  cache_key TEXT NOT NULL,
  value TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  due_at INTEGER NOT NULL,
  written_at INTEGER NOT NULL,
  last_error TEXT NOT NULL DEFAULT '',
  UNIQUE (namespace, cache_key)
);
CREATE INDEX IF NOT EXISTS idx_pending_writes_due ON pending_writes(namespace, due_at, id);
`

func migrateSpoolSchema(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("spool db is nil")
	}
	if _, err := db.Exec(spoolSchema); err != nil {
		return fmt.Errorf("migrate spool schema: %w", err)
	}
	return nil
}
