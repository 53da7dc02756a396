// Package cache keeps a local sqlite copy of Drive metadata for files this
// tool has created or touched.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the metadata cache.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache at path and applies migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SchemaVersion returns the applied migration level.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := d.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// Migrate applies every migration newer than the stored user_version.
func (d *DB) Migrate(ctx context.Context) error {
	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("cache schema version %d is newer than supported version %d", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply cache migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	mime_type TEXT,
	description TEXT,
	file_extension TEXT,
	file_size INTEGER,
	md5_checksum TEXT,
	created_date TEXT,
	modified_date TEXT,
	download_url TEXT,
	etag TEXT,
	kind TEXT
);

CREATE TABLE IF NOT EXISTS labels (
	file_id TEXT PRIMARY KEY,
	hidden INTEGER NOT NULL DEFAULT 0,
	starred INTEGER NOT NULL DEFAULT 0,
	trashed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS parents (
	file_id TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	PRIMARY KEY (file_id, parent_id)
);

CREATE TABLE IF NOT EXISTS user_permissions (
	file_id TEXT PRIMARY KEY,
	etag TEXT,
	kind TEXT,
	role TEXT,
	type TEXT
);

CREATE INDEX IF NOT EXISTS idx_files_title ON files(title);
`,
	`ALTER TABLE files ADD COLUMN cached_at INTEGER NOT NULL DEFAULT 0;`,
}
