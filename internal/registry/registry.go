// Package registry provides the SQLite-backed note registry: identity
// resolution, field updates, folder and category derivation, pairing,
// and cascade-delete rules.
package registry

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/halver/muninn/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS categories (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	parent_id   INTEGER REFERENCES categories(id),
	description TEXT NOT NULL DEFAULT '',
	prompt_name TEXT NOT NULL DEFAULT '',
	UNIQUE(name, parent_id)
);

CREATE TABLE IF NOT EXISTS folders (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	path           TEXT NOT NULL UNIQUE,
	folder_type    TEXT NOT NULL DEFAULT 'storage',
	parent_id      INTEGER REFERENCES folders(id),
	category_id    INTEGER REFERENCES categories(id),
	subcategory_id INTEGER REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS notes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path      TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'draft',
	parent_id      INTEGER REFERENCES notes(id),
	folder_id      INTEGER REFERENCES folders(id),
	category_id    INTEGER REFERENCES categories(id),
	subcategory_id INTEGER REFERENCES categories(id),
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	word_count     INTEGER NOT NULL DEFAULT 0,
	content_hash   TEXT NOT NULL DEFAULT '',
	source_hash    TEXT NOT NULL DEFAULT '',
	language       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_notes_status ON notes(status);
CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_id);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag     TEXT NOT NULL,
	UNIQUE(note_id, tag)
);

CREATE TABLE IF NOT EXISTS duplicate_matches (
	note_id     INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	matched_id  INTEGER NOT NULL,
	match_type  TEXT NOT NULL,
	similarity  REAL NOT NULL,
	detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS workflow_cache (
	note_id     INTEGER NOT NULL,
	path        TEXT NOT NULL,
	block_index INTEGER NOT NULL,
	prompt_name TEXT NOT NULL,
	model       TEXT NOT NULL,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'waiting',
	result      TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(note_id, path, block_index, prompt_name, model, source)
);
`

// Root describes one classified vault root. Categorized roots derive a
// note's category from the first path segment under the root and the
// subcategory from the second.
type Root struct {
	Path        string
	Workflow    string
	FolderType  models.FolderType
	Categorized bool
}

// DB wraps a sql.DB with registry operations.
type DB struct {
	conn  *sql.DB
	roots []Root
}

// Open opens (or creates) the SQLite registry and applies the schema.
func Open(dsn string, roots []Root) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &DB{conn: conn, roots: roots}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
