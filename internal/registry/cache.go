package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Cache entry states for the per-block workflow cache.
const (
	CacheWaiting   = "waiting"
	CacheProcessed = "processed"
	CacheError     = "error"
)

// CacheKey identifies one cached workflow block result.
type CacheKey struct {
	NoteID     int64
	Path       string
	BlockIndex int
	PromptName string
	Model      string
	Source     string
}

// GetCache returns the cached status and result for a key.
// ok is false when no entry exists.
func (db *DB) GetCache(key CacheKey) (status, result string, ok bool, err error) {
	err = db.conn.QueryRow(`
		SELECT status, result FROM workflow_cache
		WHERE note_id = ? AND path = ? AND block_index = ? AND prompt_name = ? AND model = ? AND source = ?
	`, key.NoteID, key.Path, key.BlockIndex, key.PromptName, key.Model, key.Source).Scan(&status, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("registry: get cache: %w", err)
	}
	return status, result, true, nil
}

// PutCache upserts a workflow cache entry.
func (db *DB) PutCache(key CacheKey, status, result string) error {
	_, err := db.conn.Exec(`
		INSERT INTO workflow_cache (note_id, path, block_index, prompt_name, model, source, status, result, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id, path, block_index, prompt_name, model, source) DO UPDATE SET
			status     = excluded.status,
			result     = excluded.result,
			updated_at = excluded.updated_at
	`, key.NoteID, key.Path, key.BlockIndex, key.PromptName, key.Model, key.Source, status, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("registry: put cache: %w", err)
	}
	return nil
}

// PurgeCache removes all cache entries for a note.
func (db *DB) PurgeCache(noteID int64) error {
	_, err := db.conn.Exec(`DELETE FROM workflow_cache WHERE note_id = ?`, noteID)
	if err != nil {
		return fmt.Errorf("registry: purge cache: %w", err)
	}
	return nil
}
