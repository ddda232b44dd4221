package registry

import (
	"fmt"
	"time"
)

// MatchRecord is one duplicate hit recorded for manual review.
type MatchRecord struct {
	MatchedID  int64   `json:"matched_id"`
	Title      string  `json:"title,omitempty"`
	MatchType  string  `json:"match_type"`
	Similarity float64 `json:"similarity"`
}

// DuplicateEntry joins a quarantined note with one of its matches.
type DuplicateEntry struct {
	NoteID     int64     `json:"note_id"`
	FilePath   string    `json:"file_path"`
	MatchedID  int64     `json:"matched_id"`
	MatchType  string    `json:"match_type"`
	Similarity float64   `json:"similarity"`
	DetectedAt time.Time `json:"detected_at"`
}

// RecordMatches stores the full match list for a rejected note.
func (db *DB) RecordMatches(noteID int64, matches []MatchRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM duplicate_matches WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("registry: clear matches: %w", err)
	}
	now := time.Now().UTC()
	for _, m := range matches {
		_, err := tx.Exec(`
			INSERT INTO duplicate_matches (note_id, matched_id, match_type, similarity, detected_at)
			VALUES (?, ?, ?, ?, ?)
		`, noteID, m.MatchedID, m.MatchType, m.Similarity, now)
		if err != nil {
			return fmt.Errorf("registry: insert match: %w", err)
		}
	}
	return tx.Commit()
}

// ListDuplicates returns all recorded duplicate matches, newest first.
func (db *DB) ListDuplicates() ([]DuplicateEntry, error) {
	rows, err := db.conn.Query(`
		SELECT d.note_id, n.file_path, d.matched_id, d.match_type, d.similarity, d.detected_at
		FROM duplicate_matches d
		JOIN notes n ON n.id = d.note_id
		ORDER BY d.detected_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: list duplicates: %w", err)
	}
	defer rows.Close()

	var out []DuplicateEntry
	for rows.Next() {
		var e DuplicateEntry
		if err := rows.Scan(&e.NoteID, &e.FilePath, &e.MatchedID, &e.MatchType, &e.Similarity, &e.DetectedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
