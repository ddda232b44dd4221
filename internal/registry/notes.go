package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/halver/muninn/internal/apperr"
	"github.com/halver/muninn/internal/models"
)

// NoteUpdate is a partial update. Nil fields are left untouched.
// Category and subcategory are never accepted from callers: they are
// always recomputed from the note's current folder path.
type NoteUpdate struct {
	Title       *string
	Status      *models.Status
	WordCount   *int
	ContentHash *string
	SourceHash  *string
	Language    *string
}

// ArchivedNote is the projection the duplicate detector matches against.
type ArchivedNote struct {
	ID          int64
	Title       string
	ContentHash string
	SourceHash  string
}

// ResolveOrCreate looks a note up by file path, creating a draft row
// (and any missing folder/category rows) when absent. A write against
// an already-registered path upserts the existing row.
func (db *DB) ResolveOrCreate(filePath string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM notes WHERE file_path = ?`, filePath).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("registry: resolve %s: %w", filePath, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	d, err := db.deriveFolder(tx, filePath)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	title := strings.TrimSuffix(path.Base(filePath), ".md")
	_, err = tx.Exec(`
		INSERT INTO notes (file_path, title, status, folder_id, category_id, subcategory_id, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET modified_at = excluded.modified_at
	`, filePath, title, string(models.StatusDraft), d.folderID, d.categoryID, d.subcategoryID, now, now)
	if err != nil {
		return 0, fmt.Errorf("registry: create note %s: %w", filePath, err)
	}
	if err := tx.QueryRow(`SELECT id FROM notes WHERE file_path = ?`, filePath).Scan(&id); err != nil {
		return 0, fmt.Errorf("registry: created note id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("registry: commit: %w", err)
	}
	return id, nil
}

// GetNote returns a note by id, including its tags.
func (db *DB) GetNote(id int64) (*models.Note, error) {
	return db.getNote(`SELECT id, file_path, title, status, parent_id, folder_id, category_id, subcategory_id,
		created_at, modified_at, word_count, content_hash, source_hash, language
		FROM notes WHERE id = ?`, id)
}

// GetNoteByPath returns a note by file path, including its tags.
func (db *DB) GetNoteByPath(filePath string) (*models.Note, error) {
	return db.getNote(`SELECT id, file_path, title, status, parent_id, folder_id, category_id, subcategory_id,
		created_at, modified_at, word_count, content_hash, source_hash, language
		FROM notes WHERE file_path = ?`, filePath)
}

func (db *DB) getNote(query string, arg any) (*models.Note, error) {
	var n models.Note
	var parent, folder, cat, sub sql.NullInt64
	err := db.conn.QueryRow(query, arg).Scan(
		&n.ID, &n.FilePath, &n.Title, &n.Status, &parent, &folder, &cat, &sub,
		&n.CreatedAt, &n.ModifiedAt, &n.WordCount, &n.ContentHash, &n.SourceHash, &n.Language,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get note: %w", err)
	}
	n.ParentID = nullable(parent)
	n.FolderID = nullable(folder)
	n.CategoryID = nullable(cat)
	n.SubcategoryID = nullable(sub)

	tags, err := db.tags(n.ID)
	if err != nil {
		return nil, err
	}
	n.Tags = tags
	return &n, nil
}

// UpdateNote applies a partial update and recomputes the folder-derived
// category and subcategory from the note's current path.
func (db *DB) UpdateNote(id int64, upd NoteUpdate) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var filePath string
	if err := tx.QueryRow(`SELECT file_path FROM notes WHERE id = ?`, id).Scan(&filePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("registry: update lookup: %w", err)
	}

	sets := []string{"modified_at = ?"}
	args := []any{time.Now().UTC()}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.WordCount != nil {
		sets = append(sets, "word_count = ?")
		args = append(args, *upd.WordCount)
	}
	if upd.ContentHash != nil {
		sets = append(sets, "content_hash = ?")
		args = append(args, *upd.ContentHash)
	}
	if upd.SourceHash != nil {
		sets = append(sets, "source_hash = ?")
		args = append(args, *upd.SourceHash)
	}
	if upd.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *upd.Language)
	}

	d, err := db.deriveFolder(tx, filePath)
	if err != nil {
		return err
	}
	sets = append(sets, "folder_id = ?", "category_id = ?", "subcategory_id = ?")
	args = append(args, d.folderID, d.categoryID, d.subcategoryID)

	args = append(args, id)
	if _, err := tx.Exec(`UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("registry: update note %d: %w", id, err)
	}
	return tx.Commit()
}

// UpdateNotePath moves a note to a new file path and re-derives its
// folder, category, and subcategory from the destination.
func (db *DB) UpdateNotePath(id int64, newPath string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	d, err := db.deriveFolder(tx, newPath)
	if err != nil {
		return err
	}
	res, err := tx.Exec(`
		UPDATE notes SET file_path = ?, folder_id = ?, category_id = ?, subcategory_id = ?, modified_at = ?
		WHERE id = ?
	`, newPath, d.folderID, d.categoryID, d.subcategoryID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("registry: update path %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return tx.Commit()
}

// SetTags replaces all tags on a note.
func (db *DB) SetTags(id int64, tags []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM note_tags WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("registry: clear tags: %w", err)
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO note_tags (note_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return fmt.Errorf("registry: insert tag: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteNote removes a note row; tags and duplicate matches cascade.
// Pairing consequences (archive cascade, synthesis orphaning) are the
// caller's responsibility per the lifecycle rules.
func (db *DB) DeleteNote(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: delete note %d: %w", id, err)
	}
	return nil
}

// LinkPair sets parent_id on both sides of an archive/synthesis pair.
func (db *DB) LinkPair(aID, bID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`UPDATE notes SET parent_id = ? WHERE id = ?`, bID, aID); err != nil {
		return fmt.Errorf("registry: link %d->%d: %w", aID, bID, err)
	}
	if _, err := tx.Exec(`UPDATE notes SET parent_id = ? WHERE id = ?`, aID, bID); err != nil {
		return fmt.Errorf("registry: link %d->%d: %w", bID, aID, err)
	}
	return tx.Commit()
}

// UnlinkParent nulls a note's parent_id (orphaning, not deletion).
func (db *DB) UnlinkParent(id int64) error {
	_, err := db.conn.Exec(`UPDATE notes SET parent_id = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: unlink %d: %w", id, err)
	}
	return nil
}

// PairOf returns the paired partner of a note, or nil when unpaired.
func (db *DB) PairOf(id int64) (*models.Note, error) {
	n, err := db.GetNote(id)
	if err != nil {
		return nil, err
	}
	if n.ParentID == nil {
		return nil, nil
	}
	partner, err := db.GetNote(*n.ParentID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return partner, err
}

// ArchivedNotes returns the hash/title projection of every note in the
// archive state, for duplicate admission control.
func (db *DB) ArchivedNotes() ([]ArchivedNote, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, content_hash, source_hash FROM notes WHERE status = ?
	`, string(models.StatusArchive))
	if err != nil {
		return nil, fmt.Errorf("registry: archived notes: %w", err)
	}
	defer rows.Close()

	var out []ArchivedNote
	for rows.Next() {
		var a ArchivedNote
		if err := rows.Scan(&a.ID, &a.Title, &a.ContentHash, &a.SourceHash); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListNotes returns notes filtered by status (empty = all), newest first.
func (db *DB) ListNotes(status string, limit, offset int) ([]models.Note, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("registry: count notes: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := db.conn.Query(`
		SELECT id, file_path, title, status, parent_id, word_count, modified_at
		FROM notes `+where+` ORDER BY modified_at DESC LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		var parent sql.NullInt64
		if err := rows.Scan(&n.ID, &n.FilePath, &n.Title, &n.Status, &parent, &n.WordCount, &n.ModifiedAt); err != nil {
			return nil, 0, err
		}
		n.ParentID = nullable(parent)
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// SearchNotes matches title or path substrings, for the inspection
// surfaces only; the dispatcher never searches.
func (db *DB) SearchNotes(query string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, file_path, title, status, parent_id, word_count, modified_at
		FROM notes WHERE title LIKE ? OR file_path LIKE ?
		ORDER BY modified_at DESC LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("registry: search notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var n models.Note
		var parent sql.NullInt64
		if err := rows.Scan(&n.ID, &n.FilePath, &n.Title, &n.Status, &parent, &n.WordCount, &n.ModifiedAt); err != nil {
			return nil, err
		}
		n.ParentID = nullable(parent)
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllPaths returns every registered note path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT file_path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("registry: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

func (db *DB) tags(noteID int64) ([]string, error) {
	rows, err := db.conn.Query(`SELECT tag FROM note_tags WHERE note_id = ? ORDER BY tag`, noteID)
	if err != nil {
		return nil, fmt.Errorf("registry: tags: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
