package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/halver/muninn/internal/models"
)

// derived is the folder/category triple computed from a file path.
// Category and subcategory on the containing folder are the source of
// truth for any note inside it; the header-declared category is only
// advisory input.
type derived struct {
	folderID      sql.NullInt64
	categoryID    sql.NullInt64
	subcategoryID sql.NullInt64
}

// matchRoot returns the longest configured root containing p, or nil.
func (db *DB) matchRoot(p string) *Root {
	var best *Root
	for i := range db.roots {
		r := &db.roots[i]
		if p != r.Path && !strings.HasPrefix(p, r.Path+"/") {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}
	return best
}

// deriveFolder lazily creates the Folder (and Category) rows for the
// directory containing filePath and returns their ids. Calling it twice
// with the same folder produces the same ids.
func (db *DB) deriveFolder(tx *sql.Tx, filePath string) (derived, error) {
	var d derived

	dir := path.Dir(filePath)
	if dir == "." || dir == "" {
		return d, nil
	}

	root := db.matchRoot(dir)

	folderType := models.FolderTechnical
	if root != nil {
		folderType = root.FolderType
	}
	if path.Base(dir) == "Archives" {
		folderType = models.FolderArchive
	}

	if root != nil && root.Categorized {
		segs := segmentsUnder(root.Path, dir)
		if len(segs) > 0 && segs[0] != "Archives" {
			catID, err := db.ensureCategory(tx, segs[0], nil)
			if err != nil {
				return d, err
			}
			d.categoryID = sql.NullInt64{Int64: catID, Valid: true}
			if len(segs) > 1 && segs[1] != "Archives" {
				subID, err := db.ensureCategory(tx, segs[1], &catID)
				if err != nil {
					return d, err
				}
				d.subcategoryID = sql.NullInt64{Int64: subID, Valid: true}
			}
		}
	}

	// Create the folder chain so parent_id links stay intact. Only the
	// leaf folder carries the derived category ids.
	var parentID sql.NullInt64
	segs := strings.Split(dir, "/")
	for i := range segs {
		prefix := strings.Join(segs[:i+1], "/")
		leaf := i == len(segs)-1
		id, err := db.ensureFolderRow(tx, prefix, folderType, parentID, d, leaf)
		if err != nil {
			return d, err
		}
		parentID = sql.NullInt64{Int64: id, Valid: true}
	}
	d.folderID = parentID
	return d, nil
}

func (db *DB) ensureFolderRow(tx *sql.Tx, p string, ft models.FolderType, parent sql.NullInt64, d derived, leaf bool) (int64, error) {
	var err error
	if leaf {
		_, err = tx.Exec(`
			INSERT INTO folders (path, folder_type, parent_id, category_id, subcategory_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				folder_type    = excluded.folder_type,
				category_id    = excluded.category_id,
				subcategory_id = excluded.subcategory_id
		`, p, string(ft), parent, d.categoryID, d.subcategoryID)
	} else {
		_, err = tx.Exec(`
			INSERT INTO folders (path, folder_type, parent_id)
			VALUES (?, ?, ?)
			ON CONFLICT(path) DO NOTHING
		`, p, string(ft), parent)
	}
	if err != nil {
		return 0, fmt.Errorf("registry: upsert folder %s: %w", p, err)
	}
	var id int64
	if err := tx.QueryRow(`SELECT id FROM folders WHERE path = ?`, p).Scan(&id); err != nil {
		return 0, fmt.Errorf("registry: folder id %s: %w", p, err)
	}
	return id, nil
}

// ensureCategory returns the id of the named category (or subcategory
// when parentID is non-nil), inserting the row on first sight.
func (db *DB) ensureCategory(tx *sql.Tx, name string, parentID *int64) (int64, error) {
	var row *sql.Row
	if parentID != nil {
		row = tx.QueryRow(`SELECT id FROM categories WHERE name = ? AND parent_id = ?`, name, *parentID)
	} else {
		row = tx.QueryRow(`SELECT id FROM categories WHERE name = ? AND parent_id IS NULL`, name)
	}

	var id int64
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("registry: lookup category %s: %w", name, err)
	}

	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	res, err := tx.Exec(`INSERT INTO categories (name, parent_id) VALUES (?, ?)`, name, parent)
	if err != nil {
		return 0, fmt.Errorf("registry: insert category %s: %w", name, err)
	}
	return res.LastInsertId()
}

// Categories returns the full category tree, top-level rows first.
func (db *DB) Categories() ([]models.Category, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, parent_id, description, prompt_name
		FROM categories ORDER BY parent_id IS NOT NULL, name
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: categories: %w", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		var parent sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &parent, &c.Description, &c.PromptName); err != nil {
			return nil, err
		}
		if parent.Valid {
			v := parent.Int64
			c.ParentID = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func segmentsUnder(root, dir string) []string {
	if dir == root {
		return nil
	}
	rel := strings.TrimPrefix(dir, root+"/")
	if rel == dir {
		return nil
	}
	return strings.Split(rel, "/")
}
