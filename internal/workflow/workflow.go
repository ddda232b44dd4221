// Package workflow implements the per-root note lifecycles: import
// (duplicate gate, synthesis generation, archive pairing) and storage
// (edit-triggered regeneration). Handlers run under the dispatcher's
// per-note lock.
package workflow

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/halver/muninn/internal/checksum"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

const timeLayout = "2006-01-02 15:04"

// headerStatus extracts the status declared in a parsed header block,
// empty when absent or unknown.
func headerStatus(res *parser.Result) models.Status {
	if res.Header == nil {
		return ""
	}
	st := models.Status(res.Header.Status)
	if !st.Valid() {
		return ""
	}
	return st
}

// refreshRow brings the registry row in line with file content without
// a lifecycle transition.
func refreshRow(reg *registry.DB, note *models.Note, res *parser.Result, raw []byte) error {
	hash := checksum.Sum(raw)
	srcHash := ""
	if res.Header != nil {
		srcHash = checksum.SourceSum(res.Header.Source)
	}
	upd := registry.NoteUpdate{
		WordCount:   &res.WordCount,
		ContentHash: &hash,
		SourceHash:  &srcHash,
	}
	if res.Title != "" {
		upd.Title = &res.Title
	}
	if err := reg.UpdateNote(note.ID, upd); err != nil {
		return err
	}
	if res.Header != nil && len(res.Header.Tags) > 0 {
		return reg.SetTags(note.ID, res.Header.Tags)
	}
	return nil
}

// setStatus persists a status change and reports it.
func setStatus(reg *registry.DB, pub Publisher, note *models.Note, to models.Status) error {
	from := note.Status
	if from == to {
		return nil
	}
	if err := reg.UpdateNote(note.ID, registry.NoteUpdate{Status: &to}); err != nil {
		return err
	}
	note.Status = to
	if pub != nil {
		pub.PublishStatusChange(note.FilePath, from, to)
	}
	return nil
}

// Publisher mirrors the dispatcher's publisher; handlers report status
// transitions through it.
type Publisher interface {
	PublishStatusChange(path string, from, to models.Status)
}

// uniquePath appends a numeric suffix until p does not collide with an
// existing file.
func uniquePath(store storage.Provider, p string) string {
	if !store.Exists(p) {
		return p
	}
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !store.Exists(candidate) {
			return candidate
		}
	}
}

// synthesisHeader builds the header block for a generated synthesis,
// carrying provenance fields over from the original capture.
func synthesisHeader(orig *parser.Header, title, summary string, wordCount int) *parser.Header {
	hdr := &parser.Header{}
	if orig != nil {
		*hdr = *orig
	}
	hdr.Title = title
	hdr.Status = string(models.StatusSynthesis)
	hdr.Summary = summary
	hdr.WordCount = wordCount
	hdr.LastModified = time.Now().Format(timeLayout)
	if hdr.Created == "" {
		hdr.Created = time.Now().Format(timeLayout)
	}
	return hdr
}
