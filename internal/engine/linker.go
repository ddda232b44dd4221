package engine

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/halver/muninn/internal/checksum"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

// ArchivesDirName is the subfolder holding frozen originals, relative
// to the synthesis's folder.
const ArchivesDirName = "Archives"

var backLinkRe = regexp.MustCompile(`(?m)^> Original: \[[^\]]*\]\([^)]*\)\n?`)

// Linker maintains the archive↔synthesis cross-link: pairing rows,
// archive placement, and the embedded back-link near the top of the
// synthesis body. Pairing invariants are enforced only here.
type Linker struct {
	store  storage.Provider
	reg    *registry.DB
	logger *slog.Logger
}

// NewLinker creates a linker over the given store and registry.
func NewLinker(store storage.Provider, reg *registry.DB, logger *slog.Logger) *Linker {
	return &Linker{store: store, reg: reg, logger: logger}
}

// CreatePair persists original as the frozen archive of synth: the file
// goes under the Archives subfolder next to the synthesis (renamed with
// a numeric suffix on collision), both rows get parent_id set, and the
// archive row is marked status=archive.
func (l *Linker) CreatePair(synth *models.Note, original []byte) (*models.Note, error) {
	archPath := l.archivePathFor(synth.FilePath)

	if err := l.store.Write(archPath, original); err != nil {
		return nil, fmt.Errorf("linker: write archive: %w", err)
	}

	archID, err := l.reg.ResolveOrCreate(archPath)
	if err != nil {
		return nil, err
	}

	res, err := parser.Parse(original)
	if err != nil {
		return nil, err
	}
	status := models.StatusArchive
	hash := checksum.Sum(original)
	srcHash := ""
	if res.Header != nil {
		srcHash = checksum.SourceSum(res.Header.Source)
	}
	title := res.Title
	if err := l.reg.UpdateNote(archID, registry.NoteUpdate{
		Status:      &status,
		Title:       &title,
		WordCount:   &res.WordCount,
		ContentHash: &hash,
		SourceHash:  &srcHash,
	}); err != nil {
		return nil, err
	}

	if err := l.reg.LinkPair(synth.ID, archID); err != nil {
		return nil, err
	}

	l.logger.Info("linker: pair created",
		slog.Int64("synthesis_id", synth.ID),
		slog.Int64("archive_id", archID),
		slog.String("archive_path", archPath))

	return l.reg.GetNote(archID)
}

// EmbedBackLink inserts (or replaces) the "see original" reference near
// the top of a synthesis body, pointing at the archive's location
// relative to the synthesis file.
func (l *Linker) EmbedBackLink(body, synthPath, archPath string) string {
	rel := relativeTo(synthPath, archPath)
	line := fmt.Sprintf("> Original: [%s](%s)\n", path.Base(archPath), rel)

	cleaned := backLinkRe.ReplaceAllString(body, "")
	if cleaned == "" {
		return line
	}
	return line + "\n" + strings.TrimLeft(cleaned, "\n")
}

// Relocate re-establishes the pairing after either side moved: the
// archive file is brought back under the synthesis's Archives folder
// and the embedded reference is rewritten so link and location never
// drift apart.
func (l *Linker) Relocate(noteID int64) error {
	note, err := l.reg.GetNote(noteID)
	if err != nil {
		return err
	}
	partner, err := l.reg.PairOf(noteID)
	if err != nil {
		return err
	}
	if partner == nil {
		return nil
	}

	// StatusRegen is an archive mid-regeneration, StatusRegenHeader a
	// synthesis mid-regeneration; both keep their side of the pair.
	synth, arch := note, partner
	if note.Status == models.StatusArchive || note.Status == models.StatusRegen {
		synth, arch = partner, note
	}

	wantDir := path.Join(path.Dir(synth.FilePath), ArchivesDirName)
	if path.Dir(arch.FilePath) != wantDir {
		newPath := l.uniquePath(path.Join(wantDir, path.Base(arch.FilePath)))
		if err := l.store.Move(arch.FilePath, newPath); err != nil {
			return fmt.Errorf("linker: relocate archive: %w", err)
		}
		if err := l.reg.UpdateNotePath(arch.ID, newPath); err != nil {
			return err
		}
		arch.FilePath = newPath
		l.logger.Info("linker: archive relocated",
			slog.Int64("archive_id", arch.ID),
			slog.String("path", newPath))
	}

	return l.rewriteBackLink(synth.FilePath, arch.FilePath)
}

// rewriteBackLink rewrites the embedded reference inside the synthesis
// file to point at the archive's actual location.
func (l *Linker) rewriteBackLink(synthPath, archPath string) error {
	data, err := l.store.Read(synthPath)
	if err != nil {
		return fmt.Errorf("linker: read synthesis: %w", err)
	}
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	body := l.EmbedBackLink(res.Body, synthPath, archPath)
	out, err := parser.Render(res.Header, body)
	if err != nil {
		return err
	}
	if err := l.store.Write(synthPath, out); err != nil {
		return fmt.Errorf("linker: rewrite synthesis: %w", err)
	}
	return nil
}

// archivePathFor places the archive under the Archives subfolder next
// to the synthesis, appending a numeric suffix on name collision.
func (l *Linker) archivePathFor(synthPath string) string {
	dir := path.Join(path.Dir(synthPath), ArchivesDirName)
	return l.uniquePath(path.Join(dir, path.Base(synthPath)))
}

func (l *Linker) uniquePath(p string) string {
	if !l.store.Exists(p) {
		return p
	}
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !l.store.Exists(candidate) {
			return candidate
		}
	}
}

// relativeTo computes the path of target relative to the directory of
// from, in slash form.
func relativeTo(from, target string) string {
	rel, err := filepath.Rel(path.Dir(from), target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
