package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/halver/muninn/internal/checksum"
	"github.com/halver/muninn/internal/engine"
	"github.com/halver/muninn/internal/llm"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

// Importer runs the import lifecycle: duplicate gate, synthesis
// generation, archive pairing. A rejected capture moves to the
// quarantine root with its match evidence recorded; an admitted one is
// rewritten in place as a synthesis with the raw original frozen in the
// Archives subfolder.
type Importer struct {
	store          storage.Provider
	reg            *registry.DB
	detector       *engine.Detector
	linker         *engine.Linker
	synth          *Synthesizer
	regen          *Regenerator
	publisher      Publisher
	quarantineRoot string
	logger         *slog.Logger
}

// NewImporter creates the import handler.
func NewImporter(store storage.Provider, reg *registry.DB, detector *engine.Detector, linker *engine.Linker, synth *Synthesizer, regen *Regenerator, publisher Publisher, quarantineRoot string, logger *slog.Logger) *Importer {
	return &Importer{
		store:          store,
		reg:            reg,
		detector:       detector,
		linker:         linker,
		synth:          synth,
		regen:          regen,
		publisher:      publisher,
		quarantineRoot: quarantineRoot,
		logger:         logger,
	}
}

// Handle processes one created/modified event in the import root.
func (im *Importer) Handle(ctx context.Context, note *models.Note, ev models.Event, res *parser.Result, raw []byte) error {
	if note.Status.Terminal() {
		return nil
	}

	switch note.Status {
	case models.StatusDraft, models.StatusProcessing:
		// StatusProcessing means a previous run was interrupted; the
		// workflow cache makes re-entry cheap.
		return im.runImport(ctx, note, ev.Path, res, raw)
	}

	// Past import: the note and its archive live in this root as a pair,
	// so edits route through the same regeneration path as storage-root
	// pairs. A no-transition edit (like the post-synthesis rewrite of
	// the file re-firing as a modified event) only refreshes the row.
	if handled, err := im.regen.Route(ctx, note, ev.Path, res, raw); handled {
		return err
	}
	return refreshRow(im.reg, note, res, raw)
}

func (im *Importer) runImport(ctx context.Context, note *models.Note, notePath string, res *parser.Result, raw []byte) error {
	title := res.Title
	if title == "" {
		title = note.Title
	}
	contentHash := checksum.Sum(raw)
	srcHash := ""
	if res.Header != nil {
		srcHash = checksum.SourceSum(res.Header.Source)
	}

	if dup, matches := im.detector.Check(engine.Candidate{
		Title:       title,
		ContentHash: contentHash,
		SourceHash:  srcHash,
	}); dup {
		return im.quarantine(note, notePath, matches)
	}

	if err := setStatus(im.reg, im.publisher, note, models.StatusProcessing); err != nil {
		return err
	}

	source := srcHash
	if source == "" {
		source = contentHash
	}
	synthBody, err := im.synth.Generate(ctx, note.ID, notePath, blockSynthesis, llm.PromptSynthesis, title, res.Body, source)
	if err != nil {
		return err
	}
	summary, err := im.synth.Generate(ctx, note.ID, notePath, blockHeader, llm.PromptHeader, title, synthBody, source)
	if err != nil {
		return err
	}

	arch, err := im.linker.CreatePair(note, raw)
	if err != nil {
		return err
	}

	body := im.linker.EmbedBackLink(synthBody, notePath, arch.FilePath)
	wordCount := parser.CountWords(body)
	hdr := synthesisHeader(res.Header, title, summary, wordCount)
	out, err := parser.Render(hdr, body)
	if err != nil {
		return err
	}
	if err := im.store.Write(notePath, out); err != nil {
		return fmt.Errorf("workflow: write synthesis: %w", err)
	}

	newHash := checksum.Sum(out)
	if err := im.reg.UpdateNote(note.ID, registry.NoteUpdate{
		Title:       &title,
		WordCount:   &wordCount,
		ContentHash: &newHash,
		SourceHash:  &srcHash,
	}); err != nil {
		return err
	}
	if res.Header != nil && len(res.Header.Tags) > 0 {
		if err := im.reg.SetTags(note.ID, res.Header.Tags); err != nil {
			return err
		}
	}
	if err := setStatus(im.reg, im.publisher, note, models.StatusSynthesis); err != nil {
		return err
	}

	im.logger.Info("import: synthesis created",
		slog.Int64("note_id", note.ID),
		slog.String("path", notePath),
		slog.Int64("archive_id", arch.ID))
	return nil
}

// quarantine rejects a duplicate capture: the file moves to the
// quarantine root, the note becomes terminally duplicate, and every
// match is recorded for review.
func (im *Importer) quarantine(note *models.Note, notePath string, matches []registry.MatchRecord) error {
	dest := uniquePath(im.store, path.Join(im.quarantineRoot, path.Base(notePath)))
	if err := im.store.Move(notePath, dest); err != nil {
		return fmt.Errorf("workflow: quarantine move: %w", err)
	}
	if err := im.reg.UpdateNotePath(note.ID, dest); err != nil {
		return err
	}
	note.FilePath = dest
	if err := setStatus(im.reg, im.publisher, note, models.StatusDuplicate); err != nil {
		return err
	}
	if err := im.reg.RecordMatches(note.ID, matches); err != nil {
		return err
	}

	im.logger.Info("import: duplicate quarantined",
		slog.Int64("note_id", note.ID),
		slog.String("path", dest),
		slog.Int("matches", len(matches)))
	return nil
}
