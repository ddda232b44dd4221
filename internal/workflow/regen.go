package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/halver/muninn/internal/checksum"
	"github.com/halver/muninn/internal/engine"
	"github.com/halver/muninn/internal/llm"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

// Regenerator evaluates edits to pair members and reruns generation:
// substantial edits to an archive regenerate its paired synthesis,
// substantial edits to a synthesis regenerate its header summary. The
// transitions depend only on note status, never on which root the pair
// lives under, so every workflow handler routes through the same
// instance.
type Regenerator struct {
	store     storage.Provider
	reg       *registry.DB
	sm        *engine.StateMachine
	linker    *engine.Linker
	synth     *Synthesizer
	publisher Publisher
	logger    *slog.Logger
}

// NewRegenerator creates the shared regeneration path.
func NewRegenerator(store storage.Provider, reg *registry.DB, sm *engine.StateMachine, linker *engine.Linker, synth *Synthesizer, publisher Publisher, logger *slog.Logger) *Regenerator {
	return &Regenerator{
		store:     store,
		reg:       reg,
		sm:        sm,
		linker:    linker,
		synth:     synth,
		publisher: publisher,
		logger:    logger,
	}
}

// Route evaluates the state machine for a modified note and runs the
// matching regeneration. handled is false when no regeneration applies
// and the caller should refresh the row itself.
func (r *Regenerator) Route(ctx context.Context, note *models.Note, notePath string, res *parser.Result, raw []byte) (handled bool, err error) {
	switch r.sm.Evaluate(note, res.WordCount, headerStatus(res)) {
	case engine.TransitionRegen:
		return true, r.regen(ctx, note, notePath, res, raw)
	case engine.TransitionRegenHeader:
		return true, r.regenHeader(ctx, note, notePath, res, raw)
	default:
		return false, nil
	}
}

// regen rebuilds the paired synthesis from an edited archive.
func (r *Regenerator) regen(ctx context.Context, note *models.Note, notePath string, res *parser.Result, raw []byte) error {
	partner, err := r.reg.PairOf(note.ID)
	if err != nil {
		return err
	}
	if partner == nil {
		// An archive without a synthesis has nothing to regenerate.
		r.logger.Warn("regen: unpaired archive edited", slog.String("path", notePath))
		return refreshRow(r.reg, note, res, raw)
	}

	if err := setStatus(r.reg, r.publisher, note, models.StatusRegen); err != nil {
		return err
	}
	if err := refreshRow(r.reg, note, res, raw); err != nil {
		return err
	}

	title := partner.Title
	if title == "" {
		title = res.Title
	}
	source := checksum.Sum(raw)
	synthBody, err := r.synth.Generate(ctx, partner.ID, partner.FilePath, blockSynthesis, llm.PromptSynthesis, title, res.Body, source)
	if err != nil {
		return err
	}
	summary, err := r.synth.Generate(ctx, partner.ID, partner.FilePath, blockHeader, llm.PromptHeader, title, synthBody, source)
	if err != nil {
		return err
	}

	synthData, err := r.store.Read(partner.FilePath)
	if err != nil {
		return fmt.Errorf("workflow: read synthesis: %w", err)
	}
	synthRes, err := parser.Parse(synthData)
	if err != nil {
		return err
	}

	body := r.linker.EmbedBackLink(synthBody, partner.FilePath, notePath)
	wordCount := parser.CountWords(body)
	hdr := synthesisHeader(synthRes.Header, title, summary, wordCount)
	out, err := parser.Render(hdr, body)
	if err != nil {
		return err
	}
	if err := r.store.Write(partner.FilePath, out); err != nil {
		return fmt.Errorf("workflow: write synthesis: %w", err)
	}

	newHash := checksum.Sum(out)
	if err := r.reg.UpdateNote(partner.ID, registry.NoteUpdate{
		WordCount:   &wordCount,
		ContentHash: &newHash,
	}); err != nil {
		return err
	}
	if err := setStatus(r.reg, r.publisher, partner, models.StatusSynthesis); err != nil {
		return err
	}
	if err := setStatus(r.reg, r.publisher, note, models.StatusArchive); err != nil {
		return err
	}

	r.logger.Info("regen: synthesis regenerated",
		slog.Int64("archive_id", note.ID),
		slog.Int64("synthesis_id", partner.ID))
	return nil
}

// regenHeader refreshes the header summary of an edited synthesis. The
// user's body edit is kept verbatim.
func (r *Regenerator) regenHeader(ctx context.Context, note *models.Note, notePath string, res *parser.Result, raw []byte) error {
	if err := setStatus(r.reg, r.publisher, note, models.StatusRegenHeader); err != nil {
		return err
	}

	title := res.Title
	if title == "" {
		title = note.Title
	}
	source := checksum.Sum(raw)
	summary, err := r.synth.Generate(ctx, note.ID, notePath, blockHeader, llm.PromptHeader, title, res.Body, source)
	if err != nil {
		return err
	}

	hdr := synthesisHeader(res.Header, title, summary, res.WordCount)
	out, err := parser.Render(hdr, res.Body)
	if err != nil {
		return err
	}
	if err := r.store.Write(notePath, out); err != nil {
		return fmt.Errorf("workflow: write header: %w", err)
	}

	newHash := checksum.Sum(out)
	srcHash := ""
	if res.Header != nil {
		srcHash = checksum.SourceSum(res.Header.Source)
	}
	if err := r.reg.UpdateNote(note.ID, registry.NoteUpdate{
		Title:       &title,
		WordCount:   &res.WordCount,
		ContentHash: &newHash,
		SourceHash:  &srcHash,
	}); err != nil {
		return err
	}
	if err := setStatus(r.reg, r.publisher, note, models.StatusSynthesis); err != nil {
		return err
	}

	r.logger.Info("regen: header regenerated", slog.Int64("note_id", note.ID))
	return nil
}
