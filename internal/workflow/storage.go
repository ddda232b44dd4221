package workflow

import (
	"context"
	"log/slog"

	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
)

// StorageHandler runs the storage-root lifecycle: drafts dropped
// directly into a storage root go through the import pipeline, pair
// members route through the shared regeneration path, and small edits
// only refresh the registry row.
type StorageHandler struct {
	reg      *registry.DB
	importer *Importer
	regen    *Regenerator
	logger   *slog.Logger
}

// NewStorageHandler creates the storage handler.
func NewStorageHandler(reg *registry.DB, importer *Importer, regen *Regenerator, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{
		reg:      reg,
		importer: importer,
		regen:    regen,
		logger:   logger,
	}
}

// Handle processes one created/modified event in a storage root.
func (h *StorageHandler) Handle(ctx context.Context, note *models.Note, ev models.Event, res *parser.Result, raw []byte) error {
	switch note.Status {
	case models.StatusDraft, models.StatusProcessing:
		return h.importer.Handle(ctx, note, ev, res, raw)
	}
	if handled, err := h.regen.Route(ctx, note, ev.Path, res, raw); handled {
		return err
	}
	return refreshRow(h.reg, note, res, raw)
}
