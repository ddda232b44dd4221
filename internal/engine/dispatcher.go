package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halver/muninn/internal/apperr"
	"github.com/halver/muninn/internal/checksum"
	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

// Handler executes the workflow for one classified event. Handlers own
// their registry writes; the dispatcher guarantees lock release around
// them.
type Handler interface {
	Handle(ctx context.Context, note *models.Note, ev models.Event, res *parser.Result, raw []byte) error
}

// Publisher receives lifecycle notifications. Implementations must not
// block.
type Publisher interface {
	PublishNoteEvent(kind, path string)
	PublishStatusChange(path string, from, to models.Status)
}

// Dispatcher is the single consumer loop: it drains the queue strictly
// sequentially, releases every lock in a guaranteed-cleanup path, and
// catches per-event panics so one malformed event cannot terminate the
// daemon.
type Dispatcher struct {
	queue      *Queue
	locks      *LockManager
	classifier *Classifier
	reg        *registry.DB
	store      storage.Provider
	linker     *Linker
	handlers   map[string]Handler
	publisher  Publisher
	logger     *slog.Logger

	// Bounded wait for paths notified before the writer finished.
	waitTimeout  time.Duration
	waitInterval time.Duration

	lockTimeout   time.Duration
	sweepInterval time.Duration
}

// DispatcherConfig bundles the dispatcher's collaborators.
type DispatcherConfig struct {
	Queue      *Queue
	Locks      *LockManager
	Classifier *Classifier
	Registry   *registry.DB
	Store      storage.Provider
	Linker     *Linker
	Handlers   map[string]Handler
	Publisher  Publisher
	Logger     *slog.Logger

	WaitTimeout   time.Duration
	WaitInterval  time.Duration
	LockTimeout   time.Duration
	SweepInterval time.Duration
}

// NewDispatcher creates a dispatcher. Zero durations get defaults:
// 5s/200ms transient-IO wait, 7200s lock timeout, hourly sweep.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		queue:         cfg.Queue,
		locks:         cfg.Locks,
		classifier:    cfg.Classifier,
		reg:           cfg.Registry,
		store:         cfg.Store,
		linker:        cfg.Linker,
		handlers:      cfg.Handlers,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
		waitTimeout:   cfg.WaitTimeout,
		waitInterval:  cfg.WaitInterval,
		lockTimeout:   cfg.LockTimeout,
		sweepInterval: cfg.SweepInterval,
	}
	if d.waitTimeout <= 0 {
		d.waitTimeout = 5 * time.Second
	}
	if d.waitInterval <= 0 {
		d.waitInterval = 200 * time.Millisecond
	}
	if d.lockTimeout <= 0 {
		d.lockTimeout = 7200 * time.Second
	}
	if d.sweepInterval <= 0 {
		d.sweepInterval = time.Hour
	}
	return d
}

// NoteKeyFunc resolves an event to its lock key: the note id when the
// registry knows the path, the path string otherwise. Moved events
// resolve through their source path.
func NoteKeyFunc(reg *registry.DB) KeyFunc {
	return func(ev models.Event) string {
		lookup := ev.Path
		if ev.Action == models.ActionMoved && ev.SrcPath != "" {
			lookup = ev.SrcPath
		}
		if note, err := reg.GetNoteByPath(lookup); err == nil {
			return fmt.Sprintf("note:%d", note.ID)
		}
		return "path:" + ev.Path
	}
}

// Run consumes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher: started")
	for {
		item, ok := d.queue.Dequeue(ctx)
		if !ok {
			d.logger.Info("dispatcher: stopped")
			return nil
		}
		d.processItem(ctx, item)
	}
}

// processItem handles one event with guaranteed lock release and a
// panic boundary.
func (d *Dispatcher) processItem(ctx context.Context, item Item) {
	defer d.locks.Release(item.Key)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher: event panicked",
				slog.String("path", item.Event.Path),
				slog.Any("panic", r))
		}
	}()

	if err := d.process(ctx, item.Event); err != nil {
		d.logger.Error("dispatcher: event failed",
			slog.String("action", string(item.Event.Action)),
			slog.String("path", item.Event.Path),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) process(ctx context.Context, ev models.Event) error {
	if ev.Type == models.EventDirectory {
		// Directory lifecycle is tracked implicitly through the files
		// inside it.
		return nil
	}

	switch ev.Action {
	case models.ActionDeleted:
		return d.handleDelete(ev.Path)
	case models.ActionMoved:
		return d.handleMove(ctx, ev)
	case models.ActionCreated, models.ActionModified:
		return d.handleWrite(ctx, ev)
	}
	return nil
}

// handleWrite processes a created or modified file.
func (d *Dispatcher) handleWrite(ctx context.Context, ev models.Event) error {
	raw, ok := d.awaitFile(ctx, ev.Path)
	if !ok {
		// The path never materialized: the writer rolled back or the
		// file vanished again. Drop without error.
		d.logger.Debug("dispatcher: transient path skipped", slog.String("path", ev.Path))
		return nil
	}

	res, err := parser.Parse(raw)
	if err != nil {
		return err
	}

	id, err := d.reg.ResolveOrCreate(ev.Path)
	if err != nil {
		return err
	}
	note, err := d.reg.GetNote(id)
	if err != nil {
		return err
	}

	workflow := d.classifier.Classify(ev.Path)
	if handler, found := d.handlers[workflow]; found {
		if err := handler.Handle(ctx, note, ev, res, raw); err != nil {
			return fmt.Errorf("workflow %s: %w", workflow, err)
		}
	} else {
		if err := d.refresh(note, res, raw); err != nil {
			return err
		}
	}

	if d.publisher != nil {
		d.publisher.PublishNoteEvent(string(ev.Action), ev.Path)
	}
	return nil
}

// refresh brings the registry row in line with the file content without
// any lifecycle transition.
func (d *Dispatcher) refresh(note *models.Note, res *parser.Result, raw []byte) error {
	hash := checksum.Sum(raw)
	srcHash := ""
	if res.Header != nil {
		srcHash = checksum.SourceSum(res.Header.Source)
	}
	title := res.Title
	upd := registry.NoteUpdate{
		WordCount:   &res.WordCount,
		ContentHash: &hash,
		SourceHash:  &srcHash,
	}
	if title != "" {
		upd.Title = &title
	}
	if err := d.reg.UpdateNote(note.ID, upd); err != nil {
		return err
	}
	if res.Header != nil && len(res.Header.Tags) > 0 {
		return d.reg.SetTags(note.ID, res.Header.Tags)
	}
	return nil
}

// handleDelete removes the note and cascades per the lifecycle rules:
// a deleted synthesis takes its paired archive's file and row with it;
// a deleted archive orphans (but retains) its paired synthesis.
func (d *Dispatcher) handleDelete(path string) error {
	note, err := d.reg.GetNoteByPath(path)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	partner, err := d.reg.PairOf(note.ID)
	if err != nil {
		return err
	}
	if partner != nil {
		switch note.Status {
		case models.StatusSynthesis, models.StatusRegenHeader:
			if err := d.store.Delete(partner.FilePath); err != nil {
				d.logger.Warn("dispatcher: cascade file delete failed",
					slog.String("path", partner.FilePath),
					slog.String("error", err.Error()))
			}
			// The synthesis row still references the archive; clear that
			// link first or the foreign key blocks the cascade.
			if err := d.reg.UnlinkParent(note.ID); err != nil {
				return err
			}
			if err := d.reg.DeleteNote(partner.ID); err != nil {
				return err
			}
		case models.StatusArchive, models.StatusRegen:
			if err := d.reg.UnlinkParent(partner.ID); err != nil {
				return err
			}
		}
	}

	if err := d.reg.DeleteNote(note.ID); err != nil {
		return err
	}
	d.logger.Info("dispatcher: note removed",
		slog.Int64("id", note.ID),
		slog.String("path", path),
		slog.String("status", string(note.Status)))
	if d.publisher != nil {
		d.publisher.PublishNoteEvent(string(models.ActionDeleted), path)
	}
	return nil
}

// handleMove relocates the registry identity. A move whose destination
// root maps to a different workflow is a reclassification: the note's
// category is re-derived from its new folder, and the pairing is
// brought back in line.
func (d *Dispatcher) handleMove(ctx context.Context, ev models.Event) error {
	note, err := d.reg.GetNoteByPath(ev.SrcPath)
	if errors.Is(err, apperr.ErrNotFound) {
		// Unknown source: treat the destination as freshly created.
		created := ev
		created.Action = models.ActionCreated
		created.SrcPath = ""
		return d.handleWrite(ctx, created)
	}
	if err != nil {
		return err
	}

	if err := d.reg.UpdateNotePath(note.ID, ev.Path); err != nil {
		return err
	}

	reclassified := d.classifier.Reclassified(ev)
	if reclassified {
		d.logger.Info("dispatcher: note reclassified",
			slog.Int64("id", note.ID),
			slog.String("from", d.classifier.Classify(ev.SrcPath)),
			slog.String("to", d.classifier.Classify(ev.Path)))
	}

	// Any move of a pair member must keep link and location together.
	if note.Status == models.StatusArchive || note.Status == models.StatusSynthesis ||
		note.Status == models.StatusRegen || note.Status == models.StatusRegenHeader {
		if err := d.linker.Relocate(note.ID); err != nil {
			return err
		}
	}

	if d.publisher != nil {
		d.publisher.PublishNoteEvent(string(models.ActionMoved), ev.Path)
	}
	return nil
}

// awaitFile performs the bounded wait-then-skip for transient I/O: a
// notified path may be momentarily missing because the event fired
// before the writer finished.
func (d *Dispatcher) awaitFile(ctx context.Context, path string) ([]byte, bool) {
	deadline := time.Now().Add(d.waitTimeout)
	for {
		data, err := d.store.Read(path)
		if err == nil {
			return data, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(d.waitInterval):
		}
	}
}

// Maintenance runs the periodic sweep: expired-lock purge plus a
// disk/registry reconcile that repairs anything a dropped event lost.
func (d *Dispatcher) Maintenance(ctx context.Context) error {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if purged := d.locks.PurgeExpired(d.lockTimeout); len(purged) > 0 {
				d.logger.Warn("maintenance: orphaned locks reclaimed",
					slog.Int("count", len(purged)))
			}
			d.Reconcile()
		}
	}
}

// Reconcile enqueues synthetic events for files and rows that drifted
// apart. Going through the queue keeps single-flight intact. It is run
// once at startup and again on every maintenance sweep.
func (d *Dispatcher) Reconcile() {
	infos, err := d.store.List("")
	if err != nil {
		d.logger.Warn("maintenance: list failed", slog.String("error", err.Error()))
		return
	}
	registered, err := d.reg.AllPaths()
	if err != nil {
		d.logger.Warn("maintenance: registry paths failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		disk[info.Path] = struct{}{}
		if _, ok := registered[info.Path]; !ok {
			d.queue.Enqueue(models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: info.Path})
		}
	}
	for p := range registered {
		if _, ok := disk[p]; !ok {
			d.queue.Enqueue(models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: p})
		}
	}
}
