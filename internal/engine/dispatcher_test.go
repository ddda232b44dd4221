package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/parser"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

type dispatcherEnv struct {
	d     *Dispatcher
	q     *Queue
	locks *LockManager
	store storage.Provider
	reg   *registry.DB
}

func newDispatcherEnv(t *testing.T, handlers map[string]Handler) *dispatcherEnv {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp("", "muninn-dispatch-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	reg, err := registry.Open(f.Name(), []registry.Root{
		{Path: "imports", Workflow: WorkflowImport, FolderType: models.FolderImport},
		{Path: "storage", Workflow: WorkflowStorage, FolderType: models.FolderStorage, Categorized: true},
		{Path: "quarantine", Workflow: WorkflowQuarantine, FolderType: models.FolderArchive},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })

	logger := discardLogger()
	locks := NewLockManager(nil)
	q := NewQueue(locks, NoteKeyFunc(reg), 64, logger)
	classifier := NewClassifier([]Rule{
		{Root: "imports", Workflow: WorkflowImport},
		{Root: "storage", Workflow: WorkflowStorage},
		{Root: "quarantine", Workflow: WorkflowQuarantine},
	})
	linker := NewLinker(store, reg, logger)

	d := NewDispatcher(DispatcherConfig{
		Queue:        q,
		Locks:        locks,
		Classifier:   classifier,
		Registry:     reg,
		Store:        store,
		Linker:       linker,
		Handlers:     handlers,
		Logger:       logger,
		WaitTimeout:  200 * time.Millisecond,
		WaitInterval: 20 * time.Millisecond,
	})
	return &dispatcherEnv{d: d, q: q, locks: locks, store: store, reg: reg}
}

func (e *dispatcherEnv) pair(t *testing.T, synthPath string) (synth, arch *models.Note) {
	t.Helper()
	if err := e.store.Write(synthPath, []byte("---\ntitle: Synth\n---\nbody\n")); err != nil {
		t.Fatal(err)
	}
	id, err := e.reg.ResolveOrCreate(synthPath)
	if err != nil {
		t.Fatal(err)
	}
	st := models.StatusSynthesis
	if err := e.reg.UpdateNote(id, registry.NoteUpdate{Status: &st}); err != nil {
		t.Fatal(err)
	}
	synth, err = e.reg.GetNote(id)
	if err != nil {
		t.Fatal(err)
	}
	arch, err = e.d.linker.CreatePair(synth, []byte("original body"))
	if err != nil {
		t.Fatal(err)
	}
	return synth, arch
}

func TestHandleWrite_RefreshWithoutHandler(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	content := []byte("---\ntitle: Note\ntags: [go, sqlite]\n---\none two three\n")
	if err := env.store.Write("elsewhere/note.md", content); err != nil {
		t.Fatal(err)
	}

	ev := models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: "elsewhere/note.md"}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Fatalf("process: %v", err)
	}

	note, err := env.reg.GetNoteByPath("elsewhere/note.md")
	if err != nil {
		t.Fatalf("note not registered: %v", err)
	}
	if note.WordCount != 3 {
		t.Errorf("word count = %d, want 3", note.WordCount)
	}
	if note.ContentHash == "" {
		t.Error("content hash not recorded")
	}
	if note.Title != "Note" {
		t.Errorf("title = %q", note.Title)
	}
	if len(note.Tags) != 2 {
		t.Errorf("tags = %v", note.Tags)
	}
}

func TestHandleWrite_MissingFileIsSkipped(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	ev := models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: "imports/ghost.md"}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Errorf("transient path must not error: %v", err)
	}
	if _, err := env.reg.GetNoteByPath("imports/ghost.md"); err == nil {
		t.Error("ghost path must not be registered")
	}
}

func TestHandleWrite_RoutesToWorkflowHandler(t *testing.T) {
	var gotPath string
	h := handlerFunc(func(ctx context.Context, note *models.Note, ev models.Event, res *parser.Result, raw []byte) error {
		gotPath = ev.Path
		return nil
	})
	env := newDispatcherEnv(t, map[string]Handler{WorkflowImport: h})
	if err := env.store.Write("imports/new.md", []byte("fresh capture\n")); err != nil {
		t.Fatal(err)
	}

	ev := models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: "imports/new.md"}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if gotPath != "imports/new.md" {
		t.Errorf("handler saw %q", gotPath)
	}
}

type handlerFunc func(context.Context, *models.Note, models.Event, *parser.Result, []byte) error

func (f handlerFunc) Handle(ctx context.Context, n *models.Note, ev models.Event, res *parser.Result, raw []byte) error {
	return f(ctx, n, ev, res, raw)
}

func TestHandleDelete_SynthesisCascadesArchive(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	synth, arch := env.pair(t, "storage/Tech/note.md")

	if err := env.store.Delete(synth.FilePath); err != nil {
		t.Fatal(err)
	}
	ev := models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: synth.FilePath}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, err := env.reg.GetNote(synth.ID); err == nil {
		t.Error("synthesis row should be gone")
	}
	if _, err := env.reg.GetNote(arch.ID); err == nil {
		t.Error("archive row should cascade")
	}
	if env.store.Exists(arch.FilePath) {
		t.Error("archive file should cascade")
	}
}

func TestHandleDelete_ArchiveOrphansSynthesis(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	synth, arch := env.pair(t, "storage/Tech/note.md")

	if err := env.store.Delete(arch.FilePath); err != nil {
		t.Fatal(err)
	}
	ev := models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: arch.FilePath}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, err := env.reg.GetNote(arch.ID); err == nil {
		t.Error("archive row should be gone")
	}
	kept, err := env.reg.GetNote(synth.ID)
	if err != nil {
		t.Fatal("synthesis must survive its archive")
	}
	if kept.ParentID != nil {
		t.Error("orphaned synthesis must have no parent")
	}
}

func TestHandleDelete_UnknownPathIsNoop(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	ev := models.Event{Type: models.EventFile, Action: models.ActionDeleted, Path: "imports/never-seen.md"}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Errorf("unknown delete must not error: %v", err)
	}
}

func TestHandleMove_UnknownSourceTreatedAsCreate(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	if err := env.store.Write("storage/Tech/arrived.md", []byte("dropped in by an external tool\n")); err != nil {
		t.Fatal(err)
	}

	ev := models.Event{
		Type:    models.EventFile,
		Action:  models.ActionMoved,
		Path:    "storage/Tech/arrived.md",
		SrcPath: "outside/unknown.md",
	}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := env.reg.GetNoteByPath("storage/Tech/arrived.md"); err != nil {
		t.Errorf("destination should be registered as created: %v", err)
	}
}

func TestHandleMove_UpdatesPathAndCategory(t *testing.T) {
	env := newDispatcherEnv(t, nil)
	if err := env.store.Write("storage/Tech/note.md", []byte("body\n")); err != nil {
		t.Fatal(err)
	}
	id, err := env.reg.ResolveOrCreate("storage/Tech/note.md")
	if err != nil {
		t.Fatal(err)
	}
	before, _ := env.reg.GetNote(id)

	if err := env.store.Move("storage/Tech/note.md", "storage/Science/note.md"); err != nil {
		t.Fatal(err)
	}
	ev := models.Event{
		Type:    models.EventFile,
		Action:  models.ActionMoved,
		Path:    "storage/Science/note.md",
		SrcPath: "storage/Tech/note.md",
	}
	if err := env.d.process(context.Background(), ev); err != nil {
		t.Fatalf("process: %v", err)
	}

	after, err := env.reg.GetNote(id)
	if err != nil {
		t.Fatal(err)
	}
	if after.FilePath != "storage/Science/note.md" {
		t.Errorf("path = %q", after.FilePath)
	}
	if after.CategoryID == before.CategoryID {
		t.Error("category must follow the folder")
	}
}

func TestProcessItem_ReleasesLockAfterPanic(t *testing.T) {
	h := handlerFunc(func(context.Context, *models.Note, models.Event, *parser.Result, []byte) error {
		panic("malformed event")
	})
	env := newDispatcherEnv(t, map[string]Handler{WorkflowImport: h})
	if err := env.store.Write("imports/bad.md", []byte("content\n")); err != nil {
		t.Fatal(err)
	}

	ev := models.Event{Type: models.EventFile, Action: models.ActionCreated, Path: "imports/bad.md"}
	if !env.q.Enqueue(ev) {
		t.Fatal("enqueue failed")
	}
	item, _ := env.q.Dequeue(context.Background())
	env.d.processItem(context.Background(), item)

	if env.locks.Len() != 0 {
		t.Error("lock must be released after a panicking handler")
	}
}

func TestReconcile_RepairsDrift(t *testing.T) {
	env := newDispatcherEnv(t, nil)

	// On disk but not in the registry.
	if err := env.store.Write("imports/untracked.md", []byte("new\n")); err != nil {
		t.Fatal(err)
	}
	// In the registry but not on disk.
	if _, err := env.reg.ResolveOrCreate("imports/vanished.md"); err != nil {
		t.Fatal(err)
	}

	env.d.Reconcile()

	ctx := context.Background()
	seen := map[string]models.Action{}
	for i := 0; i < 2; i++ {
		item, ok := env.q.Dequeue(ctx)
		if !ok {
			t.Fatal("expected two synthetic events")
		}
		seen[item.Event.Path] = item.Event.Action
	}
	if seen["imports/untracked.md"] != models.ActionCreated {
		t.Errorf("untracked file: %v", seen["imports/untracked.md"])
	}
	if seen["imports/vanished.md"] != models.ActionDeleted {
		t.Errorf("vanished row: %v", seen["imports/vanished.md"])
	}
}
