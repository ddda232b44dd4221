package engine

import (
	"os"
	"strings"
	"testing"

	"github.com/halver/muninn/internal/models"
	"github.com/halver/muninn/internal/registry"
	"github.com/halver/muninn/internal/storage"
)

func linkerEnv(t *testing.T) (*Linker, storage.Provider, *registry.DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp("", "muninn-linker-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	reg, err := registry.Open(f.Name(), []registry.Root{
		{Path: "storage", Workflow: "storage", FolderType: models.FolderStorage, Categorized: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })

	return NewLinker(store, reg, discardLogger()), store, reg
}

func makeSynth(t *testing.T, store storage.Provider, reg *registry.DB, path string) *models.Note {
	t.Helper()
	if err := store.Write(path, []byte("---\ntitle: Synth\n---\nsummary body\n")); err != nil {
		t.Fatal(err)
	}
	id, err := reg.ResolveOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	st := models.StatusSynthesis
	if err := reg.UpdateNote(id, registry.NoteUpdate{Status: &st}); err != nil {
		t.Fatal(err)
	}
	n, err := reg.GetNote(id)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreatePair_BidirectionalInvariant(t *testing.T) {
	l, store, reg := linkerEnv(t)
	synth := makeSynth(t, store, reg, "storage/Tech/note.md")

	arch, err := l.CreatePair(synth, []byte("---\ntitle: Original\nsource: https://example.com/orig\n---\nfull original body text\n"))
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}

	if arch.FilePath != "storage/Tech/Archives/note.md" {
		t.Errorf("archive path = %q", arch.FilePath)
	}
	if arch.Status != models.StatusArchive {
		t.Errorf("archive status = %q", arch.Status)
	}
	if arch.SourceHash == "" || arch.ContentHash == "" {
		t.Error("archive hashes not recorded")
	}

	// Round-trip invariant: each side's parent_id points at the other.
	synthRow, _ := reg.GetNote(synth.ID)
	if synthRow.ParentID == nil || *synthRow.ParentID != arch.ID {
		t.Errorf("synthesis parent = %v, want %d", synthRow.ParentID, arch.ID)
	}
	if arch.ParentID == nil || *arch.ParentID != synth.ID {
		t.Errorf("archive parent = %v, want %d", arch.ParentID, synth.ID)
	}
	if !store.Exists(arch.FilePath) {
		t.Error("archive file missing")
	}
}

func TestCreatePair_CollisionSuffix(t *testing.T) {
	l, store, reg := linkerEnv(t)
	synth := makeSynth(t, store, reg, "storage/Tech/note.md")
	_ = store.Write("storage/Tech/Archives/note.md", []byte("occupied"))

	arch, err := l.CreatePair(synth, []byte("original"))
	if err != nil {
		t.Fatalf("CreatePair: %v", err)
	}
	if arch.FilePath != "storage/Tech/Archives/note_1.md" {
		t.Errorf("archive path = %q, want numeric suffix", arch.FilePath)
	}
}

func TestEmbedBackLink_InsertAndReplace(t *testing.T) {
	l, _, _ := linkerEnv(t)

	body := l.EmbedBackLink("summary text\n", "storage/Tech/note.md", "storage/Tech/Archives/note.md")
	if !strings.HasPrefix(body, "> Original: [note.md](Archives/note.md)\n") {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(body, "summary text") {
		t.Error("body content lost")
	}

	// Re-embedding replaces the old reference instead of stacking.
	body = l.EmbedBackLink(body, "storage/Tech/note.md", "storage/Tech/Archives/note_1.md")
	if strings.Count(body, "> Original:") != 1 {
		t.Errorf("stacked references: %q", body)
	}
	if !strings.Contains(body, "(Archives/note_1.md)") {
		t.Errorf("reference not updated: %q", body)
	}

	// A sibling-folder archive gets a parent-relative reference.
	body = l.EmbedBackLink("drifted\n", "storage/Tech/note.md", "storage/Science/Archives/note.md")
	if !strings.Contains(body, "(../Science/Archives/note.md)") {
		t.Errorf("cross-folder reference wrong: %q", body)
	}
}

func TestRelocate_SynthesisMoveDragsArchive(t *testing.T) {
	l, store, reg := linkerEnv(t)
	synth := makeSynth(t, store, reg, "storage/Tech/note.md")
	if _, err := l.CreatePair(synth, []byte("original body")); err != nil {
		t.Fatal(err)
	}

	// Simulate a category reclassification: file moved, row updated.
	if err := store.Move("storage/Tech/note.md", "storage/Science/note.md"); err != nil {
		t.Fatal(err)
	}
	if err := reg.UpdateNotePath(synth.ID, "storage/Science/note.md"); err != nil {
		t.Fatal(err)
	}

	if err := l.Relocate(synth.ID); err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	arch, err := reg.PairOf(synth.ID)
	if err != nil || arch == nil {
		t.Fatalf("pair lost: %v", err)
	}
	if arch.FilePath != "storage/Science/Archives/note.md" {
		t.Errorf("archive path = %q", arch.FilePath)
	}
	if !store.Exists("storage/Science/Archives/note.md") {
		t.Error("archive file not moved")
	}

	data, _ := store.Read("storage/Science/note.md")
	if !strings.Contains(string(data), "(Archives/note.md)") {
		t.Errorf("back-link not rewritten: %s", data)
	}
}

func TestRelocate_RegenArchiveKeepsRoles(t *testing.T) {
	l, store, reg := linkerEnv(t)
	synth := makeSynth(t, store, reg, "storage/Tech/note.md")
	arch, err := l.CreatePair(synth, []byte("original body"))
	if err != nil {
		t.Fatal(err)
	}

	// An archive moved mid-regeneration is still the archive side.
	st := models.StatusRegen
	if err := reg.UpdateNote(arch.ID, registry.NoteUpdate{Status: &st}); err != nil {
		t.Fatal(err)
	}
	if err := store.Move(arch.FilePath, "storage/Misplaced/note.md"); err != nil {
		t.Fatal(err)
	}
	if err := reg.UpdateNotePath(arch.ID, "storage/Misplaced/note.md"); err != nil {
		t.Fatal(err)
	}

	if err := l.Relocate(arch.ID); err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	synthRow, _ := reg.GetNote(synth.ID)
	if synthRow.FilePath != "storage/Tech/note.md" {
		t.Errorf("synthesis moved to %q, must stay put", synthRow.FilePath)
	}
	archRow, _ := reg.GetNote(arch.ID)
	if archRow.FilePath != "storage/Tech/Archives/note.md" {
		t.Errorf("archive path = %q, want back under the synthesis", archRow.FilePath)
	}
	if !store.Exists("storage/Tech/Archives/note.md") {
		t.Error("archive file not brought back")
	}

	data, _ := store.Read("storage/Tech/note.md")
	if !strings.Contains(string(data), "(Archives/note.md)") {
		t.Errorf("back-link not rewritten: %s", data)
	}
}

func TestRelocate_UnpairedIsNoop(t *testing.T) {
	l, store, reg := linkerEnv(t)
	synth := makeSynth(t, store, reg, "storage/Tech/solo.md")
	if err := l.Relocate(synth.ID); err != nil {
		t.Errorf("Relocate on unpaired note: %v", err)
	}
}
