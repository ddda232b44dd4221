package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	f, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestWriteReadDelete(t *testing.T) {
	f := testFS(t)
	if err := f.Write("a/b.md", []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := f.Read("a/b.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
	if !f.Exists("a/b.md") {
		t.Error("Exists = false after write")
	}
	if err := f.Delete("a/b.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.Exists("a/b.md") {
		t.Error("Exists = true after delete")
	}
}

func TestSafePath_RejectsTraversal(t *testing.T) {
	f := testFS(t)
	if _, err := f.Read("../outside.md"); err == nil {
		t.Error("expected traversal rejection")
	}
	if _, err := f.Read("/etc/passwd"); err == nil {
		t.Error("expected absolute path rejection")
	}
}

func TestList_SkipsHiddenAndNonMarkdown(t *testing.T) {
	f := testFS(t)
	_ = f.Write("notes/one.md", []byte("one"))
	_ = f.Write("notes/two.txt", []byte("two"))
	_ = os.MkdirAll(filepath.Join(f.Root(), ".git"), 0o755)
	_ = os.WriteFile(filepath.Join(f.Root(), ".git", "three.md"), []byte("three"), 0o644)

	infos, err := f.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Path != "notes/one.md" {
		t.Errorf("List = %+v, want exactly notes/one.md", infos)
	}
	if infos[0].Checksum == "" {
		t.Error("checksum missing")
	}
}

func TestMove(t *testing.T) {
	f := testFS(t)
	_ = f.Write("src/a.md", []byte("move me"))
	if err := f.Move("src/a.md", "dst/deep/a.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if f.Exists("src/a.md") || !f.Exists("dst/deep/a.md") {
		t.Error("move did not relocate file")
	}
}
