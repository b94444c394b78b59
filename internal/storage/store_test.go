package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestDirStoreWrite(t *testing.T) {
	s := NewDirStore(filepath.Join(t.TempDir(), "recv"))
	if s.Has("report.txt") {
		t.Fatal("empty store reports a file")
	}

	n, err := s.WriteStream("report.txt", bytes.NewReader([]byte("Hello")))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("Expected 5 bytes written, got %d", n)
	}
	if !s.Has("report.txt") {
		t.Error("expected file to exist")
	}
}

func TestDirStoreRead(t *testing.T) {
	s := NewDirStore(t.TempDir())

	content := []byte("Hello")
	if _, err := s.WriteStream("testdata2", bytes.NewReader(content)); err != nil {
		t.Fatal(err)
	}
	size, r, err := s.ReadStream(s.FullPath("testdata2"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), size)
	}
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, content) {
		t.Errorf("Expected %q, got %q", content, got)
	}
}

func TestDirStoreStripsDirectories(t *testing.T) {
	root := t.TempDir()
	s := NewDirStore(filepath.Join(root, "inbox"))

	if _, err := s.WriteStream("../../etc/evil.txt", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "inbox", "evil.txt")); err != nil {
		t.Errorf("expected file inside the store: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "etc", "evil.txt")); err == nil {
		t.Error("file escaped the store root")
	}
}

func TestDirStoreRejects(t *testing.T) {
	s := NewDirStore(t.TempDir())

	if _, err := s.WriteStream("", bytes.NewReader(nil)); err == nil {
		t.Error("expected error for empty name")
	}
	if _, _, err := s.ReadStream(filepath.Join(s.RootDir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, _, err := s.ReadStream(s.RootDir); err == nil {
		t.Error("expected error for directory")
	}
}

func TestDirStoreOverwrites(t *testing.T) {
	s := NewDirStore(t.TempDir())

	s.WriteStream("testdata3", bytes.NewReader([]byte("Hello my boi")))
	if _, err := s.WriteStream("testdata3", bytes.NewReader([]byte("bye"))); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(s.FullPath("testdata3"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bye" {
		t.Errorf("Expected the second write to replace the file, got %q", got)
	}
}

func TestNewDirStoreDefaultsToCwd(t *testing.T) {
	if got := NewDirStore("").RootDir; got != "." {
		t.Errorf("Expected root %q, got %q", ".", got)
	}
}
