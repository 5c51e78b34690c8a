package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NamanBalaji/tunedl/internal/filesystem"
)

func write(t *testing.T, fs *filesystem.OSFileSystem, path string, resume bool, content string) {
	t.Helper()

	f, err := fs.OpenForWrite(path, resume)
	if err != nil {
		t.Fatalf("OpenForWrite failed: %v", err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		t.Fatalf("Writing to file failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Closing file failed: %v", err)
	}
}

func TestOpenForWriteCreatesDirectories(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	path := filepath.Join(t.TempDir(), "artist", "album", "song.mp3")

	write(t, fs, path, false, "hello")

	exists, err := fs.FileExists(path)
	if err != nil {
		t.Fatalf("FileExists failed: %v", err)
	}
	if !exists {
		t.Fatal("expected file to exist after creation")
	}
}

func TestOpenForWriteAppendAndTruncate(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	path := filepath.Join(t.TempDir(), "song.mp3")

	write(t, fs, path, false, "hello")
	write(t, fs, path, true, " world")

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("expected appended content, got %q", got)
	}

	write(t, fs, path, false, "fresh")

	got, _ = os.ReadFile(path)
	if string(got) != "fresh" {
		t.Errorf("expected truncated content, got %q", got)
	}
}

func TestPartialSize(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	dir := t.TempDir()

	size, err := fs.PartialSize(filepath.Join(dir, "missing.mp3"))
	if err != nil || size != 0 {
		t.Errorf("expected 0 and no error for a missing file, got %d, %v", size, err)
	}

	path := filepath.Join(dir, "partial.mp3")
	if err := os.WriteFile(path, make([]byte, 1234), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err = fs.PartialSize(path)
	if err != nil {
		t.Fatalf("PartialSize failed: %v", err)
	}
	if size != 1234 {
		t.Errorf("expected 1234, got %d", size)
	}

	if _, err := fs.PartialSize(dir); err == nil {
		t.Error("expected an error for a directory")
	}
}

func TestFileExists(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	dir := t.TempDir()

	exists, err := fs.FileExists(filepath.Join(dir, "nope"))
	if err != nil || exists {
		t.Errorf("expected missing file, got %v, %v", exists, err)
	}

	exists, err = fs.FileExists(dir)
	if err != nil || exists {
		t.Errorf("a directory is not a file, got %v, %v", exists, err)
	}
}

func TestDeleteFile(t *testing.T) {
	fs := filesystem.NewOSFileSystem()
	path := filepath.Join(t.TempDir(), "gone.mp3")

	write(t, fs, path, false, "x")

	if err := fs.DeleteFile(path); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}

	exists, _ := fs.FileExists(path)
	if exists {
		t.Error("expected file to be deleted")
	}
}
