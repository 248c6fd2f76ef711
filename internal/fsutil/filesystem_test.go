package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fsys := OSFileSystem{}

	if !fsys.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fsys.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_WriteReadGlob(t *testing.T) {
	fsys := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "trajectories")
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, name := range []string{"circle.json", "one.json", "notes.txt"} {
		if err := fsys.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	matches, err := fsys.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %v", matches)
	}

	data, err := ReadLimited(fsys, matches[0], 1024)
	if err != nil {
		t.Fatalf("ReadLimited failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("expected {}, got %q", data)
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	testData := []byte("hello, world")
	if err := mfs.WriteFile("/test.txt", testData, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("expected %q, got %q", testData, data)
	}

	// The returned slice is a copy.
	data[0] = 'H'
	again, _ := mfs.ReadFile("/test.txt")
	if string(again) != "hello, world" {
		t.Errorf("stored data was modified through the returned slice: %q", again)
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_, err := mfs.ReadFile("/missing.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	_, err = mfs.Stat("/missing.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist from Stat, got %v", err)
	}
}

func TestMemoryFileSystem_Stat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.WriteFile("/data/gestures/one.json", []byte("12345"), 0o600)

	info, err := mfs.Stat("/data/gestures/./one.json")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5 || info.Name() != "one.json" || info.IsDir() {
		t.Errorf("unexpected file info: %+v", info)
	}
	if !mfs.Exists("/data/gestures/one.json") || mfs.Exists("/data/gestures") {
		t.Error("only written files should exist")
	}
}

func TestMemoryFileSystem_Glob(t *testing.T) {
	mfs := NewMemoryFileSystem()
	for _, name := range []string{"/d/two.json", "/d/one.json", "/d/readme.md", "/e/three.json"} {
		_ = mfs.WriteFile(name, nil, 0o644)
	}

	got, err := mfs.Glob("/d/*.json")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if strings.Join(got, ",") != "/d/one.json,/d/two.json" {
		t.Errorf("unexpected matches %v", got)
	}

	if _, err := mfs.Glob("[bad"); err == nil {
		t.Error("expected malformed pattern to fail")
	}
}

func TestReadLimited(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.WriteFile("/big.json", make([]byte, 100), 0o644)

	if _, err := ReadLimited(mfs, "/big.json", 99); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
	if _, err := ReadLimited(mfs, "/big.json", 100); err != nil {
		t.Errorf("expected read at the limit to succeed, got %v", err)
	}
	if _, err := ReadLimited(OSFileSystem{}, t.TempDir(), 100); err == nil {
		t.Error("expected directory to be rejected")
	}
	if _, err := ReadLimited(mfs, "/missing.json", 100); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

var (
	_ FileSystem = OSFileSystem{}
	_ FileSystem = (*MemoryFileSystem)(nil)
)
