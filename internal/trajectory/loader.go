package trajectory

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/banshee-data/viewfactor/internal/fsutil"
	"github.com/banshee-data/viewfactor/internal/security"
)

// MaxFileSize bounds a single gesture file.
const MaxFileSize = 16 * 1024 * 1024

// Loader reads gesture files named <Dir>/<name>.json.
type Loader struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewLoader returns a Loader over the OS filesystem.
func NewLoader(dir string) *Loader {
	return &Loader{FS: fsutil.OSFileSystem{}, Dir: dir}
}

// Path returns the file path for name after validating it.
func (l *Loader) Path(name string) (string, error) {
	if err := security.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.Dir, name+".json"), nil
}

// Load reads and decodes the named gesture.
func (l *Loader) Load(name string) (*Gesture, error) {
	path, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}

// LoadFile reads and decodes the gesture at path.
func (l *Loader) LoadFile(path string) (*Gesture, error) {
	if ext := filepath.Ext(path); ext != ".json" {
		return nil, fmt.Errorf("gesture file must have .json extension, got %q", ext)
	}
	data, err := fsutil.ReadLimited(l.FS, path, MaxFileSize)
	if err != nil {
		return nil, err
	}
	g, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return g, nil
}

// List returns the names of every gesture in Dir, sorted.
func (l *Loader) List() ([]string, error) {
	paths, err := l.FS.Glob(filepath.Join(l.Dir, "*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".json")
		if security.ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
