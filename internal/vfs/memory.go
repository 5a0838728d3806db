package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryFS is an in-memory FileSystem for tests and synthetic inputs.
// Safe for concurrent use.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFS creates an empty in-memory file system.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{files: make(map[string][]byte)}
}

// Add stores a file. Paths are used verbatim as keys.
func (m *MemoryFS) Add(path string, data []byte) {
	m.mu.Lock()
	m.files[path] = data
	m.mu.Unlock()
}

// AddString stores a file with string content.
func (m *MemoryFS) AddString(path, data string) {
	m.Add(path, []byte(data))
}

// Remove deletes a file if present.
func (m *MemoryFS) Remove(path string) {
	m.mu.Lock()
	delete(m.files, path)
	m.mu.Unlock()
}

func (m *MemoryFS) GetFile(path string) File {
	return &memFile{fs: m, path: path}
}

func (m *MemoryFS) WriteFile(path string, data []byte) error {
	m.Add(path, data)
	return nil
}

func (m *MemoryFS) Glob(pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []string
	for path := range m.files {
		ok, err := filepath.Match(pattern, path)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, path)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

type memFile struct {
	fs   *MemoryFS
	path string
}

func (f *memFile) Path() string { return f.path }

func (f *memFile) Exists() bool {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	_, ok := f.fs.files[f.path]
	return ok
}

func (f *memFile) ReadAllBytes() ([]byte, error) {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	data, ok := f.fs.files[f.path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: f.path, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (f *memFile) ReadAllText() (string, error) {
	data, err := f.ReadAllBytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *memFile) Open() (io.ReadCloser, error) {
	data, err := f.ReadAllBytes()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
