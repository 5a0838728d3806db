// Package vfs provides the file abstraction consumed by modules: a small
// FileSystem/File surface with an OS-backed implementation and an in-memory
// implementation for tests.
package vfs

import (
	"io"
	"os"
	"path/filepath"
)

// File represents a single file that may or may not exist.
type File interface {
	// Path returns the path this handle was created with.
	Path() string

	// Exists reports whether the file currently exists.
	Exists() bool

	// ReadAllBytes reads the entire file content.
	ReadAllBytes() ([]byte, error)

	// ReadAllText reads the entire file content as a string.
	ReadAllText() (string, error)

	// Open returns a fresh reader over the file content.
	Open() (io.ReadCloser, error)
}

// FileSystem is the engine's view of a file tree.
type FileSystem interface {
	// GetFile returns a handle for the given path. The file need not exist.
	GetFile(path string) File

	// WriteFile writes data to path, creating parent directories as needed.
	WriteFile(path string, data []byte) error

	// Glob returns the paths matching the pattern (filepath.Match syntax per
	// path element).
	Glob(pattern string) ([]string, error)
}

// ResolveRelative resolves path against the directory of base when path is
// relative. Absolute paths are returned unchanged.
func ResolveRelative(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(base), path)
}

// OS returns a FileSystem backed by the host file system.
func OS() FileSystem { return osFS{} }

type osFS struct{}

func (osFS) GetFile(path string) File { return osFile{path: path} }

func (osFS) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (osFS) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

type osFile struct {
	path string
}

func (f osFile) Path() string { return f.path }

func (f osFile) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && !info.IsDir()
}

func (f osFile) ReadAllBytes() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f osFile) ReadAllText() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f osFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
