package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const appDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// Exists reports whether something (file or directory) is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsFile reports whether a regular file is present at path.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// RemoveIfExists deletes a regular file at path. A missing file is not an error.
func RemoveIfExists(path string) error {
	if !IsFile(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
// The write is performed via a temporary file in the same directory
// followed by a rename to ensure atomicity on most filesystems.
func WriteJSONAtomic(filename string, v any) error {
	return writeAtomic(filename, func(w io.Writer) error {
		jsonEncoder := json.NewEncoder(w)
		jsonEncoder.SetEscapeHTML(true)
		jsonEncoder.SetIndent("", "  ")
		if err := jsonEncoder.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	})
}

// WriteYAMLAtomic is WriteJSONAtomic for YAML documents such as instance manifests.
func WriteYAMLAtomic(filename string, v any) error {
	return writeAtomic(filename, func(w io.Writer) error {
		yamlEncoder := yaml.NewEncoder(w)
		yamlEncoder.SetIndent(2)
		if err := yamlEncoder.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := yamlEncoder.Close(); err != nil {
			return fmt.Errorf("close yaml encoder: %w", err)
		}
		return nil
	})
}

func writeAtomic(filename string, encode func(io.Writer) error) error {
	if filename == "" {
		return errors.New("empty filename")
	}

	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	if err := encode(tempFile); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return err
	}

	// ensure data hits disk
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	// remove existing file to avoid permission issues on Windows
	if _, err := os.Stat(filename); err == nil {
		// ignore error; if remove fails, rename may still succeed on POSIX
		_ = os.Remove(filename)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

// LazyFile is an io.WriteCloser that creates its file on the first write,
// so a process that prints nothing leaves no file behind.
type LazyFile struct {
	Path string
	f    *os.File
}

func (l *LazyFile) Write(p []byte) (int, error) {
	if l.f == nil {
		if err := EnsureDir(filepath.Dir(l.Path)); err != nil {
			return 0, err
		}
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path derived by the application
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", l.Path, err)
		}
		l.f = f
	}
	return l.f.Write(p) //nolint:wrapcheck
}

func (l *LazyFile) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", l.Path, err)
	}
	return nil
}
