package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store stages uploaded payloads as transient files in a single directory.
type Store struct {
	dir string
}

// File is one staged payload. It is owned by a single request.
type File struct {
	ID           string
	Path         string
	OriginalName string
	Size         int64
	ContentType  string

	removeOnce sync.Once
	removeErr  error
}

// NewStore prepares dir for staging. It is safe to call when the directory
// already exists and is meant to run once at startup.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("staging dir cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute staging directory.
func (s *Store) Dir() string {
	return s.dir
}

// Stage copies body into a new uniquely named file. On error nothing is left
// behind.
func (s *Store) Stage(ctx context.Context, body io.Reader, originalName string) (*File, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+safeExt(originalName))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	written, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close staged file: %w", err)
	}

	return &File{
		ID:           id,
		Path:         path,
		OriginalName: filepath.Base(originalName),
		Size:         written,
	}, nil
}

// Sweep removes staged files last modified before now-olderThan. It returns
// the number of files removed.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Open re-opens the staged file for reading.
func (f *File) Open() (*os.File, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return file, nil
}

// Remove deletes the staged file. Only the first call touches the
// filesystem; later calls return the same result. A file that is already
// gone is not an error.
func (f *File) Remove() error {
	f.removeOnce.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.removeErr = fmt.Errorf("remove staged file: %w", err)
		}
	})
	return f.removeErr
}

// safeExt keeps a short alphanumeric extension from the client file name so
// the downstream can still sniff the format from the name.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
