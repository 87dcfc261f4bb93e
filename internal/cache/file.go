package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileStore keeps one CBOR file per key under a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".cbor")
}

// Get decodes the entry for key.
func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: read %s: %w", key, err)
	}

	entry := new(Entry)
	if err := unmarshal(data, entry); err != nil {
		return nil, err
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return entry, nil
}

// Set writes the entry to a temp file in the same directory and renames it
// over the previous one, so readers never observe a partial write.
func (s *FileStore) Set(_ context.Context, entry *Entry) error {
	data, err := marshal(entry)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(entry.Key)); err != nil {
		return fmt.Errorf("cache: replace %s: %w", entry.Key, err)
	}
	return nil
}

// FileLock is a lock file at a well-known path. Existence is the lock; the
// file body records the owner and creation time.
type FileLock struct {
	path string
}

// NewFileLock returns a FileLock at path.
func NewFileLock(path string) (*FileLock, error) {
	if path == "" {
		return nil, errors.New("cache: lock path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cache: create lock dir: %w", err)
	}
	return &FileLock{path: path}, nil
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// AcquireLock creates the lock file exclusively.
func (l *FileLock) AcquireLock(_ context.Context, lock Lock) error {
	data, err := marshal(lock)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrLockHeld
		}
		return fmt.Errorf("cache: create lock: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(l.path)
		return fmt.Errorf("cache: write lock: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("cache: close lock: %w", err)
	}
	return nil
}

// ReadLock returns the lock recorded in the file. A file whose body cannot be
// decoded (a crash between create and write) is dated by its mtime.
func (l *FileLock) ReadLock(_ context.Context, name string) (*Lock, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: stat lock: %w", err)
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: read lock: %w", err)
	}

	lock := new(Lock)
	if err := unmarshal(data, lock); err != nil || lock.CreatedAt.IsZero() {
		return &Lock{Name: name, CreatedAt: info.ModTime()}, nil
	}
	return lock, nil
}

// ReleaseLock removes the lock file if owner still holds it. A body that
// cannot be decoded has no owner and is released by the empty owner that
// ReadLock reported for it. A missing file is not an error.
func (l *FileLock) ReleaseLock(ctx context.Context, name, owner string) error {
	held, err := l.ReadLock(ctx, name)
	if err != nil {
		return err
	}
	if held == nil || held.Owner != owner {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: remove lock: %w", err)
	}
	return nil
}
