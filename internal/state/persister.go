package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// ErrNoState is returned by a Persister that has nothing saved yet
var ErrNoState = errors.New("no saved state")

// Persister stores the serialized state snapshot
type Persister interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FilePersister keeps the snapshot in a single file. Saves go to a
// temporary file in the same directory which is then renamed over the
// target, so readers never see a partial write.
type FilePersister struct {
	fs   afero.Fs
	path string
}

// NewFilePersister creates a persister for path on fs
func NewFilePersister(fs afero.Fs, path string) *FilePersister {
	return &FilePersister{fs: fs, path: path}
}

// Load reads the snapshot file
func (p *FilePersister) Load() ([]byte, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("failed to read %s: %w", p.path, err)
	}
	return data, nil
}

// Save replaces the snapshot file
func (p *FilePersister) Save(data []byte) error {
	return WriteFileAtomic(p.fs, p.path, data)
}

// WriteFileAtomic writes data to a temporary sibling of path and renames it into place
func WriteFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}

	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// MemoryPersister keeps the snapshot in memory
type MemoryPersister struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
}

// NewMemoryPersister creates a persister, optionally seeded with a snapshot
func NewMemoryPersister(seed []byte) *MemoryPersister {
	return &MemoryPersister{data: seed}
}

// Load returns the last saved snapshot
func (p *MemoryPersister) Load() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil, ErrNoState
	}
	return append([]byte(nil), p.data...), nil
}

// Save records the snapshot, or fails with the error set by FailSaves
func (p *MemoryPersister) Save(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.data = append([]byte(nil), data...)
	p.saves++
	return nil
}

// FailSaves makes every later Save return err; nil restores normal saves
func (p *MemoryPersister) FailSaves(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saveErr = err
}

// Saves returns the number of successful saves
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}
