package budget

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

// FileStore keeps governor state in a single JSON file.
// Writes go to a temp file in the same directory which is fsynced and
// renamed over the target, so readers never observe a partial record.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string { return s.path }

// Ping checks that the state directory exists and is a directory.
func (s *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	fi, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // created on first Save
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Load reads and parses the state file.
func (s *FileStore) Load(_ context.Context) (domgov.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domgov.State{}, fmt.Errorf("%w: %s", domain.ErrStateNotFound, s.path)
		}
		return domgov.State{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeJSON(data)
}

// Save atomically replaces the state file.
func (s *FileStore) Save(ctx context.Context, st domgov.State) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context error is self-describing
	}
	data, err := encodeJSON(st)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return syncDir(dir)
}

// syncDir fsyncs a directory so a rename inside it survives power loss.
var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir %s: %w", dir, err)
	}
	return nil
}
