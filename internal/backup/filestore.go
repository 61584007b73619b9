package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nerrad567/accessguard-core/internal/infrastructure/config"
)

// FileStore holds the file copy of each backup, keyed by base name.
type FileStore interface {
	// Put writes a file, replacing any existing one with the same name.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns ErrBackupNotFound if the file does not exist.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete is a no-op for missing files.
	Delete(ctx context.Context, name string) error

	// List returns every file name, sorted.
	List(ctx context.Context) ([]string, error)

	// Location describes where files go, for logs and status output.
	Location() string
}

// NewFileStore builds the store selected by cfg.Storage.
func NewFileStore(cfg config.BackupConfig) (FileStore, error) {
	switch cfg.Storage {
	case config.StorageS3:
		return NewS3Store(cfg.S3)
	case config.StorageLocal, "":
		return NewLocalStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown backup storage %q", cfg.Storage)
	}
}

// checkName rejects anything that is not a plain file name.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return nil
}

// LocalStore keeps backup files in a directory on local disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put writes through a temporary file and a rename so a crash never leaves
// a truncated backup under its final name.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("writing backup file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error takes precedence
		return fmt.Errorf("syncing backup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing backup file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting backup file permissions: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("renaming backup file: %w", err)
	}
	return nil
}

// Get reads a backup file.
func (s *LocalStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBackupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup file: %w", err)
	}
	return data, nil
}

// Delete removes a backup file.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting backup file: %w", err)
	}
	return nil
}

// List returns the regular files in the directory, skipping temporaries.
func (s *LocalStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing backup directory: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Location returns the directory path.
func (s *LocalStore) Location() string {
	return s.dir
}
