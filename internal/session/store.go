// Package session persists one authenticated browser session per role on the
// local filesystem. Records are published atomically, so readers never take a
// lock and never observe a partially written file.
package session

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopqa/authcache/internal/errors"
	"github.com/shopqa/authcache/internal/role"
	"github.com/shopqa/authcache/internal/util"
)

// FileExt is the extension of session record files.
const FileExt = ".json"

// Record is a stored session. Data is the browser storage state and is
// opaque to the store.
type Record struct {
	Role    role.Role
	Data    []byte
	ModTime time.Time
}

// Age returns how long ago the record was published.
func (r *Record) Age() time.Duration {
	return time.Since(r.ModTime)
}

// Info describes a record on disk without loading its data.
type Info struct {
	Role    role.Role
	Path    string
	Size    int64
	ModTime time.Time
}

// Store maps each role to {dir}/{role}.json. It holds no in-process lock:
// writers serialize through filelock, readers rely on atomic rename.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first Write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the record path for a role.
func (s *Store) Path(r role.Role) string {
	return filepath.Join(s.dir, string(r)+FileExt)
}

// Exists reports whether a record is present for the role.
func (s *Store) Exists(r role.Role) bool {
	info, err := os.Stat(s.Path(r))
	return err == nil && info.Mode().IsRegular()
}

// Read loads the role's record. It returns a NotFoundError when none exists.
func (s *Store) Read(r role.Role) (*Record, error) {
	path := s.Path(r)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("session", string(r)).WithCause(err)
		}
		return nil, errors.NewSessionError("failed to open session", err).WithRole(string(r)).WithPath(path)
	}
	defer f.Close()

	// Stat the open file so ModTime belongs to the same inode as Data even if
	// a writer renames a new record into place meanwhile.
	info, err := f.Stat()
	if err != nil {
		return nil, errors.NewSessionError("failed to stat session", err).WithRole(string(r)).WithPath(path)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.NewSessionError("failed to read session", err).WithRole(string(r)).WithPath(path)
	}

	return &Record{Role: r, Data: data, ModTime: info.ModTime()}, nil
}

// Write atomically publishes data as the role's record, replacing any
// previous one.
func (s *Store) Write(r role.Role, data []byte) error {
	path := s.Path(r)
	if len(data) == 0 {
		return errors.NewSessionError("refusing to publish empty session", errors.ErrInvalidInput).
			WithRole(string(r)).WithPath(path)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewSessionError("failed to create session directory", err).WithRole(string(r)).WithPath(path)
	}
	if err := util.WriteFileAtomic(path, data, 0600); err != nil {
		return errors.NewSessionError("failed to publish session", err).WithRole(string(r)).WithPath(path)
	}
	return nil
}

// Delete removes the role's record. Deleting a missing record is not an error.
func (s *Store) Delete(r role.Role) error {
	path := s.Path(r)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewSessionError("failed to delete session", err).WithRole(string(r)).WithPath(path)
	}
	return nil
}

// List describes every stored record whose file name is a known role,
// ordered by role declaration order. A missing directory yields no records.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	order := make(map[role.Role]int)
	for i, r := range role.All() {
		order[r] = i
	}

	var infos []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, FileExt) {
			continue
		}
		r, err := role.Parse(strings.TrimSuffix(name, FileExt))
		if err != nil {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue // removed since ReadDir
		}
		infos = append(infos, Info{
			Role:    r,
			Path:    filepath.Join(s.dir, name),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return order[infos[i].Role] < order[infos[j].Role]
	})
	return infos, nil
}
