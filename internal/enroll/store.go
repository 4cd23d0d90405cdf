package enroll

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/renameio"
)

// entryExt is the file extension of persisted entries.
const entryExt = ".json"

// tempEntryPattern matches the hidden temp files renameio leaves behind when a
// write is interrupted before the rename.
var tempEntryPattern = regexp.MustCompile(`^\..+\` + entryExt + `\d+$`)

// Store is durable key to EncodedEntry storage.
type Store interface {
	// Put writes the entry under id, replacing any previous content atomically.
	Put(id string, entry *EncodedEntry) error
	// Get returns the entry for id, or ErrNotFound if it is absent or corrupt.
	Get(id string) (*EncodedEntry, error)
	// Delete removes the entry, or returns ErrNotFound if it does not exist.
	Delete(id string) error
	// List returns the ids of all stored entries in sorted order.
	List() ([]string, error)
}

// FileStore keeps one JSON file per entry inside a directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a store rooted at dir. The directory must exist.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = discardLogger()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Dir returns the directory holding the entry files.
func (s *FileStore) Dir() string {
	return s.dir
}

// validID rejects ids that cannot be used as a plain file name.
func validID(id string) bool {
	return id != "" && !strings.HasPrefix(id, ".") && !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+entryExt)
}

// Put writes entry under id through a temp file and rename.
func (s *FileStore) Put(id string, entry *EncodedEntry) error {
	if !validID(id) {
		return fmt.Errorf("%w: invalid entry id %q", ErrPersistence, id)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding entry %s: %v", ErrPersistence, id, err)
	}
	if err := renameio.WriteFile(s.path(id), data, 0o600); err != nil {
		return fmt.Errorf("%w: writing entry %s: %v", ErrPersistence, id, err)
	}
	return nil
}

// Get reads and validates the entry for id. Undecodable or invalid entries are reported as ErrNotFound.
func (s *FileStore) Get(id string) (*EncodedEntry, error) {
	if !validID(id) {
		return nil, fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry %s: %v", ErrPersistence, id, err)
	}

	var entry EncodedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("corrupt cache entry", "id", id, "error", err)
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err := entry.Profile.Validate(); err != nil {
		s.logger.Warn("invalid cache entry profile", "id", id, "error", err)
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err := ValidateVector(entry.Vector); err != nil {
		s.logger.Warn("invalid cache entry vector", "id", id, "error", err)
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	entry.ID = id
	return &entry, nil
}

// Delete removes the entry file for id.
func (s *FileStore) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: deleting entry %s: %v", ErrPersistence, id, err)
	}
	return nil
}

// List enumerates entry ids. Hidden files, directories and files without the
// entry extension are ignored.
func (s *FileStore) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrPersistence, s.dir, err)
	}

	ids := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(name, entryExt) {
			s.logger.Debug("ignoring non-entry file in store", "file", name)
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, entryExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// RemoveTemp deletes temp files left by interrupted writes and returns their names.
func (s *FileStore) RemoveTemp() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrPersistence, s.dir, err)
	}

	var removed []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !tempEntryPattern.MatchString(name) {
			continue
		}
		err := os.Remove(filepath.Join(s.dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%w: removing temp file %s: %v", ErrPersistence, name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
