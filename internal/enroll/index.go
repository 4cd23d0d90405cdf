package enroll

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/google/renameio"
)

// indexVersion is bumped when the index document layout changes.
const indexVersion = 1

// Mapping maps entry ids to the enrollment folder they were derived from.
type Mapping map[string]string

// Clone returns an independent copy of m.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for id, folder := range m {
		out[id] = folder
	}
	return out
}

// IDs returns the ids in sorted order.
func (m Mapping) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasFolder reports whether any id maps to folder.
func (m Mapping) HasFolder(folder string) bool {
	for _, f := range m {
		if f == folder {
			return true
		}
	}
	return false
}

// Index persists the id to folder mapping as a single document.
type Index interface {
	// Load returns the persisted mapping, or an empty one if nothing usable is stored.
	Load() (Mapping, error)
	// Save replaces the persisted mapping as one atomic unit.
	Save(m Mapping) error
}

type indexDocument struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// FileIndex stores the mapping as a JSON document on disk.
type FileIndex struct {
	path   string
	logger *slog.Logger
}

// NewFileIndex creates an index backed by the file at path.
func NewFileIndex(path string, logger *slog.Logger) *FileIndex {
	if logger == nil {
		logger = discardLogger()
	}
	return &FileIndex{path: path, logger: logger}
}

// Path returns the location of the index document.
func (x *FileIndex) Path() string {
	return x.path
}

// Load reads the index document. A missing or undecodable document yields an empty mapping.
func (x *FileIndex) Load() (Mapping, error) {
	data, err := os.ReadFile(x.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading index %s: %v", ErrPersistence, x.path, err)
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		x.logger.Warn("index document unreadable, starting empty", "path", x.path, "error", err)
		return Mapping{}, nil
	}
	if doc.Version != indexVersion {
		x.logger.Warn("unsupported index version, starting empty", "path", x.path, "version", doc.Version)
		return Mapping{}, nil
	}

	m := make(Mapping, len(doc.Entries))
	for id, folder := range doc.Entries {
		m[id] = folder
	}
	return m, nil
}

// Save writes the whole mapping through a temp file and rename, so an
// interrupted save leaves the previous document in place.
func (x *FileIndex) Save(m Mapping) error {
	doc := indexDocument{
		Version: indexVersion,
		Entries: make(map[string]string, len(m)),
	}
	for id, folder := range m {
		doc.Entries[id] = folder
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding index: %v", ErrPersistence, err)
	}
	data = append(data, '\n')

	if err := renameio.WriteFile(x.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: writing index %s: %v", ErrPersistence, x.path, err)
	}
	return nil
}
