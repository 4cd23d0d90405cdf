package enroll

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Default file names inside an enrollment folder.
const (
	DefaultProfileFile = "user.json"
	DefaultImageFile   = "face.jpg"
)

// Source is the raw enrollment directory. It is read-only to this package.
type Source interface {
	// List returns the enrollment folder names in sorted order.
	List() ([]string, error)
	// ReadProfile loads and validates the profile document of folder.
	ReadProfile(folder string) (Profile, error)
	// ReadImage loads the reference image of folder.
	ReadImage(folder string) ([]byte, error)
}

// DirSource reads enrollment folders from a directory on disk.
type DirSource struct {
	root        string
	profileFile string
	imageFile   string
}

// NewDirSource creates a source over root. Empty file names fall back to the defaults.
func NewDirSource(root, profileFile, imageFile string) *DirSource {
	if profileFile == "" {
		profileFile = DefaultProfileFile
	}
	if imageFile == "" {
		imageFile = DefaultImageFile
	}
	return &DirSource{root: root, profileFile: profileFile, imageFile: imageFile}
}

// Root returns the raw directory.
func (s *DirSource) Root() string {
	return s.root
}

// List returns every non-hidden subdirectory of the root.
func (s *DirSource) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing raw source %s: %w", s.root, err)
	}
	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		folders = append(folders, e.Name())
	}
	sort.Strings(folders)
	return folders, nil
}

// ReadProfile loads the profile document of folder.
func (s *DirSource) ReadProfile(folder string) (Profile, error) {
	path := filepath.Join(s.root, folder, s.profileFile)
	data, err := os.ReadFile(path) //nolint:gosec // path built from configured raw dir
	if err != nil {
		return Profile{}, fmt.Errorf("%w: reading %s: %v", ErrMalformedSource, s.profileFile, err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: parsing %s: %v", ErrMalformedSource, s.profileFile, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ReadImage loads the reference image of folder.
func (s *DirSource) ReadImage(folder string) ([]byte, error) {
	path := filepath.Join(s.root, folder, s.imageFile)
	data, err := os.ReadFile(path) //nolint:gosec // path built from configured raw dir
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrMalformedSource, s.imageFile, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformedSource, s.imageFile)
	}
	return data, nil
}
