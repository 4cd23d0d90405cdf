// Package enroll keeps the encoded face cache consistent with the raw enrollment folders.
//
// A Synchronizer reconciles three things: the raw Source (folders with a profile
// document and a reference image), the Store (one encoded entry per id) and the
// Index (id to folder mapping). Every pass removes unreferenced entries, drops
// stale mappings, encodes new folders, re-encodes folders whose profile changed,
// commits the Index and finally loads the validated record set.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

// Stage identifies the step of a reconciliation pass an Event belongs to.
type Stage string

const (
	StageOrphan   Stage = "orphan"
	StageDangling Stage = "dangling"
	StageEncode   Stage = "encode"
	StageDrift    Stage = "drift"
	StageCommit   Stage = "commit"
	StageLoad     Stage = "load"
)

// Event is emitted to Options.OnProgress while a pass runs.
type Event struct {
	Stage  Stage
	Folder string
	ID     string
	Err    error
}

// Options tune a Synchronizer. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// NewID generates entry identifiers. Defaults to random UUIDs.
	NewID func() string
	// Now stamps encoded entries. Defaults to time.Now.
	Now func() time.Time
	// ImageHash fingerprints reference images so image-only edits can be reported.
	// Defaults to a perceptual hash. Set to a func returning "" to disable.
	ImageHash func(image []byte) (string, error)
	// OnProgress receives an event for every entry or folder touched.
	OnProgress func(Event)
}

// Report summarises one reconciliation pass.
type Report struct {
	Records         []UserRecord   `json:"-"`
	Index           Mapping        `json:"index"`
	OrphansRemoved  []string       `json:"orphans_removed"`
	DanglingRemoved []string       `json:"dangling_removed"`
	Retired         []string       `json:"retired"`
	Encoded         []string       `json:"encoded"`
	Reencoded       []string       `json:"reencoded"`
	Unchanged       int            `json:"unchanged"`
	ImageChanged    []string       `json:"image_changed"`
	Skipped         []*FolderError `json:"-"`
	Duration        time.Duration  `json:"-"`
}

// Changed reports whether the pass modified the Store or Index.
func (r *Report) Changed() bool {
	return len(r.OrphansRemoved)+len(r.DanglingRemoved)+len(r.Retired)+len(r.Encoded)+len(r.Reencoded) > 0
}

// Synchronizer reconciles a Source with a Store and an Index.
// It is not safe for concurrent use; callers serialise passes.
type Synchronizer struct {
	source  Source
	store   Store
	index   Index
	encoder Encoder
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
	hash    func([]byte) (string, error)
	notify  func(Event)
}

// NewSynchronizer wires the collaborators of a reconciliation pass.
func NewSynchronizer(source Source, store Store, index Index, encoder Encoder, opts Options) *Synchronizer {
	s := &Synchronizer{
		source:  source,
		store:   store,
		index:   index,
		encoder: encoder,
		logger:  opts.Logger,
		newID:   opts.NewID,
		now:     opts.Now,
		hash:    opts.ImageHash,
		notify:  opts.OnProgress,
	}
	if s.logger == nil {
		s.logger = discardLogger()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hash == nil {
		s.hash = perceptualHash
	}
	if s.notify == nil {
		s.notify = func(Event) {}
	}
	return s
}

func perceptualHash(image []byte) (string, error) {
	h, err := fingerprint.ComputeHash(image)
	if err != nil {
		return "", fmt.Errorf("hashing reference image: %w", err)
	}
	return h.PHash, nil
}

// Sync runs one full reconciliation pass and returns the validated record set.
// Per-folder problems are listed in Report.Skipped; only persistence failures,
// consistency violations and context cancellation abort the pass.
func (s *Synchronizer) Sync(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{}

	m, err := s.index.Load()
	if err != nil {
		return nil, err
	}
	folders, err := s.source.List()
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(folders))
	for _, f := range folders {
		present[f] = struct{}{}
	}

	if err := s.removeOrphans(m, report); err != nil {
		return nil, err
	}

	entries, claimed, err := s.removeDangling(m, present, report)
	if err != nil {
		return nil, err
	}
	existing := m.Clone()

	for _, folder := range folders {
		if _, ok := claimed[folder]; ok {
			continue
		}
		id, err := s.enrollFolder(ctx, folder, nil)
		if err != nil {
			if fe, ok := asFolderError(err); ok {
				report.Skipped = append(report.Skipped, fe)
				continue
			}
			return nil, err
		}
		m[id] = folder
		report.Encoded = append(report.Encoded, folder)
	}

	for _, id := range existing.IDs() {
		if err := s.checkDrift(ctx, m, id, existing[id], entries[id], report); err != nil {
			return nil, err
		}
	}

	if err := s.index.Save(m); err != nil {
		return nil, err
	}
	s.notify(Event{Stage: StageCommit})

	records, err := s.loadRecords(m)
	if err != nil {
		return nil, err
	}

	report.Records = records
	report.Index = m.Clone()
	report.Duration = s.now().Sub(start)
	s.logger.Info("cache reconciled",
		"records", len(records),
		"orphans", len(report.OrphansRemoved),
		"dangling", len(report.DanglingRemoved),
		"encoded", len(report.Encoded),
		"reencoded", len(report.Reencoded),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

// tempRemover is implemented by stores that can leave partial writes behind.
type tempRemover interface {
	RemoveTemp() ([]string, error)
}

// removeOrphans deletes stored entries the index does not reference, along
// with temp files of interrupted writes.
func (s *Synchronizer) removeOrphans(m Mapping, report *Report) error {
	if tr, ok := s.store.(tempRemover); ok {
		removed, err := tr.RemoveTemp()
		if err != nil {
			return err
		}
		for _, name := range removed {
			s.logger.Warn("removed leftover temp file", "file", name)
		}
	}

	ids, err := s.store.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := m[id]; ok {
			continue
		}
		s.logger.Warn("unrecognized cache entry, removing", "id", id)
		if err := s.deleteEntry(id); err != nil {
			return err
		}
		report.OrphansRemoved = append(report.OrphansRemoved, id)
		s.notify(Event{Stage: StageOrphan, ID: id})
	}
	return nil
}

// removeDangling drops mappings whose folder vanished, whose entry is missing
// or corrupt, or whose folder is already claimed by a smaller id. It returns the
// surviving entries and the folder to id claims.
func (s *Synchronizer) removeDangling(m Mapping, present map[string]struct{}, report *Report) (map[string]*EncodedEntry, map[string]string, error) {
	entries := make(map[string]*EncodedEntry, len(m))
	claimed := make(map[string]string, len(m))

	for _, id := range m.IDs() {
		folder := m[id]
		reason := ""
		if _, ok := present[folder]; !ok {
			reason = "source folder missing"
		} else if entry, err := s.store.Get(id); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, nil, err
			}
			reason = "cache entry missing"
		} else if other, dup := claimed[folder]; dup {
			reason = "folder already mapped to " + other
		} else {
			entries[id] = entry
			claimed[folder] = id
			continue
		}

		s.logger.Warn("dropping stale index entry", "id", id, "folder", folder, "reason", reason)
		delete(m, id)
		if err := s.deleteEntry(id); err != nil {
			return nil, nil, err
		}
		report.DanglingRemoved = append(report.DanglingRemoved, id)
		s.notify(Event{Stage: StageDangling, ID: id, Folder: folder})
	}
	return entries, claimed, nil
}

// checkDrift compares a stored entry with the current profile of its folder and
// replaces the entry when they differ.
func (s *Synchronizer) checkDrift(ctx context.Context, m Mapping, id, folder string, entry *EncodedEntry, report *Report) error {
	current, err := s.source.ReadProfile(folder)
	if err != nil {
		if !IsSkippable(err) {
			return err
		}
		s.logger.Warn("profile no longer valid, retiring entry", "id", id, "folder", folder, "error", err)
		if err := s.retire(m, id, report); err != nil {
			return err
		}
		report.Skipped = append(report.Skipped, &FolderError{Folder: folder, Err: err})
		s.notify(Event{Stage: StageDrift, ID: id, Folder: folder, Err: err})
		return nil
	}

	if entry.Profile.Equal(current) {
		report.Unchanged++
		s.checkImage(folder, entry, report)
		s.notify(Event{Stage: StageDrift, ID: id, Folder: folder})
		return nil
	}

	s.logger.Info("modified user, re-encoding", "id", id, "folder", folder)
	if err := s.retire(m, id, report); err != nil {
		return err
	}
	newID, err := s.enrollFolder(ctx, folder, &current)
	if err != nil {
		if fe, ok := asFolderError(err); ok {
			report.Skipped = append(report.Skipped, fe)
			return nil
		}
		return err
	}
	m[newID] = folder
	report.Reencoded = append(report.Reencoded, folder)
	return nil
}

func (s *Synchronizer) retire(m Mapping, id string, report *Report) error {
	delete(m, id)
	if err := s.deleteEntry(id); err != nil {
		return err
	}
	report.Retired = append(report.Retired, id)
	return nil
}

// checkImage reports reference images edited after encoding. The cached vector
// is kept; only profile edits trigger re-encoding.
func (s *Synchronizer) checkImage(folder string, entry *EncodedEntry, report *Report) {
	image, err := s.source.ReadImage(folder)
	if err != nil {
		s.logger.Warn("reference image unreadable, keeping cached vector", "folder", folder, "error", err)
		report.ImageChanged = append(report.ImageChanged, folder)
		return
	}
	// Entries encoded from a format the hasher cannot decode carry no hash.
	if entry.ImageHash == "" {
		return
	}
	h, err := s.hash(image)
	if err != nil || h == "" || fingerprint.SameImage(h, entry.ImageHash, fingerprint.DefaultSameImageThreshold) {
		return
	}
	s.logger.Warn("reference image changed but profile did not, keeping cached vector",
		"folder", folder, "id", entry.ID)
	report.ImageChanged = append(report.ImageChanged, folder)
}

// enrollFolder encodes folder into a new entry and stores it under a fresh id.
// A nil profile is read from the source first. Per-folder failures are
// returned as *FolderError.
func (s *Synchronizer) enrollFolder(ctx context.Context, folder string, profile *Profile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var p Profile
	if profile != nil {
		p = *profile
	} else {
		var err error
		if p, err = s.source.ReadProfile(folder); err != nil {
			return "", s.folderFailure(folder, err)
		}
	}

	image, err := s.source.ReadImage(folder)
	if err != nil {
		return "", s.folderFailure(folder, err)
	}

	vector, err := s.encoder.Encode(ctx, image)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", s.folderFailure(folder, fmt.Errorf("%w: %w", ErrExtractionFailure, err))
	}
	if err := ValidateVector(vector); err != nil {
		return "", s.folderFailure(folder, fmt.Errorf("%w: %w", ErrExtractionFailure, err))
	}

	hash, err := s.hash(image)
	if err != nil {
		s.logger.Debug("reference image not hashable", "folder", folder, "error", err)
		hash = ""
	}

	entry := &EncodedEntry{
		ID:        s.newID(),
		Profile:   p,
		Vector:    vector,
		ImageHash: hash,
		EncodedAt: s.now().UTC(),
	}
	if mn, ok := s.encoder.(modelNamer); ok {
		entry.Model = mn.Model()
	}
	if err := s.store.Put(entry.ID, entry); err != nil {
		return "", err
	}

	s.logger.Info("encoded user", "folder", folder, "id", entry.ID, "name", p.Name())
	s.notify(Event{Stage: StageEncode, ID: entry.ID, Folder: folder})
	return entry.ID, nil
}

func (s *Synchronizer) folderFailure(folder string, err error) error {
	s.logger.Warn("skipping enrollment folder", "folder", folder, "error", err)
	fe := &FolderError{Folder: folder, Err: err}
	s.notify(Event{Stage: StageEncode, Folder: folder, Err: fe})
	return fe
}

func asFolderError(err error) (*FolderError, bool) {
	var fe *FolderError
	if errors.As(err, &fe) && IsSkippable(fe) {
		return fe, true
	}
	return nil, false
}

// loadRecords reads every referenced entry back from the store.
func (s *Synchronizer) loadRecords(m Mapping) ([]UserRecord, error) {
	ids := m.IDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return m[ids[i]] < m[ids[j]]
	})

	records := make([]UserRecord, 0, len(ids))
	for _, id := range ids {
		folder := m[id]
		entry, err := s.store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s for folder %s: %v", ErrConsistency, id, folder, err)
		}
		rec, err := entry.Record(folder)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s for folder %s: %v", ErrConsistency, id, folder, err)
		}
		records = append(records, rec)
		s.notify(Event{Stage: StageLoad, ID: id, Folder: folder})
	}
	return records, nil
}

func (s *Synchronizer) deleteEntry(id string) error {
	if err := s.store.Delete(id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
