package facematch

import (
	"slices"
	"sync"

	"github.com/kozaktomas/face-enroll/internal/enroll"
)

// RecordSet publishes the validated record set of the latest reconciliation.
// Replace swaps the whole set at once, so readers never see a partial set.
type RecordSet struct {
	mu      sync.RWMutex
	records []enroll.UserRecord
}

// NewRecordSet creates a set holding records.
func NewRecordSet(records []enroll.UserRecord) *RecordSet {
	return &RecordSet{records: slices.Clone(records)}
}

// Records returns the current records in match order.
func (s *RecordSet) Records() []enroll.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Replace publishes a new record set.
func (s *RecordSet) Replace(records []enroll.UserRecord) {
	records = slices.Clone(records)
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

// Len returns the number of published records.
func (s *RecordSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FindByName returns the first record whose name matches after normalisation.
func (s *RecordSet) FindByName(name string) (enroll.UserRecord, bool) {
	want := NormalizeName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if NormalizeName(r.Name()) == want {
			return r, true
		}
	}
	return enroll.UserRecord{}, false
}

// FindByID returns the record stored under id.
func (s *RecordSet) FindByID(id string) (enroll.UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID() == id {
			return r, true
		}
	}
	return enroll.UserRecord{}, false
}
