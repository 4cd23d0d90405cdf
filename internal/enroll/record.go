package enroll

import (
	"fmt"
	"math"
	"time"
)

// UserRecord is a validated, in-memory enrolled user: profile plus feature vector.
type UserRecord struct {
	id     string
	folder string
	prof   Profile
	vector []float32
}

// NewUserRecord builds a record from a profile and its feature vector.
// It fails with ErrMalformedSource if the profile lacks a usable name or uses a
// reserved key, and with ErrInvalidVector if the vector is empty or not finite.
func NewUserRecord(profile Profile, vector []float32) (UserRecord, error) {
	if err := profile.Validate(); err != nil {
		return UserRecord{}, err
	}
	if err := ValidateVector(vector); err != nil {
		return UserRecord{}, err
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	return UserRecord{prof: profile.clone(), vector: v}, nil
}

// ValidateVector checks that a feature vector is a non-empty array of finite numbers.
func ValidateVector(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	for i, f := range vector {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: element %d is %v", ErrInvalidVector, i, f)
		}
	}
	return nil
}

// ID returns the store identifier the record was loaded from, if any.
func (r UserRecord) ID() string { return r.id }

// Folder returns the enrollment folder the record was derived from, if known.
func (r UserRecord) Folder() string { return r.folder }

// Name returns the required name field.
func (r UserRecord) Name() string { return r.prof.Name() }

// Profile returns the record's profile.
func (r UserRecord) Profile() Profile { return r.prof.clone() }

// Vector returns a copy of the feature vector.
func (r UserRecord) Vector() []float32 {
	out := make([]float32, len(r.vector))
	copy(out, r.vector)
	return out
}

// Dim returns the vector length.
func (r UserRecord) Dim() int { return len(r.vector) }

// EncodedEntry is the persisted form of a UserRecord in the Store.
type EncodedEntry struct {
	ID        string    `json:"id"`
	Profile   Profile   `json:"profile"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model,omitempty"`
	ImageHash string    `json:"image_hash,omitempty"`
	EncodedAt time.Time `json:"encoded_at"`
}

// Record converts the entry into a validated UserRecord tied to folder.
func (e *EncodedEntry) Record(folder string) (UserRecord, error) {
	rec, err := NewUserRecord(e.Profile, e.Vector)
	if err != nil {
		return UserRecord{}, err
	}
	rec.id = e.ID
	rec.folder = folder
	return rec, nil
}
