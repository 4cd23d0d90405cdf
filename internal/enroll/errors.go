package enroll

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Store lookups for absent or undecodable entries.
	ErrNotFound = errors.New("not found")

	// ErrMalformedSource marks an enrollment folder whose profile document or
	// reference image is missing, unreadable, or lacks a valid name.
	ErrMalformedSource = errors.New("malformed enrollment source")

	// ErrExtractionFailure marks a reference image the encoder could not turn into a vector.
	ErrExtractionFailure = errors.New("feature extraction failed")

	// ErrInvalidVector is returned when a feature vector is empty or contains NaN/Inf values.
	ErrInvalidVector = errors.New("invalid feature vector")

	// ErrConsistency is returned when the final record set references an entry
	// that can no longer be read. It indicates an external mutation during the run.
	ErrConsistency = errors.New("cache consistency violated")

	// ErrPersistence wraps I/O failures writing or reading the Store or Index.
	ErrPersistence = errors.New("persistence failure")
)

// FolderError reports a per-folder failure that was skipped during a pass.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("folder %s: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error {
	return e.Err
}

// IsSkippable reports whether err is a per-folder failure that must not abort a pass.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrMalformedSource) || errors.Is(err, ErrExtractionFailure)
}
