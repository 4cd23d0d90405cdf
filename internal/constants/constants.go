// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultMatchTolerance is the default maximum cosine distance at which a query
	// face is judged to be the same person as an enrolled user.
	// Lower values = stricter matching
	DefaultMatchTolerance = 0.5

	// OverlapThreshold is the Intersection over Union above which two detections
	// in the same frame are considered the same face
	OverlapThreshold = 0.6

	// MaxNearestLimit caps the nearest users a client may request
	MaxNearestLimit = 50
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) of images uploaded
	// to the embedding server
	MaxImageSize = 1920

	// MaxUploadSize is the largest query image accepted by the HTTP API
	MaxUploadSize = 32 << 20
)

// Enrollment layout constants
const (
	// DatabaseDir is the directory under the root holding raw and encoded data
	DatabaseDir = "database"
	// RawDir holds one enrollment folder per user
	RawDir = "raw"
	// EncodedDir holds the index document and the users directory
	EncodedDir = "encoded"
	// UsersDir holds one encoded entry per id
	UsersDir = "users"
	// IndexFile is the index document name inside EncodedDir
	IndexFile = "meta.json"
)
