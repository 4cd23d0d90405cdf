// Package facematch matches query faces against the enrolled record set
// produced by the enrollment cache.
package facematch

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/face-enroll/internal/constants"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

// Unknown is the name reported for faces that match no enrolled user.
const Unknown = "Unknown"

// Compare judges every candidate against query. A candidate matches when its
// cosine distance to query is at most tolerance.
func Compare(candidates [][]float32, query []float32, tolerance float64) []bool {
	out := make([]bool, len(candidates))
	for i, c := range candidates {
		out[i] = fingerprint.CosineDistance(c, query) <= tolerance
	}
	return out
}

// Match is the outcome of matching one query vector.
type Match struct {
	Name     string  `json:"name"`
	Known    bool    `json:"known"`
	ID       string  `json:"id,omitempty"`
	Folder   string  `json:"folder,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// Recognition is a matched face located in a query image.
type Recognition struct {
	Match
	FaceIndex    int       `json:"face_index"`
	BBox         []float64 `json:"bbox"`                    // [x1, y1, x2, y2] pixels
	RelativeBBox []float64 `json:"relative_bbox,omitempty"` // [x, y, w, h] 0-1
	DetScore     float64   `json:"det_score"`
	Embedding    []float32 `json:"-"`
}

// Detector finds and encodes every face of a query image.
type Detector interface {
	DetectAndEncode(ctx context.Context, frame []byte) ([]fingerprint.FaceDetection, error)
}

var _ Detector = (*fingerprint.EmbeddingClient)(nil)

// Matcher matches query vectors against the records currently published in a RecordSet.
type Matcher struct {
	records   *RecordSet
	tolerance float64
}

// NewMatcher creates a matcher. A tolerance <= 0 uses constants.DefaultMatchTolerance.
func NewMatcher(records *RecordSet, tolerance float64) *Matcher {
	if tolerance <= 0 {
		tolerance = constants.DefaultMatchTolerance
	}
	return &Matcher{records: records, tolerance: tolerance}
}

// Tolerance returns the maximum cosine distance judged a match.
func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Match returns the first record judged a match, in record order, or Unknown.
func (m *Matcher) Match(query []float32) Match {
	records := m.records.Records()
	candidates := make([][]float32, len(records))
	for i, r := range records {
		candidates[i] = r.Vector()
	}

	for i, ok := range Compare(candidates, query, m.tolerance) {
		if !ok {
			continue
		}
		r := records[i]
		return Match{
			Name:     r.Name(),
			Known:    true,
			ID:       r.ID(),
			Folder:   r.Folder(),
			Distance: fingerprint.CosineDistance(candidates[i], query),
		}
	}
	return Match{Name: Unknown}
}

// Recognize detects every face in frame and matches each one. Results follow
// detection order; duplicate detections of the same face are dropped.
func (m *Matcher) Recognize(ctx context.Context, detector Detector, frame []byte) ([]Recognition, error) {
	faces, err := detector.DetectAndEncode(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	faces = SuppressOverlaps(faces, constants.OverlapThreshold)

	var width, height int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(frame)); err == nil {
		width, height = cfg.Width, cfg.Height
	}

	out := make([]Recognition, 0, len(faces))
	for _, face := range faces {
		out = append(out, Recognition{
			Match:        m.Match(face.Embedding),
			FaceIndex:    face.FaceIndex,
			BBox:         face.BBox,
			RelativeBBox: RelativeBBox(face.BBox, width, height),
			DetScore:     face.DetScore,
			Embedding:    face.Embedding,
		})
	}
	return out, nil
}
