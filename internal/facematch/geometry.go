package facematch

import (
	"sort"

	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// RelativeBBox converts a pixel bbox [x1, y1, x2, y2] to relative [x, y, w, h]
// coordinates (0-1) of a width x height frame. Invalid input yields nil.
func RelativeBBox(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return nil
	}
	x1 := bbox[0] / float64(width)
	y1 := bbox[1] / float64(height)
	x2 := bbox[2] / float64(width)
	y2 := bbox[3] / float64(height)
	return []float64{x1, y1, x2 - x1, y2 - y1}
}

// SuppressOverlaps drops detections overlapping a higher-scoring detection by
// more than threshold IoU. Survivors keep their original order.
func SuppressOverlaps(faces []fingerprint.FaceDetection, threshold float64) []fingerprint.FaceDetection {
	order := make([]int, len(faces))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return faces[order[a]].DetScore > faces[order[b]].DetScore
	})

	keep := make([]bool, len(faces))
	kept := make([]int, 0, len(faces))
	for _, i := range order {
		suppressed := false
		for _, j := range kept {
			if ComputeIoU(faces[i].BBox, faces[j].BBox) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep[i] = true
			kept = append(kept, i)
		}
	}

	out := make([]fingerprint.FaceDetection, 0, len(kept))
	for i, f := range faces {
		if keep[i] {
			out = append(out, f)
		}
	}
	return out
}
