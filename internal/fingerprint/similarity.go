package fingerprint

import "math"

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// Mismatched lengths, empty or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	sim, _ := cosine(a, b)
	return sim
}

// CosineDistance is 1 - cosine similarity, in [0, 2]. Invalid input
// (mismatched lengths, empty or zero vectors) is reported as the maximum distance.
func CosineDistance(a, b []float32) float64 {
	sim, ok := cosine(a, b)
	if !ok {
		return 2
	}
	return 1 - sim
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// floating point noise can push the result slightly outside [-1, 1]
	return math.Max(-1, math.Min(1, sim)), true
}
