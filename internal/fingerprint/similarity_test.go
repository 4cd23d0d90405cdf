package fingerprint

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"scaled vectors", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"different lengths", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty vectors", []float32{}, []float32{}, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical vectors", []float32{0.6, 0.8}, []float32{0.6, 0.8}, 0},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, 2},
		{"different lengths", []float32{1}, []float32{1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{0, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineDistance(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-6 {
				t.Errorf("CosineDistance(%v, %v) = %f, want %f", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}
