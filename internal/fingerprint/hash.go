// Package fingerprint talks to the face embedding server and computes cheap
// image fingerprints and vector similarities used around the enrollment cache.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math"
	"math/bits"
	"slices"
	"strconv"

	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
)

// DefaultSameImageThreshold is the largest pHash Hamming distance at which two
// reference images are considered the same picture (recompression, metadata edits).
const DefaultSameImageThreshold = 6

// HashResult contains the perceptual hash of an image.
type HashResult struct {
	PHash     string `json:"phash"` // 64-bit DCT hash, hex
	PHashBits uint64 `json:"-"`
}

// ComputeHash decodes an image and computes its pHash.
func ComputeHash(imageData []byte) (*HashResult, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	p := perceptualHash(img)
	return &HashResult{
		PHash:     formatHash(p),
		PHashBits: p,
	}, nil
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// ParseHash parses a hex hash produced by ComputeHash.
func ParseHash(s string) (uint64, error) {
	h, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing hash %q: %w", s, err)
	}
	return h, nil
}

// HammingDistance counts the differing bits of two hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// Similar returns true if two hashes are within threshold bits of each other.
func Similar(hash1, hash2 uint64, threshold int) bool {
	return HammingDistance(hash1, hash2) <= threshold
}

// SameImage compares two hex hashes. Unparseable hashes only match when equal.
func SameImage(a, b string, threshold int) bool {
	ha, errA := ParseHash(a)
	hb, errB := ParseHash(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return Similar(ha, hb, threshold)
}

// perceptualHash keeps the sign of the low 8x8 DCT frequencies of a 32x32
// grayscale thumbnail relative to their median (DC term excluded from the median).
func perceptualHash(img image.Image) uint64 {
	const size, keep = 32, 8
	gray := grayscale(thumbnail(img, size, size))

	// Separable DCT-II: transform rows, then columns, only for the kept frequencies.
	rows := make([][keep]float64, size)
	for y := range size {
		for u := range keep {
			var sum float64
			for x := range size {
				sum += gray[y][x] * dctBasis(u, x, size)
			}
			rows[y][u] = sum
		}
	}
	var coeffs [keep * keep]float64
	for v := range keep {
		for u := range keep {
			var sum float64
			for y := range size {
				sum += rows[y][u] * dctBasis(v, y, size)
			}
			coeffs[v*keep+u] = sum
		}
	}

	median := medianOf(coeffs[1:])
	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

func dctBasis(freq, pos, size int) float64 {
	return math.Cos(math.Pi * float64(freq) * (2*float64(pos) + 1) / (2 * float64(size)))
}

func thumbnail(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// grayscale returns luma values indexed [y][x].
func grayscale(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	out := make([][]float64, b.Dy())
	for y := range b.Dy() {
		out[y] = make([]float64, b.Dx())
		for x := range b.Dx() {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			out[y][x] = float64(g.Y)
		}
	}
	return out
}

func medianOf(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
