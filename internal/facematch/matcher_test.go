package facematch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

func testRecord(t *testing.T, id, folder, name string, vector ...float32) enroll.UserRecord {
	t.Helper()
	profile, err := enroll.ParseProfile([]byte(`{"name":"` + name + `"}`))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	entry := &enroll.EncodedEntry{ID: id, Profile: profile, Vector: vector}
	rec, err := entry.Record(folder)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return rec
}

type fakeDetector struct {
	faces []fingerprint.FaceDetection
	err   error
}

func (d *fakeDetector) DetectAndEncode(context.Context, []byte) ([]fingerprint.FaceDetection, error) {
	return d.faces, d.err
}

func TestCompare(t *testing.T) {
	candidates := [][]float32{
		{1, 0},
		{0, 1},
		{0.9, 0.1},
		{},
	}

	result := Compare(candidates, []float32{1, 0}, 0.1)

	expected := []bool{true, false, true, false}
	if len(result) != len(expected) {
		t.Fatalf("Compare() returned %d results, want %d", len(result), len(expected))
	}
	for i := range expected {
		if result[i] != expected[i] {
			t.Errorf("Compare()[%d] = %v, want %v", i, result[i], expected[i])
		}
	}
}

func TestCompareNoCandidates(t *testing.T) {
	if result := Compare(nil, []float32{1}, 0.5); len(result) != 0 {
		t.Errorf("Compare(nil) = %v, want empty", result)
	}
}

func TestMatcherMatch(t *testing.T) {
	set := NewRecordSet([]enroll.UserRecord{
		testRecord(t, "id-1", "alice", "Alice", 1, 0, 0),
		testRecord(t, "id-2", "alice-twin", "Alice Twin", 1, 0, 0),
		testRecord(t, "id-3", "bob", "Bob", 0, 1, 0),
	})
	matcher := NewMatcher(set, 0.2)

	tests := []struct {
		name     string
		query    []float32
		expected string
		known    bool
	}{
		{"first match wins ties", []float32{1, 0.05, 0}, "Alice", true},
		{"second user", []float32{0, 1, 0.1}, "Bob", true},
		{"nobody close", []float32{0, 0, 1}, Unknown, false},
		{"wrong dimension", []float32{1, 0}, Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matcher.Match(tt.query)
			if m.Name != tt.expected || m.Known != tt.known {
				t.Errorf("Match() = %+v, want name %q known %v", m, tt.expected, tt.known)
			}
		})
	}
}

func TestMatcherMatchEmptySet(t *testing.T) {
	m := NewMatcher(NewRecordSet(nil), 0).Match([]float32{1, 0})
	if m.Name != Unknown || m.Known {
		t.Errorf("Match() on empty set = %+v, want Unknown", m)
	}
}

func TestMatcherDefaultTolerance(t *testing.T) {
	if got := NewMatcher(NewRecordSet(nil), 0).Tolerance(); got != 0.5 {
		t.Errorf("Tolerance() = %v, want 0.5", got)
	}
}

func TestMatcherRecognize(t *testing.T) {
	set := NewRecordSet([]enroll.UserRecord{
		testRecord(t, "id-1", "alice", "Alice", 1, 0),
	})
	detector := &fakeDetector{faces: []fingerprint.FaceDetection{
		{FaceIndex: 0, Embedding: []float32{0, 1}, BBox: []float64{0, 0, 50, 50}, DetScore: 0.8},
		{FaceIndex: 1, Embedding: []float32{1, 0.01}, BBox: []float64{100, 0, 200, 100}, DetScore: 0.9},
	}}

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 200, 100))); err != nil {
		t.Fatalf("encoding frame: %v", err)
	}

	results, err := NewMatcher(set, 0.3).Recognize(context.Background(), detector, buf.Bytes())
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 recognitions, got %d", len(results))
	}
	if results[0].Name != Unknown {
		t.Errorf("results[0].Name = %s, want %s", results[0].Name, Unknown)
	}
	if results[1].Name != "Alice" || results[1].ID != "id-1" || results[1].Folder != "alice" {
		t.Errorf("results[1] = %+v, want Alice", results[1].Match)
	}
	want := []float64{0.5, 0, 0.5, 1}
	for i, v := range results[1].RelativeBBox {
		if v != want[i] {
			t.Errorf("RelativeBBox[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestMatcherRecognizeUndecodableFrame(t *testing.T) {
	set := NewRecordSet(nil)
	detector := &fakeDetector{faces: []fingerprint.FaceDetection{
		{FaceIndex: 0, Embedding: []float32{1}, BBox: []float64{0, 0, 1, 1}},
	}}

	results, err := NewMatcher(set, 0).Recognize(context.Background(), detector, []byte("webp-ish"))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(results) != 1 || results[0].RelativeBBox != nil {
		t.Errorf("expected one result without relative bbox, got %+v", results)
	}
}

func TestMatcherRecognizeDetectorError(t *testing.T) {
	detector := &fakeDetector{err: errors.New("server down")}

	_, err := NewMatcher(NewRecordSet(nil), 0).Recognize(context.Background(), detector, nil)
	if err == nil {
		t.Fatal("expected detector error to be returned")
	}
}

func TestRecordSetReplace(t *testing.T) {
	set := NewRecordSet([]enroll.UserRecord{testRecord(t, "id-1", "alice", "Alice", 1)})
	matcher := NewMatcher(set, 0.1)

	if m := matcher.Match([]float32{1}); m.Name != "Alice" {
		t.Fatalf("Match() = %s, want Alice", m.Name)
	}

	set.Replace([]enroll.UserRecord{testRecord(t, "id-2", "bob", "Bob", 1)})

	if m := matcher.Match([]float32{1}); m.Name != "Bob" {
		t.Errorf("Match() after Replace = %s, want Bob", m.Name)
	}
	if set.Len() != 1 {
		t.Errorf("Len() = %d, want 1", set.Len())
	}
}

func TestRecordSetConcurrentReplace(t *testing.T) {
	a := []enroll.UserRecord{testRecord(t, "id-1", "alice", "Alice", 1, 0)}
	b := []enroll.UserRecord{
		testRecord(t, "id-2", "bob", "Bob", 0, 1),
		testRecord(t, "id-3", "carol", "Carol", 1, 1),
	}
	set := NewRecordSet(a)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				set.Replace(a)
			} else {
				set.Replace(b)
			}
		}()
		go func() {
			defer wg.Done()
			if n := len(set.Records()); n != 1 && n != 2 {
				t.Errorf("observed partial record set of %d", n)
			}
		}()
	}
	wg.Wait()
}

func TestRecordSetFind(t *testing.T) {
	set := NewRecordSet([]enroll.UserRecord{
		testRecord(t, "id-1", "jiri", "Jiří Dvořák", 1),
		testRecord(t, "id-2", "bob", "Bob", 1),
	})

	if r, ok := set.FindByName("jiri-dvorak"); !ok || r.ID() != "id-1" {
		t.Errorf("FindByName(jiri-dvorak) = %v, %v", r.ID(), ok)
	}
	if _, ok := set.FindByName("carol"); ok {
		t.Error("FindByName(carol) should not find anything")
	}
	if r, ok := set.FindByID("id-2"); !ok || r.Name() != "Bob" {
		t.Errorf("FindByID(id-2) = %v, %v", r.Name(), ok)
	}
	if _, ok := set.FindByID("id-9"); ok {
		t.Error("FindByID(id-9) should not find anything")
	}
}

