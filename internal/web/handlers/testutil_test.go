package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

// testRecord builds a validated record as the synchronizer would publish it.
func testRecord(t *testing.T, id, folder, profileJSON string, vector ...float32) enroll.UserRecord {
	t.Helper()
	profile, err := enroll.ParseProfile([]byte(profileJSON))
	if err != nil {
		t.Fatalf("failed to parse profile: %v", err)
	}
	entry := &enroll.EncodedEntry{ID: id, Profile: profile, Vector: vector}
	rec, err := entry.Record(folder)
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	return rec
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest builds a POST request uploading content as the named form field.
func multipartRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type fakeDetector struct {
	faces []fingerprint.FaceDetection
	err   error
	calls int
}

func (d *fakeDetector) DetectAndEncode(context.Context, []byte) ([]fingerprint.FaceDetection, error) {
	d.calls++
	return d.faces, d.err
}

type fakeSyncer struct {
	report *enroll.Report
	err    error
	// started and release, when set, block Sync until release is closed.
	started chan struct{}
	release chan struct{}
}

func (s *fakeSyncer) Sync(ctx context.Context) (*enroll.Report, error) {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return s.report, s.err
}

// fakeUserWriter keeps mirrored users in memory. distances, when set, are the
// FindNearest distances of users in order.
type fakeUserWriter struct {
	users     []database.StoredUser
	distances []float64
	err       error
}

func (w *fakeUserWriter) Get(_ context.Context, id string) (*database.StoredUser, error) {
	if w.err != nil {
		return nil, w.err
	}
	for i := range w.users {
		if w.users[i].ID == id {
			return &w.users[i], nil
		}
	}
	return nil, nil
}

func (w *fakeUserWriter) GetByName(_ context.Context, name string) ([]database.StoredUser, error) {
	if w.err != nil {
		return nil, w.err
	}
	var out []database.StoredUser
	for _, u := range w.users {
		if facematch.NormalizeName(u.Name) == facematch.NormalizeName(name) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (w *fakeUserWriter) List(context.Context) ([]database.StoredUser, error) {
	return w.users, w.err
}

func (w *fakeUserWriter) Count(context.Context) (int, error) {
	return len(w.users), w.err
}

func (w *fakeUserWriter) FindNearest(_ context.Context, _ []float32, limit int) ([]database.StoredUser, []float64, error) {
	if w.err != nil {
		return nil, nil, w.err
	}
	n := min(limit, len(w.users), len(w.distances))
	return w.users[:n], w.distances[:n], nil
}

func (w *fakeUserWriter) ReplaceAll(_ context.Context, users []database.StoredUser) (database.ReplaceStats, error) {
	if w.err != nil {
		return database.ReplaceStats{}, w.err
	}
	w.users = users
	return database.ReplaceStats{Inserted: len(users)}, nil
}

// registerUsers installs w as the PostgreSQL backend for the test.
func registerUsers(t *testing.T, w *fakeUserWriter) {
	t.Helper()
	database.RegisterPostgresBackend(
		func() database.UserReader { return w },
		func() database.UserWriter { return w },
	)
	t.Cleanup(database.ResetBackend)
}
