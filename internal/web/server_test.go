package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-enroll/internal/config"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
)

type staticSyncer struct {
	report *enroll.Report
}

func (s staticSyncer) Sync(context.Context) (*enroll.Report, error) {
	return s.report, nil
}

type noFaces struct{}

func (noFaces) DetectAndEncode(context.Context, []byte) ([]fingerprint.FaceDetection, error) {
	return nil, nil
}

func testServer(t *testing.T) (*Server, *facematch.RecordSet) {
	t.Helper()
	profile, err := enroll.ParseProfile([]byte(`{"name":"Alice"}`))
	if err != nil {
		t.Fatalf("failed to parse profile: %v", err)
	}
	entry := &enroll.EncodedEntry{ID: "id-001", Profile: profile, Vector: []float32{1, 0}}
	rec, err := entry.Record("alice")
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}

	cfg := &config.Config{
		Match: config.MatchConfig{Tolerance: 0.5, Nearest: 3},
		Web:   config.WebConfig{Host: "127.0.0.1", Port: 18080},
	}
	records := facematch.NewRecordSet(nil)
	report := &enroll.Report{Records: []enroll.UserRecord{rec}, Index: enroll.Mapping{"id-001": "alice"}}
	return NewServer(cfg, records, staticSyncer{report: report}, noFaces{}), records
}

func TestServer_Addr(t *testing.T) {
	s, _ := testServer(t)
	if s.Addr() != "127.0.0.1:18080" {
		t.Errorf("expected 127.0.0.1:18080, got %s", s.Addr())
	}
}

func TestServer_Routes(t *testing.T) {
	s, records := testServer(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/users", http.StatusOK},
		{http.MethodGet, "/api/v1/users/alice", http.StatusNotFound},
		{http.MethodPost, "/api/v1/sync", http.StatusOK},
		{http.MethodGet, "/api/v1/users/alice", http.StatusOK},
		{http.MethodGet, "/api/v1/sync", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/match", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/mirror", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/mirror/users", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/mirror/users/id-001", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()

		s.Router().ServeHTTP(rec, req)

		if rec.Code != tc.wantStatus {
			t.Errorf("%s %s: expected status %d, got %d", tc.method, tc.path, tc.wantStatus, rec.Code)
		}
	}

	if records.Len() != 1 {
		t.Errorf("expected sync to publish 1 record, got %d", records.Len())
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff header, got %q", got)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}
