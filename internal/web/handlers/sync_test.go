package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/facematch"
)

func testReport(t *testing.T) *enroll.Report {
	t.Helper()
	return &enroll.Report{
		Records: []enroll.UserRecord{
			testRecord(t, "id-001", "alice", `{"name":"Alice"}`, 1, 0),
			testRecord(t, "id-002", "bob", `{"name":"Bob"}`, 0, 1),
		},
		Index:          enroll.Mapping{"id-001": "alice", "id-002": "bob"},
		OrphansRemoved: []string{"id-000"},
		Encoded:        []string{"bob"},
		Unchanged:      1,
		Skipped: []*enroll.FolderError{
			{Folder: "carol", Err: enroll.ErrMalformedSource},
		},
		Duration: 1500 * time.Millisecond,
	}
}

func TestSyncHandler_Sync(t *testing.T) {
	records := facematch.NewRecordSet(nil)
	index := database.NewUserIndex()
	handler := NewSyncHandler(&fakeSyncer{report: testReport(t)}, records, index)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	recorder := httptest.NewRecorder()

	handler.Sync(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["users"] != float64(2) {
		t.Errorf("expected 2 users, got %v", result["users"])
	}
	if result["duration_ms"] != float64(1500) {
		t.Errorf("expected duration_ms 1500, got %v", result["duration_ms"])
	}
	if result["unchanged"] != float64(1) {
		t.Errorf("expected unchanged 1, got %v", result["unchanged"])
	}
	skipped, ok := result["skipped"].([]any)
	if !ok || len(skipped) != 1 {
		t.Fatalf("expected 1 skipped folder, got %v", result["skipped"])
	}
	if folder := skipped[0].(map[string]any)["folder"]; folder != "carol" {
		t.Errorf("expected skipped folder carol, got %v", folder)
	}
	if _, ok := result["database"]; ok {
		t.Error("expected no database stats without a backend")
	}

	if records.Len() != 2 {
		t.Errorf("expected 2 published records, got %d", records.Len())
	}
	if index.Count() != 2 {
		t.Errorf("expected 2 indexed users, got %d", index.Count())
	}
}

func TestSyncHandler_SyncError(t *testing.T) {
	existing := testRecord(t, "id-009", "zoe", `{"name":"Zoe"}`, 1, 1)
	records := facematch.NewRecordSet([]enroll.UserRecord{existing})
	syncer := &fakeSyncer{err: errors.New("cache consistency violated")}
	handler := NewSyncHandler(syncer, records, database.NewUserIndex())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	recorder := httptest.NewRecorder()

	handler.Sync(recorder, req)

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
	if records.Len() != 1 {
		t.Errorf("failed sync must keep the previous record set, got %d records", records.Len())
	}
}

func TestSyncHandler_Conflict(t *testing.T) {
	syncer := &fakeSyncer{
		report:  testReport(t),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	handler := NewSyncHandler(syncer, facematch.NewRecordSet(nil), database.NewUserIndex())

	done := make(chan int)
	go func() {
		recorder := httptest.NewRecorder()
		handler.Sync(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
		done <- recorder.Code
	}()
	<-syncer.started

	recorder := httptest.NewRecorder()
	handler.Sync(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if recorder.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, recorder.Code)
	}

	close(syncer.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("expected first sync to succeed, got %d", code)
	}
}

func TestSyncHandler_PushesToDatabase(t *testing.T) {
	writer := &fakeUserWriter{}
	registerUsers(t, writer)

	handler := NewSyncHandler(&fakeSyncer{report: testReport(t)}, facematch.NewRecordSet(nil), database.NewUserIndex())

	recorder := httptest.NewRecorder()
	handler.Sync(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}

	var result SyncResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result.Database == nil || result.Database.Inserted != 2 {
		t.Errorf("expected 2 inserted users, got %+v", result.Database)
	}
	if len(writer.users) != 2 || writer.users[0].Folder != "alice" {
		t.Errorf("unexpected mirrored users: %+v", writer.users)
	}
}

func TestSyncHandler_DatabaseFailureIsNotFatal(t *testing.T) {
	writer := &fakeUserWriter{err: errors.New("connection refused")}
	registerUsers(t, writer)

	records := facematch.NewRecordSet(nil)
	handler := NewSyncHandler(&fakeSyncer{report: testReport(t)}, records, database.NewUserIndex())

	recorder := httptest.NewRecorder()
	handler.Sync(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if records.Len() != 2 {
		t.Errorf("expected records published despite database failure, got %d", records.Len())
	}
}
