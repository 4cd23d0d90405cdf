package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/facematch"
)

// MirrorHandler serves the enrolled users mirrored to PostgreSQL.
type MirrorHandler struct {
	records *facematch.RecordSet
}

// NewMirrorHandler creates a new mirror handler. records is the published
// record set the mirror is compared against.
func NewMirrorHandler(records *facematch.RecordSet) *MirrorHandler {
	return &MirrorHandler{records: records}
}

// MirroredUser is the API view of a mirrored row.
type MirroredUser struct {
	ID       string          `json:"id"`
	Folder   string          `json:"folder"`
	Name     string          `json:"name"`
	Profile  json.RawMessage `json:"profile"`
	Dim      int             `json:"dim"`
	SyncedAt time.Time       `json:"synced_at"`
}

// NewMirroredUser converts a stored row for output.
func NewMirroredUser(u database.StoredUser) MirroredUser {
	return MirroredUser{
		ID:       u.ID,
		Folder:   u.Folder,
		Name:     u.Name,
		Profile:  u.Profile,
		Dim:      u.Dim,
		SyncedAt: u.SyncedAt,
	}
}

// MirrorStatus compares the mirror with the published record set.
type MirrorStatus struct {
	Rows  int `json:"rows"`
	Users int `json:"users"`
}

// reader returns the mirror reader, answering 503 when no database is configured.
func (h *MirrorHandler) reader(w http.ResponseWriter) database.UserReader {
	reader, err := database.GetUserReader()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "database mirror not configured")
		return nil
	}
	return reader
}

// Status returns the mirrored row count next to the published user count.
func (h *MirrorHandler) Status(w http.ResponseWriter, r *http.Request) {
	reader := h.reader(w)
	if reader == nil {
		return
	}
	rows, err := reader.Count(r.Context())
	if err != nil {
		log.Printf("mirror count failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to count mirrored users")
		return
	}
	respondJSON(w, http.StatusOK, MirrorStatus{Rows: rows, Users: h.records.Len()})
}

// List returns the mirrored users, filtered by normalized name when ?name= is set.
func (h *MirrorHandler) List(w http.ResponseWriter, r *http.Request) {
	reader := h.reader(w)
	if reader == nil {
		return
	}

	var users []database.StoredUser
	var err error
	if name := r.URL.Query().Get("name"); name != "" {
		users, err = reader.GetByName(r.Context(), name)
	} else {
		users, err = reader.List(r.Context())
	}
	if err != nil {
		log.Printf("mirror list failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list mirrored users")
		return
	}

	result := make([]MirroredUser, len(users))
	for i, u := range users {
		result[i] = NewMirroredUser(u)
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns the mirrored row stored under the id path parameter.
func (h *MirrorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	reader := h.reader(w)
	if reader == nil {
		return
	}

	user, err := reader.Get(r.Context(), id)
	if err != nil {
		log.Printf("mirror get %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to get mirrored user")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, NewMirroredUser(*user))
}
