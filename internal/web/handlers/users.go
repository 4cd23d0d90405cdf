package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/facematch"
)

// UsersHandler serves the currently published record set.
type UsersHandler struct {
	records *facematch.RecordSet
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(records *facematch.RecordSet) *UsersHandler {
	return &UsersHandler{records: records}
}

// UserResponse is the API view of an enrolled user.
type UserResponse struct {
	ID      string         `json:"id"`
	Folder  string         `json:"folder"`
	Name    string         `json:"name"`
	Profile enroll.Profile `json:"profile"`
	Dim     int            `json:"dim"`
}

func userResponse(rec enroll.UserRecord) UserResponse {
	return UserResponse{
		ID:      rec.ID(),
		Folder:  rec.Folder(),
		Name:    rec.Name(),
		Profile: rec.Profile(),
		Dim:     rec.Dim(),
	}
}

// List returns every enrolled user.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.records.Records()
	result := make([]UserResponse, len(records))
	for i, rec := range records {
		result[i] = userResponse(rec)
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns the user whose normalized name matches the path parameter.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if facematch.NormalizeName(name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	rec, ok := h.records.FindByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, userResponse(rec))
}
