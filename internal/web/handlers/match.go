package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/kozaktomas/face-enroll/internal/constants"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/facematch"
)

// MatchHandler recognizes faces in uploaded images.
type MatchHandler struct {
	matcher  *facematch.Matcher
	detector facematch.Detector
	index    *database.UserIndex
	nearest  int
}

// NewMatchHandler creates a new match handler. nearest is the default number
// of nearest users reported per face.
func NewMatchHandler(
	matcher *facematch.Matcher, detector facematch.Detector, index *database.UserIndex, nearest int,
) *MatchHandler {
	return &MatchHandler{
		matcher:  matcher,
		detector: detector,
		index:    index,
		nearest:  nearest,
	}
}

// FaceResult is one recognized face with its closest enrolled users.
type FaceResult struct {
	facematch.Recognition
	Nearest []database.Neighbor `json:"nearest,omitempty"`
}

// MatchResponse is the result of recognizing one image.
type MatchResponse struct {
	Faces     []FaceResult `json:"faces"`
	Count     int          `json:"count"`
	Tolerance float64      `json:"tolerance"`
}

// Match handles a multipart image upload and recognizes every face in it.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	nearest, err := queryInt(r, "nearest", h.nearest, 0, constants.MaxNearestLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// ?source=db answers nearest users from the PostgreSQL mirror instead of the HNSW index.
	var mirror database.UserReader
	switch source := r.URL.Query().Get("source"); source {
	case "", "index":
	case "db":
		if mirror, err = database.GetUserReader(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database mirror not configured")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "source must be index or db")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "file is empty")
		return
	}

	recognitions, err := h.matcher.Recognize(r.Context(), h.detector, data)
	if err != nil {
		log.Printf("match %s failed: %v", sanitizeForLog(header.Filename), err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}

	faces := make([]FaceResult, 0, len(recognitions))
	for _, rec := range recognitions {
		result := FaceResult{Recognition: rec}
		if nearest > 0 {
			neighbors, err := database.NearestUsers(r.Context(), mirror, h.index, rec.Embedding, nearest)
			if err != nil {
				log.Printf("warning: nearest search for face %d: %v", rec.FaceIndex, err)
			}
			result.Nearest = neighbors
		}
		faces = append(faces, result)
	}

	respondJSON(w, http.StatusOK, MatchResponse{
		Faces:     faces,
		Count:     len(faces),
		Tolerance: h.matcher.Tolerance(),
	})
}
