package handlers

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/facematch"
)

// Syncer runs one reconciliation pass of the enrollment cache.
type Syncer interface {
	Sync(ctx context.Context) (*enroll.Report, error)
}

// SyncHandler re-runs the cache reconciliation and publishes its result.
type SyncHandler struct {
	syncer  Syncer
	records *facematch.RecordSet
	index   *database.UserIndex
	running atomic.Bool
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncer Syncer, records *facematch.RecordSet, index *database.UserIndex) *SyncHandler {
	return &SyncHandler{
		syncer:  syncer,
		records: records,
		index:   index,
	}
}

// SkippedFolder is a folder left out of a pass.
type SkippedFolder struct {
	Folder string `json:"folder"`
	Error  string `json:"error"`
}

// SyncResponse summarizes a reconciliation pass.
type SyncResponse struct {
	*enroll.Report
	Users      int                    `json:"users"`
	Skipped    []SkippedFolder        `json:"skipped"`
	DurationMs int64                  `json:"duration_ms"`
	Database   *database.ReplaceStats `json:"database,omitempty"`
}

// NewSyncResponse builds the API summary of report.
func NewSyncResponse(report *enroll.Report) SyncResponse {
	skipped := make([]SkippedFolder, 0, len(report.Skipped))
	for _, fe := range report.Skipped {
		skipped = append(skipped, SkippedFolder{Folder: fe.Folder, Error: fe.Err.Error()})
	}
	return SyncResponse{
		Report:     report,
		Users:      len(report.Records),
		Skipped:    skipped,
		DurationMs: report.Duration.Milliseconds(),
	}
}

// Sync runs one pass. Only one pass runs at a time; concurrent requests get 409.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "sync already running")
		return
	}
	defer h.running.Store(false)

	report, err := h.syncer.Sync(r.Context())
	if err != nil {
		log.Printf("sync failed: %v", err)
		respondError(w, http.StatusInternalServerError, "sync failed: "+err.Error())
		return
	}

	h.records.Replace(report.Records)
	if skipped := h.index.Build(report.Records); skipped > 0 {
		log.Printf("warning: %d users left out of the nearest-user index", skipped)
	}

	resp := NewSyncResponse(report)
	if database.IsInitialized() {
		stats, err := database.MirrorRecords(r.Context(), report.Records)
		if err != nil {
			log.Printf("warning: failed to mirror users to database: %v", err)
		} else {
			resp.Database = &stats
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
