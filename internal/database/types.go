package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kozaktomas/face-enroll/internal/enroll"
)

// StoredUser is an enrolled user mirrored from the local enrollment cache
type StoredUser struct {
	ID        string
	Folder    string
	Name      string
	Profile   json.RawMessage // profile document, key order preserved
	Embedding []float32
	Dim       int
	SyncedAt  time.Time
}

// UserFromRecord converts a validated record into its stored form.
func UserFromRecord(rec enroll.UserRecord) (StoredUser, error) {
	profile, err := json.Marshal(rec.Profile())
	if err != nil {
		return StoredUser{}, fmt.Errorf("encoding profile of %s: %w", rec.ID(), err)
	}
	return StoredUser{
		ID:        rec.ID(),
		Folder:    rec.Folder(),
		Name:      rec.Name(),
		Profile:   profile,
		Embedding: rec.Vector(),
		Dim:       rec.Dim(),
	}, nil
}

// UsersFromRecords converts a whole record set, keeping its order.
func UsersFromRecords(records []enroll.UserRecord) ([]StoredUser, error) {
	users := make([]StoredUser, 0, len(records))
	for _, rec := range records {
		u, err := UserFromRecord(rec)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// ReplaceStats reports what a ReplaceAll call changed
type ReplaceStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}
