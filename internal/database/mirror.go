package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-enroll/internal/enroll"
)

// MirrorRecords makes the mirrored users equal to records through the
// registered writer.
func MirrorRecords(ctx context.Context, records []enroll.UserRecord) (ReplaceStats, error) {
	writer, err := GetUserWriter()
	if err != nil {
		return ReplaceStats{}, err
	}
	users, err := UsersFromRecords(records)
	if err != nil {
		return ReplaceStats{}, err
	}
	return writer.ReplaceAll(ctx, users)
}

// NearestMirrored finds the k mirrored users closest to query.
func NearestMirrored(ctx context.Context, reader UserReader, query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	users, distances, err := reader.FindNearest(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if len(users) != len(distances) {
		return nil, fmt.Errorf("nearest users: got %d users and %d distances", len(users), len(distances))
	}

	out := make([]Neighbor, len(users))
	for i, u := range users {
		out[i] = Neighbor{
			ID:       u.ID,
			Folder:   u.Folder,
			Name:     u.Name,
			Distance: distances[i],
		}
	}
	return out, nil
}

// NearestUsers finds the k users closest to query, from mirror when it is set
// and from index otherwise.
func NearestUsers(ctx context.Context, mirror UserReader, index *UserIndex, query []float32, k int) ([]Neighbor, error) {
	if mirror != nil {
		return NearestMirrored(ctx, mirror, query, k)
	}
	if index == nil || index.Count() == 0 {
		return nil, nil
	}
	return index.Search(query, k)
}
