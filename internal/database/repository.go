package database

import (
	"context"
)

// UserReader provides read-only access to mirrored users
type UserReader interface {
	// Get retrieves a user by cache id, returns nil if not found
	Get(ctx context.Context, id string) (*StoredUser, error)
	// GetByName retrieves users by name.
	// Names are normalized before comparison (lowercase, no diacritics, dashes to spaces).
	GetByName(ctx context.Context, name string) ([]StoredUser, error)
	// List returns every user ordered by folder
	List(ctx context.Context) ([]StoredUser, error)
	// Count returns the total number of users stored
	Count(ctx context.Context) (int, error)
	// FindNearest finds the users closest to embedding and returns their cosine distances
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]StoredUser, []float64, error)
}

// UserWriter provides write access to mirrored users
type UserWriter interface {
	UserReader

	// ReplaceAll makes the stored users equal to users in one transaction.
	// Users missing from the slice are deleted.
	ReplaceAll(ctx context.Context, users []StoredUser) (ReplaceStats, error)
}
