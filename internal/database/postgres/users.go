package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const userColumns = `id, folder, name, profile, embedding, dim, synced_at`

// UserRepository mirrors the enrolled user set in PostgreSQL.
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get retrieves a user by cache id.
func (r *UserRepository) Get(ctx context.Context, id string) (*database.StoredUser, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM enrolled_users WHERE id = $1`, id)
	user, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByName retrieves users whose normalized name matches.
func (r *UserRepository) GetByName(ctx context.Context, name string) ([]database.StoredUser, error) {
	// Mirrors facematch.NormalizeName: no diacritics, lowercase, dashes and
	// underscores as spaces, whitespace collapsed.
	query := `
		SELECT ` + userColumns + `
		FROM enrolled_users
		WHERE btrim(regexp_replace(LOWER(translate(unaccent(name), '-_', '  ')), '\s+', ' ', 'g')) = $1
		ORDER BY folder
	`
	rows, err := r.pool.Query(ctx, query, facematch.NormalizeName(name))
	if err != nil {
		return nil, fmt.Errorf("query users by name: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// List returns every user ordered by folder.
func (r *UserRepository) List(ctx context.Context) ([]database.StoredUser, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM enrolled_users ORDER BY folder`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// Count returns the total number of users stored.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM enrolled_users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// FindNearest finds the users closest to embedding by cosine distance.
// Only users with the same vector dimension are compared.
func (r *UserRepository) FindNearest(
	ctx context.Context, embedding []float32, limit int,
) ([]database.StoredUser, []float64, error) {
	query := `
		SELECT ` + userColumns + `, embedding <=> $1::vector AS distance
		FROM enrolled_users
		WHERE dim = $2
		ORDER BY distance
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), len(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest users: %w", err)
	}
	defer rows.Close()

	var users []database.StoredUser
	var distances []float64
	for rows.Next() {
		var distance float64
		user, err := scanUserRow(rows, &distance)
		if err != nil {
			return nil, nil, err
		}
		users = append(users, user)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nearest users: %w", err)
	}
	return users, distances, nil
}

// ReplaceAll makes the table equal to users in one transaction. Rows whose
// content did not change keep their synced_at timestamp.
func (r *UserRepository) ReplaceAll(ctx context.Context, users []database.StoredUser) (database.ReplaceStats, error) {
	var stats database.ReplaceStats

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM enrolled_users WHERE NOT (id = ANY($1))", pq.Array(ids))
	if err != nil {
		return stats, fmt.Errorf("delete stale users: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return stats, fmt.Errorf("count deleted users: %w", err)
	}
	stats.Deleted = int(deleted)

	upsert := `
		INSERT INTO enrolled_users (id, folder, name, profile, embedding, dim, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			folder = EXCLUDED.folder,
			name = EXCLUDED.name,
			profile = EXCLUDED.profile,
			embedding = EXCLUDED.embedding,
			dim = EXCLUDED.dim,
			synced_at = NOW()
		WHERE (enrolled_users.folder, enrolled_users.name, enrolled_users.profile::text, enrolled_users.embedding)
			IS DISTINCT FROM (EXCLUDED.folder, EXCLUDED.name, EXCLUDED.profile::text, EXCLUDED.embedding)
		RETURNING (xmax = 0) AS inserted
	`
	for _, u := range users {
		var inserted bool
		err := tx.QueryRowContext(ctx, upsert,
			u.ID, u.Folder, u.Name, string(u.Profile), pgvector.NewVector(u.Embedding), u.Dim,
		).Scan(&inserted)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			stats.Unchanged++
		case err != nil:
			return stats, fmt.Errorf("upsert user %s: %w", u.ID, err)
		case inserted:
			stats.Inserted++
		default:
			stats.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit users: %w", err)
	}
	return stats, nil
}

// scanUserRow scans a single row into a StoredUser, with optional extra scan
// destinations appended after the user columns (e.g., a distance column).
func scanUserRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredUser, error) {
	var user database.StoredUser
	var vec pgvector.Vector
	var profile []byte

	dest := make([]any, 0, 7+len(extraDest))
	dest = append(dest,
		&user.ID,
		&user.Folder,
		&user.Name,
		&profile,
		&vec,
		&user.Dim,
		&user.SyncedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return user, fmt.Errorf("scan user: %w", err)
	}

	user.Profile = profile
	user.Embedding = vec.Slice()
	return user, nil
}

func scanUsers(rows *sql.Rows) ([]database.StoredUser, error) {
	var users []database.StoredUser
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

var _ database.UserWriter = (*UserRepository)(nil)
