//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-enroll/internal/config"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testUser(id, folder, name string, embedding ...float32) database.StoredUser {
	profile, _ := json.Marshal(map[string]string{"name": name})
	return database.StoredUser{
		ID:        id,
		Folder:    folder,
		Name:      name,
		Profile:   profile,
		Embedding: embedding,
		Dim:       len(embedding),
	}
}

func TestUserRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(pool)

	t.Run("ReplaceAllInserts", func(t *testing.T) {
		stats, err := repo.ReplaceAll(ctx, []database.StoredUser{
			testUser("id-001", "alice", "Alice", 1, 0, 0),
			testUser("id-002", "bob", "Bob", 0, 1, 0),
			testUser("id-003", "jiri", "Jiří Novák", 0, 0, 1),
		})
		if err != nil {
			t.Fatalf("Failed to replace users: %v", err)
		}
		if stats.Inserted != 3 || stats.Updated != 0 || stats.Deleted != 0 || stats.Unchanged != 0 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
	})

	t.Run("Get", func(t *testing.T) {
		got, err := repo.Get(ctx, "id-001")
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if got == nil {
			t.Fatal("Expected user, got nil")
		}
		if got.Folder != "alice" || got.Name != "Alice" {
			t.Errorf("Unexpected user: %+v", got)
		}
		if string(got.Profile) != `{"name":"Alice"}` {
			t.Errorf("Expected profile to round-trip, got %s", got.Profile)
		}
		if len(got.Embedding) != 3 || got.Embedding[0] != 1 {
			t.Errorf("Unexpected embedding: %v", got.Embedding)
		}

		missing, err := repo.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if missing != nil {
			t.Errorf("Expected nil for missing user, got %+v", missing)
		}
	})

	t.Run("GetByName", func(t *testing.T) {
		users, err := repo.GetByName(ctx, "jiri-novak")
		if err != nil {
			t.Fatalf("Failed to get users by name: %v", err)
		}
		if len(users) != 1 || users[0].ID != "id-003" {
			t.Errorf("Expected id-003, got %+v", users)
		}
	})

	t.Run("FindNearest", func(t *testing.T) {
		users, distances, err := repo.FindNearest(ctx, []float32{0.9, 0.1, 0}, 2)
		if err != nil {
			t.Fatalf("Failed to find nearest: %v", err)
		}
		if len(users) != 2 || len(distances) != 2 {
			t.Fatalf("Expected 2 results, got %d users and %d distances", len(users), len(distances))
		}
		if users[0].ID != "id-001" {
			t.Errorf("Expected id-001 first, got %s", users[0].ID)
		}
		if distances[0] > distances[1] {
			t.Errorf("Distances not ascending: %v", distances)
		}

		other, _, err := repo.FindNearest(ctx, []float32{1, 0}, 5)
		if err != nil {
			t.Fatalf("Failed to find nearest: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("Expected no users with a different dimension, got %d", len(other))
		}
	})

	t.Run("ReplaceAllDiff", func(t *testing.T) {
		before, err := repo.Get(ctx, "id-001")
		if err != nil || before == nil {
			t.Fatalf("Failed to get user: %v", err)
		}

		stats, err := repo.ReplaceAll(ctx, []database.StoredUser{
			testUser("id-001", "alice", "Alice", 1, 0, 0),
			testUser("id-002", "bob", "Robert", 0, 1, 0),
			testUser("id-004", "carol", "Carol", 1, 1, 0),
		})
		if err != nil {
			t.Fatalf("Failed to replace users: %v", err)
		}
		want := database.ReplaceStats{Inserted: 1, Updated: 1, Deleted: 1, Unchanged: 1}
		if stats != want {
			t.Errorf("Expected %+v, got %+v", want, stats)
		}

		after, err := repo.Get(ctx, "id-001")
		if err != nil || after == nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if !after.SyncedAt.Equal(before.SyncedAt) {
			t.Errorf("Unchanged user should keep synced_at, %v != %v", after.SyncedAt, before.SyncedAt)
		}

		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3, got %d", count)
		}
	})

	t.Run("FolderMovesToNewID", func(t *testing.T) {
		_, err := repo.ReplaceAll(ctx, []database.StoredUser{
			testUser("id-005", "alice", "Alice", 1, 0, 0),
		})
		if err != nil {
			t.Fatalf("Failed to replace users: %v", err)
		}

		users, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("Failed to list users: %v", err)
		}
		if len(users) != 1 || users[0].ID != "id-005" {
			t.Errorf("Expected only id-005, got %+v", users)
		}
	})

	t.Run("ReplaceAllEmpty", func(t *testing.T) {
		stats, err := repo.ReplaceAll(ctx, nil)
		if err != nil {
			t.Fatalf("Failed to replace users: %v", err)
		}
		if stats.Deleted != 1 {
			t.Errorf("Expected 1 deleted, got %d", stats.Deleted)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_enrolled_users.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	again, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("Failed to re-run migrations: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected no pending migrations, got %v", again)
	}
}
