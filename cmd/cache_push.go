package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/database/postgres"
	"github.com/spf13/cobra"
)

var cachePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Mirror enrolled users to PostgreSQL",
	Long: `Reconcile the cache, then make the enrolled_users table in PostgreSQL
equal to the resulting record set. Rows for users no longer enrolled are
deleted; rows whose content did not change are left untouched.

Requires DATABASE_URL (or database.url in the config file). The database needs
the pgvector and unaccent extensions.

Examples:
  # Show what would be pushed without touching the database
  face-enroll cache push --dry-run

  # Push and print the changes as JSON
  face-enroll cache push --json`,
	Args: cobra.NoArgs,
	RunE: runCachePush,
}

func init() {
	cacheCmd.AddCommand(cachePushCmd)

	cachePushCmd.Flags().Bool("dry-run", false, "Reconcile and list users without writing to the database")
	cachePushCmd.Flags().Bool("json", false, "Output as JSON")
}

// PushResult represents the result of a cache push operation
type PushResult struct {
	Success    bool                   `json:"success"`
	DryRun     bool                   `json:"dry_run"`
	Users      int                    `json:"users"`
	Skipped    int                    `json:"skipped"`
	Stats      *database.ReplaceStats `json:"stats,omitempty"`
	Rows       int                    `json:"rows,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

func runCachePush(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	startTime := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !dryRun && cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	report, err := syncCache(ctx, cfg, newEmbeddingClient(cfg), jsonOutput)
	if err != nil {
		return err
	}

	users, err := database.UsersFromRecords(report.Records)
	if err != nil {
		return err
	}

	result := PushResult{
		Success: true,
		DryRun:  dryRun,
		Users:   len(users),
		Skipped: len(report.Skipped),
	}

	if !dryRun {
		pool, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer pool.Close()

		writer, err := database.GetUserWriter()
		if err != nil {
			return fmt.Errorf("failed to get user writer: %w", err)
		}
		stats, err := writer.ReplaceAll(ctx, users)
		if err != nil {
			return fmt.Errorf("failed to push users: %w", err)
		}
		result.Stats = &stats

		rows, err := writer.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count mirrored users: %w", err)
		}
		result.Rows = rows
	}
	result.DurationMs = time.Since(startTime).Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}

	if dryRun {
		fmt.Printf("Dry run: %d users would be pushed\n", result.Users)
		for _, u := range users {
			fmt.Printf("  - %s (%s, %d dims)\n", u.Name, u.Folder, u.Dim)
		}
		return nil
	}

	fmt.Println("Push complete!")
	fmt.Printf("  Users:     %d\n", result.Users)
	fmt.Printf("  Inserted:  %d\n", result.Stats.Inserted)
	fmt.Printf("  Updated:   %d\n", result.Stats.Updated)
	fmt.Printf("  Deleted:   %d\n", result.Stats.Deleted)
	fmt.Printf("  Unchanged: %d\n", result.Stats.Unchanged)
	fmt.Printf("  Rows:      %d\n", result.Rows)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped:   %d folders (see 'face-enroll cache sync')\n", result.Skipped)
	}
	fmt.Printf("  Duration:  %s\n", formatDuration(time.Since(startTime)))
	return nil
}
