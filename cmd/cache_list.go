package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-enroll/internal/config"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/database/postgres"
	"github.com/kozaktomas/face-enroll/internal/web/handlers"
	"github.com/spf13/cobra"
)

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users",
	Long: `Reconcile the cache and list the users in the resulting record set,
in the order the matcher compares them.

With --db the cache is left alone and the rows mirrored to PostgreSQL by
'cache push' or 'serve' are listed instead; --name filters them by normalized
name.

Examples:
  face-enroll cache list
  face-enroll cache list --json

  # What the database currently holds
  face-enroll cache list --db
  face-enroll cache list --db --name "jiri novak"`,
	Args: cobra.NoArgs,
	RunE: runCacheList,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)

	cacheListCmd.Flags().Bool("json", false, "Output as JSON")
	cacheListCmd.Flags().Bool("db", false, "List the users mirrored to PostgreSQL")
	cacheListCmd.Flags().String("name", "", "With --db, only users with this normalized name")
}

func runCacheList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	fromDB := mustGetBool(cmd, "db")
	name := mustGetString(cmd, "name")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fromDB {
		return runCacheListMirror(cmd.Context(), cfg, name, jsonOutput)
	}
	if name != "" {
		return errors.New("--name requires --db")
	}

	report, err := syncCache(cmd.Context(), cfg, newEmbeddingClient(cfg), jsonOutput)
	if err != nil {
		return err
	}

	users := make([]handlers.UserResponse, 0, len(report.Records))
	for _, rec := range report.Records {
		users = append(users, handlers.UserResponse{
			ID:      rec.ID(),
			Folder:  rec.Folder(),
			Name:    rec.Name(),
			Profile: rec.Profile(),
			Dim:     rec.Dim(),
		})
	}

	if jsonOutput {
		return outputJSON(users)
	}

	if len(users) == 0 {
		fmt.Println("No users enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFOLDER\tNAME\tDIM")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", u.ID, u.Folder, u.Name, u.Dim)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	fmt.Printf("\n%d users enrolled\n", len(users))
	for _, fe := range report.Skipped {
		fmt.Printf("Skipped %s: %v\n", fe.Folder, fe.Err)
	}
	return nil
}

func runCacheListMirror(ctx context.Context, cfg *config.Config, name string, jsonOutput bool) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	reader, err := database.GetUserReader()
	if err != nil {
		return fmt.Errorf("failed to get user reader: %w", err)
	}
	users, err := listMirrored(ctx, reader, name)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(users)
	}
	if len(users) == 0 {
		fmt.Println("No users mirrored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFOLDER\tNAME\tDIM\tSYNCED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", u.ID, u.Folder, u.Name, u.Dim, u.SyncedAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	fmt.Printf("\n%d users mirrored\n", len(users))
	return nil
}

// listMirrored reads the mirrored users, all of them or those matching name.
func listMirrored(ctx context.Context, reader database.UserReader, name string) ([]handlers.MirroredUser, error) {
	var stored []database.StoredUser
	var err error
	if name != "" {
		stored, err = reader.GetByName(ctx, name)
	} else {
		stored, err = reader.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored users: %w", err)
	}

	users := make([]handlers.MirroredUser, len(stored))
	for i, u := range stored {
		users[i] = handlers.NewMirroredUser(u)
	}
	return users, nil
}
