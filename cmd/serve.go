package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/database/postgres"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/kozaktomas/face-enroll/internal/web"
	"github.com/kozaktomas/face-enroll/internal/web/handlers"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Enroll HTTP API.

The cache is reconciled once at startup; POST /api/v1/sync re-runs the
reconciliation and publishes the new record set without a restart. When
DATABASE_URL is set, the startup sync and every later sync are mirrored to
PostgreSQL, and /api/v1/mirror serves the mirrored rows.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config, 0.0.0.0)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx := cmd.Context()

	if cfg.Database.URL != "" {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		pool, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer pool.Close()
		fmt.Printf("Mirroring enrolled users to PostgreSQL\n")
	}

	client := newEmbeddingClient(cfg)
	syncer, err := newSynchronizer(cfg, client, nil)
	if err != nil {
		return err
	}

	report, stats, err := initialSync(ctx, syncer)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d enrolled users (%d folders skipped)\n", len(report.Records), len(report.Skipped))
	if stats != nil {
		fmt.Printf("Mirrored to PostgreSQL: %d inserted, %d updated, %d deleted, %d unchanged\n",
			stats.Inserted, stats.Updated, stats.Deleted, stats.Unchanged)
	}

	records := facematch.NewRecordSet(report.Records)
	server := web.NewServer(cfg, records, syncer, client)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	fmt.Printf("Starting Face Enroll API on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}

// initialSync reconciles the cache at startup and mirrors the record set when
// a database backend is registered. A failed mirror only logs a warning.
func initialSync(ctx context.Context, syncer handlers.Syncer) (*enroll.Report, *database.ReplaceStats, error) {
	report, err := syncer.Sync(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("initial sync failed: %w", err)
	}
	if !database.IsInitialized() {
		return report, nil, nil
	}
	stats, err := database.MirrorRecords(ctx, report.Records)
	if err != nil {
		log.Printf("warning: failed to mirror users to database: %v", err)
		return report, nil, nil
	}
	return report, &stats, nil
}
