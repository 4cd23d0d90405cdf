package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-enroll/internal/config"
	"github.com/kozaktomas/face-enroll/internal/enroll"
	"github.com/kozaktomas/face-enroll/internal/fingerprint"
	"github.com/kozaktomas/face-enroll/internal/web/handlers"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the encoded cache with the enrollment folders",
	Long: `Run one reconciliation pass over the enrollment folders.

Stored entries the index no longer references are deleted, index entries whose
folder or stored entry is gone are dropped, new folders are encoded, and users
whose profile document changed are re-encoded under a fresh id.

Folders with a malformed profile or an image without a detectable face are
skipped and reported; they are retried on the next run.

Examples:
  face-enroll cache sync

  # JSON output for scripting
  face-enroll cache sync --json`,
	Args: cobra.NoArgs,
	RunE: runCacheSync,
}

func init() {
	cacheCmd.AddCommand(cacheSyncCmd)

	cacheSyncCmd.Flags().Bool("json", false, "Output as JSON instead of progress spinner")
}

// syncCache runs one pass, showing a spinner on stderr unless quiet is set.
func syncCache(
	ctx context.Context, cfg *config.Config, client *fingerprint.EmbeddingClient, quiet bool,
) (*enroll.Report, error) {
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Syncing cache"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("folders"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionClearOnFinish(),
		)
	}

	syncer, err := newSynchronizer(cfg, client, func(ev enroll.Event) {
		if bar == nil {
			return
		}
		switch ev.Stage {
		case enroll.StageEncode, enroll.StageDrift:
			bar.Describe(fmt.Sprintf("Encoding %s", ev.Folder))
			bar.Add(1)
		case enroll.StageCommit:
			bar.Describe("Loading records")
		}
	})
	if err != nil {
		return nil, err
	}

	report, err := syncer.Sync(ctx)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("sync failed: %w", err)
	}
	return report, nil
}

func runCacheSync(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := syncCache(cmd.Context(), cfg, newEmbeddingClient(cfg), jsonOutput)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(handlers.NewSyncResponse(report))
	}

	printReport(report)
	return nil
}

// printReport prints a human-readable summary of a reconciliation pass.
func printReport(report *enroll.Report) {
	fmt.Println("Sync complete!")
	fmt.Printf("  Users:            %d\n", len(report.Records))
	fmt.Printf("  Unchanged:        %d\n", report.Unchanged)
	printList("Encoded", report.Encoded)
	printList("Re-encoded", report.Reencoded)
	printList("Orphans removed", report.OrphansRemoved)
	printList("Dangling removed", report.DanglingRemoved)
	printList("Retired", report.Retired)
	printList("Image changed", report.ImageChanged)
	if len(report.Skipped) > 0 {
		fmt.Printf("  Skipped:          %d\n", len(report.Skipped))
		for _, fe := range report.Skipped {
			fmt.Printf("    - %s: %v\n", fe.Folder, fe.Err)
		}
	}
	fmt.Printf("  Duration:         %s\n", formatDuration(report.Duration))
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("  %-17s %d\n", label+":", len(items))
	for _, item := range items {
		fmt.Printf("    - %s\n", item)
	}
}
