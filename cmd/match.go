package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-enroll/internal/constants"
	"github.com/kozaktomas/face-enroll/internal/database"
	"github.com/kozaktomas/face-enroll/internal/database/postgres"
	"github.com/kozaktomas/face-enroll/internal/facematch"
	"github.com/kozaktomas/face-enroll/internal/web/handlers"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Recognize the faces in an image",
	Long: `Reconcile the cache, then detect every face in the image and match each
one against the enrolled users. A face matches the first user, in record order,
whose cosine distance is within the tolerance; otherwise it is reported as
Unknown.

Examples:
  face-enroll match door.jpg

  # Show the 5 closest enrolled users per face
  face-enroll match door.jpg --nearest 5

  # Stricter matching, JSON output
  face-enroll match door.jpg --tolerance 0.35 --json

  # Nearest users from the PostgreSQL mirror (pgvector) instead of the in-memory index
  face-enroll match door.jpg --nearest 5 --db`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Int("nearest", -1, "Nearest enrolled users to show per face (default from config)")
	matchCmd.Flags().Float64("tolerance", 0, "Maximum cosine distance judged a match (default from config)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
	matchCmd.Flags().Bool("db", false, "Look up nearest users in the PostgreSQL mirror")
}

func runMatch(cmd *cobra.Command, args []string) error {
	nearest := mustGetInt(cmd, "nearest")
	tolerance := mustGetFloat64(cmd, "tolerance")
	jsonOutput := mustGetBool(cmd, "json")
	fromDB := mustGetBool(cmd, "db")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if nearest < 0 {
		nearest = cfg.Match.Nearest
	}
	if nearest > constants.MaxNearestLimit {
		return fmt.Errorf("--nearest must be at most %d", constants.MaxNearestLimit)
	}
	if tolerance <= 0 {
		tolerance = cfg.Match.Tolerance
	}

	frame, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx := cmd.Context()

	var mirror database.UserReader
	if fromDB {
		if cfg.Database.URL == "" {
			return errors.New("--db requires DATABASE_URL")
		}
		pool, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer pool.Close()
		if mirror, err = database.GetUserReader(); err != nil {
			return fmt.Errorf("failed to get user reader: %w", err)
		}
	}

	client := newEmbeddingClient(cfg)
	report, err := syncCache(ctx, cfg, client, jsonOutput)
	if err != nil {
		return err
	}

	records := facematch.NewRecordSet(report.Records)
	matcher := facematch.NewMatcher(records, tolerance)
	index := database.NewUserIndex()
	index.Build(report.Records)

	recognitions, err := matcher.Recognize(ctx, client, frame)
	if err != nil {
		return err
	}

	faces := make([]handlers.FaceResult, 0, len(recognitions))
	for _, rec := range recognitions {
		result := handlers.FaceResult{Recognition: rec}
		if nearest > 0 {
			neighbors, err := database.NearestUsers(ctx, mirror, index, rec.Embedding, nearest)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: nearest search for face %d: %v\n", rec.FaceIndex, err)
			}
			result.Nearest = neighbors
		}
		faces = append(faces, result)
	}

	if jsonOutput {
		return outputJSON(handlers.MatchResponse{
			Faces:     faces,
			Count:     len(faces),
			Tolerance: matcher.Tolerance(),
		})
	}

	if len(faces) == 0 {
		fmt.Println("No faces found.")
		return nil
	}

	fmt.Printf("Found %d faces (%d users enrolled, tolerance %.2f)\n\n", len(faces), records.Len(), matcher.Tolerance())
	for _, f := range faces {
		if f.Known {
			fmt.Printf("Face %d: %s (folder %s, distance %.4f)\n", f.FaceIndex, f.Name, f.Folder, f.Distance)
		} else {
			fmt.Printf("Face %d: %s\n", f.FaceIndex, f.Name)
		}
		if len(f.BBox) == 4 {
			fmt.Printf("  BBox: [%.0f, %.0f, %.0f, %.0f]  score %.2f\n", f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3], f.DetScore)
		}
		for i, n := range f.Nearest {
			fmt.Printf("  %d. %s (%s) %.4f\n", i+1, n.Name, n.Folder, n.Distance)
		}
	}
	return nil
}
