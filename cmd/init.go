package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the enrollment directory layout",
	Long: `Create the raw enrollment directory and the encoded cache directories.

Each enrolled user gets one folder under the raw directory holding a profile
document (user.json by default, with at least a "name" field) and a reference
face image (face.jpg by default).

Examples:
  face-enroll init
  FACE_ENROLL_ROOT=/srv/door face-enroll init`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for _, dir := range []string{cfg.Enrollment.RawPath(), cfg.Enrollment.UsersPath()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Printf("Ready: %s\n", dir)
	}
	return nil
}
