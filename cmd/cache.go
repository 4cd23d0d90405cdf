package cmd

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the encoded enrollment cache",
	Long: `Keep the encoded record store in step with the raw enrollment folders.

  sync   encode new or changed folders and drop removed ones
  list   show the enrolled users currently in the store
  push   mirror the enrolled users into PostgreSQL`,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}
