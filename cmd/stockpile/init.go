// Init command bootstraps the storage backend.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the storage backend",
	Long: `Init attaches the configured backend once so first-run work happens
eagerly: the local mode writes its initial snapshot, the remote modes
verify credentials and ensure the server-side schema.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The backend is already attached by PersistentPreRunE.
		fmt.Printf("stockpile initialized (mode: %s)\n", store.Mode())
		return nil
	},
}
