// Package cli implements the tradegame command-line interface.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tradegame",
		Short: "LINE bot backend for the team trading game",
		Long: `tradegame runs the chat-bot backend for the live team trading game.

It serves the LINE webhook, manages team card inventories, missions and
scheduled announcements, and runs the dual-confirmation trade protocol.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine; env vars may come from the host
			_ = godotenv.Load()
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSeedCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
