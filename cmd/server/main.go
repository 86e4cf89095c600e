// Command voidecho runs the Void Echo game server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // set via ldflags during build

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voidecho",
	Short: "Void Echo authoritative game server",
	Long: `voidecho hosts Void Echo matches: it validates and commits every
action, pushes per-player views over websockets and keeps game state in
SQLite, PostgreSQL or memory.

Use "voidecho [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default: ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, replayCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
