// Package commands implements the CLI commands for the Talktrace server.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "talktrace",
	Short: "Talktrace - encrypted meeting artifact pipeline",
	Long: `Talktrace records meetings through a bot provider, transcribes and
summarizes them, and stores every artifact encrypted at rest. Clients
retrieve artifacts through per-request encrypted envelopes; deleting a
meeting destroys its key and with it every artifact.

Use "talktrace [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment variables only)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("talktrace %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}
