package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjoe/Talktrace-backend/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration file with all defaults filled in.

Edit the generated file to set the JWT secret and provider API key, then
provide the master key via SERVER_MASTER_KEY ("talktrace keygen").`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
		if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
			return err
		}
		fmt.Printf("Wrote sample configuration to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
