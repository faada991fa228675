package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new master key",
	Long: `Generate a cryptographically random 32-byte master key and print it
as 64 hex characters, suitable for the SERVER_MASTER_KEY environment
variable.

Losing this key makes every stored artifact permanently unreadable;
store it in a secrets manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		fmt.Println(hex.EncodeToString(key))
		return nil
	},
}
