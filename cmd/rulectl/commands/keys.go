package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/chainrules/internal/auth"
	"github.com/TimurManjosov/chainrules/internal/webhook"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage admin API keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new admin API key",
	Long: `Generate a random admin key and its bcrypt hash. Give the key to the
operator and append the hash to the server's ADMIN_API_KEY_HASHES.

Example:
  rulectl keys generate`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		hash, err := auth.HashAPIKey(key)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}

		if format != "table" {
			p, err := printer(cmd)
			if err != nil {
				return err
			}
			return p.PrintValue(map[string]string{
				"key":         key,
				"hash":        hash,
				"fingerprint": auth.Fingerprint(key),
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Key:         %s\n", key)
		fmt.Fprintf(out, "Hash:        %s\n", hash)
		fmt.Fprintf(out, "Fingerprint: %s\n", auth.Fingerprint(key))
		fmt.Fprintln(out, "\nStore the key now, it cannot be recovered from the hash.")
		return nil
	},
}

var keysSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook signing secret",
	Long: `Generate a random secret for the server's WEBHOOK_SECRET. Receivers use
it to verify the X-Chainrules-Signature header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := webhook.GenerateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
		return err
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysSecretCmd)
}
