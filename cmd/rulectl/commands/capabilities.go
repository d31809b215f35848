package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Show what the server supports",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		caps, err := c.Capabilities(ctx)
		if err != nil {
			return fmt.Errorf("failed to get capabilities: %w", err)
		}
		if format != "table" {
			p, err := printer(cmd)
			if err != nil {
				return err
			}
			return p.PrintValue(caps)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Chains:     %s\n", strings.Join(caps.Chains, ", "))
		fmt.Fprintf(out, "Categories: %s\n", joinStrings(caps.RuleCategories))
		fmt.Fprintf(out, "Operators:  %s\n", joinStrings(caps.Operators))
		fmt.Fprintf(out, "Actions:    %s\n", joinStrings(caps.Actions))
		fmt.Fprintf(out, "Features:   %s\n", strings.Join(caps.Features, ", "))
		return nil
	},
}

func joinStrings[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}
