package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

var (
	importDryRun bool
	importForce  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import rules from a file",
	Long: `Import rules from a YAML or JSON export file. Every rule is created
as a new rule; the server assigns fresh ids.

Examples:
  rulectl import rules.yaml
  rulectl import rules.yaml --dry-run
  rulectl import rules.json --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var importData ExportFormat
		if err := readDocument(args[0], &importData); err != nil {
			return err
		}
		if len(importData.Rules) == 0 {
			return fmt.Errorf("no rules found in file")
		}
		if verbose {
			logf(cmd, "Found %d rule(s) to import\n", len(importData.Rules))
		}

		// Dry run mode - validate locally and show what would be imported
		if importDryRun {
			invalid := 0
			logf(cmd, "Dry run mode - the following rules would be imported:\n")
			for _, r := range importData.Rules {
				if _, err := rules.CreateRule(ruleConfigFrom(r)); err != nil {
					invalid++
					fmt.Fprintf(cmd.ErrOrStderr(), "  ! %s: %v\n", r.Name, err)
					continue
				}
				logf(cmd, "  - %s (category: %s, priority: %d, enabled: %v)\n", r.Name, r.Category, r.Priority, r.Enabled)
			}
			if invalid > 0 {
				return fmt.Errorf("%d rule(s) failed validation", invalid)
			}
			return nil
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		successCount, errorCount := 0, 0
		for _, r := range importData.Rules {
			if verbose {
				logf(cmd, "Importing rule: %s\n", r.Name)
			}
			if _, err := c.CreateRule(ctx, ruleConfigFrom(r)); err != nil {
				errorCount++
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to import rule '%s': %v\n", r.Name, err)
				if !importForce {
					return fmt.Errorf("import failed, use --force to continue on errors")
				}
				continue
			}
			successCount++
		}

		logf(cmd, "Import complete: %d succeeded, %d failed\n", successCount, errorCount)
		if errorCount > 0 && !importForce {
			return fmt.Errorf("import completed with errors")
		}
		return nil
	},
}

// ruleConfigFrom turns an exported rule back into creation input. The id and
// timestamps are dropped; version, author and tags are kept.
func ruleConfigFrom(r rules.Rule) rules.RuleConfig {
	priority, enabled := r.Priority, r.Enabled
	meta := r.Metadata
	meta.CreatedAt, meta.UpdatedAt = time.Time{}, time.Time{}
	return rules.RuleConfig{
		Name:          r.Name,
		Description:   r.Description,
		Category:      r.Category,
		Priority:      &priority,
		Enabled:       &enabled,
		Exclusive:     r.Exclusive,
		Conditions:    r.Conditions,
		Actions:       r.Actions,
		Chains:        r.Chains,
		Metadata:      &meta,
		ChainSpecific: r.ChainSpecific,
	}
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate without importing")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Continue on errors")
}
