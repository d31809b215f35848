package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/chainrules/internal/audit"
)

var (
	auditEvent string
	auditSince time.Duration
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit log",
	Long: `Show recorded audit entries, newest last. Requires an admin API key.

Examples:
  rulectl audit --event rule_created
  rulectl audit --since 24h --limit 20 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		f := audit.Filter{Event: audit.Event(auditEvent), Limit: auditLimit}
		if auditSince > 0 {
			f.Since = time.Now().Add(-auditSince)
		}
		entries, err := c.AuditLog(ctx, f)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}
		if len(entries) == 0 {
			logf(cmd, "No audit entries found\n")
			return nil
		}
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		return p.PrintAudit(entries)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditEvent, "event", "", "Filter by event (e.g. rule_created, rules_deployed)")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this duration")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of entries")
}
