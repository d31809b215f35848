package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/chainrules/internal/cli"
	"github.com/TimurManjosov/chainrules/internal/client"
)

var (
	// Global flags
	profile string
	baseURL string
	apiKey  string
	format  string
	timeout time.Duration
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rulectl",
	Short: "CLI tool for managing business rules",
	Long: `rulectl manages the rules of a chainrules server.

It creates, inspects, updates and deletes rules, evaluates invoices,
compiles and deploys rules to chains, and reads the audit log.

Examples:
  rulectl list --category compliance
  rulectl create -f rule.yaml
  rulectl evaluate -f invoice.json
  rulectl deploy aml-screening --chain evm --network sepolia
  rulectl export -o rules.yaml`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Config profile to use (default from config file)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the chainrules API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

func newClient() (*client.Client, error) {
	p, err := cli.ResolveProfile(profile, baseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	c := client.NewClient(p.BaseURL, p.APIKey)
	c.HTTPClient.Timeout = timeout
	return c, nil
}

func printer(cmd *cobra.Command) (cli.Printer, error) {
	f, err := cli.ParseFormat(format)
	if err != nil {
		return cli.Printer{}, err
	}
	return cli.Printer{W: cmd.OutOrStdout(), Format: f}, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// logf writes progress output unless --quiet is set.
func logf(cmd *cobra.Command, msg string, args ...any) {
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), msg, args...)
	}
}
