package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/chainrules/internal/client"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

var (
	listCategory    string
	listChain       string
	listEnabledOnly bool

	createFile string

	updateFile        string
	updateName        string
	updateDescription string
	updatePriority    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Long: `List rules, optionally filtered by category, chain or enabled state.

Examples:
  rulectl list
  rulectl list --category wallet --format json
  rulectl list --chain solana --enabled-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		q := client.RuleQuery{Category: listCategory, Chain: listChain}
		if listEnabledOnly {
			enabled := true
			q.Enabled = &enabled
		}
		list, err := c.ListRules(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}
		if quiet {
			return nil
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No rules found")
			return nil
		}
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		return p.PrintRules(list)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		r, err := c.GetRule(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		return p.PrintRule(r)
	},
}

var createCmd = &cobra.Command{
	Use:   "create -f <file>",
	Short: "Create a custom rule",
	Long: `Create a rule from a YAML or JSON description. The server assigns the id.

Example rule.yaml:
  name: Large invoice
  category: transaction
  conditions:
    - field: invoice.amount
      operator: greater
      value: 5000
      dataType: number
  actions:
    - type: hold
      message: Manual review

Example:
  rulectl create -f rule.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg rules.RuleConfig
		if err := readDocument(createFile, &cfg); err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		r, err := c.CreateRule(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		logf(cmd, "Rule '%s' created with id %s\n", r.Name, r.ID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a rule",
	Long: `Update a rule from a patch file and/or flags. Fields that are not given
are left unchanged; the patch version is bumped.

Examples:
  rulectl update tax-reporting --priority 65
  rulectl update my-rule -f patch.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch engine.RulePatch
		if updateFile != "" {
			if err := readDocument(updateFile, &patch); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("name") {
			patch.Name = &updateName
		}
		if cmd.Flags().Changed("description") {
			patch.Description = &updateDescription
		}
		if cmd.Flags().Changed("priority") {
			patch.Priority = &updatePriority
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		r, err := c.UpdateRule(ctx, args[0], patch)
		if err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}
		logf(cmd, "Rule '%s' updated to version %s\n", r.ID, r.Metadata.Version)
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:       "toggle <id> <on|off>",
	Short:     "Enable or disable a rule",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("state must be on or off, got %q", args[1])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		r, err := c.ToggleRule(ctx, args[0], enabled)
		if err != nil {
			return fmt.Errorf("failed to toggle rule: %w", err)
		}
		logf(cmd, "Rule '%s' enabled: %t\n", r.ID, r.Enabled)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rule",
	Long: `Delete a rule. Rules referenced by a deployment cannot be deleted.

Example:
  rulectl delete my-rule`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := c.DeleteRule(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete rule: %w", err)
		}
		logf(cmd, "Rule '%s' deleted\n", args[0])
		return nil
	},
}

// readDocument decodes a YAML or JSON file ("-" for stdin) into v.
func readDocument(path string, v any) error {
	if path == "" {
		return fmt.Errorf("a file is required (-f)")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	// JSON documents go through encoding/json so camelCase json tags apply
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if err := json.Unmarshal(trimmed, v); err != nil {
			return fmt.Errorf("failed to parse JSON file: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse YAML file: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd, getCmd, createCmd, updateCmd, toggleCmd, deleteCmd)

	listCmd.Flags().StringVar(&listCategory, "category", "", "Only rules in this category")
	listCmd.Flags().StringVar(&listChain, "chain", "", "Only rules applying to this chain")
	listCmd.Flags().BoolVar(&listEnabledOnly, "enabled-only", false, "Show only enabled rules")

	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Rule file (YAML or JSON, - for stdin)")

	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "Patch file (YAML or JSON)")
	updateCmd.Flags().StringVar(&updateName, "name", "", "New name")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "New description")
	updateCmd.Flags().IntVar(&updatePriority, "priority", 0, "New priority (0-100)")
}
