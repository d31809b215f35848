package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/chainrules/internal/client"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

var (
	exportOutput   string
	exportCategory string
)

// ExportFormat represents the structure for exporting rules
type ExportFormat struct {
	Rules []rules.Rule `yaml:"rules" json:"rules"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rules to a file",
	Long: `Export all rules to a YAML or JSON file. The file can be imported
into another server or compiled offline.

Examples:
  rulectl export --output rules.yaml
  rulectl export --output rules.json --format json
  rulectl export --category compliance > compliance.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		list, err := c.ListRules(ctx, client.RuleQuery{Category: exportCategory})
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}
		exportData := ExportFormat{Rules: list}

		var output io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			output = f
		}

		switch format {
		case "json":
			encoder := json.NewEncoder(output)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(exportData); err != nil {
				return fmt.Errorf("failed to encode JSON: %w", err)
			}
		case "yaml", "table":
			// Default to YAML for export
			encoder := yaml.NewEncoder(output)
			defer encoder.Close()
			encoder.SetIndent(2)
			if err := encoder.Encode(exportData); err != nil {
				return fmt.Errorf("failed to encode YAML: %w", err)
			}
		default:
			return fmt.Errorf("unsupported export format: %s", format)
		}

		if exportOutput != "" && exportOutput != "-" && !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d rule(s) to %s\n", len(list), exportOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportCategory, "category", "", "Only export rules of this category")
}
