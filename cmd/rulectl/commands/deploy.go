package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/chainrules/internal/client"
	"github.com/TimurManjosov/chainrules/internal/compiler"
	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

var (
	targetChain   string
	targetNetwork string

	compileOffline bool
	compileFile    string
	compileOut     string
)

var compileCmd = &cobra.Command{
	Use:   "compile <id>...",
	Short: "Compile rules into chain source code",
	Long: `Compile rules for a chain and print the generated code.
Nothing is deployed. With --offline the rules are read from an export file
(-f) and compiled locally without contacting a server.

Examples:
  rulectl compile aml-screening kyc-required-above-threshold --chain evm
  rulectl compile --offline -f rules.yaml --chain solana -o program.rs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := compiler.Options{Network: targetNetwork}

		var (
			compiled *compiler.Compiled
			err      error
		)
		if compileOffline {
			compiled, err = compileLocal(cmd, args, opts)
		} else {
			if len(args) == 0 {
				return fmt.Errorf("at least one rule id is required")
			}
			var c *client.Client
			if c, err = newClient(); err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			compiled, err = c.Compile(ctx, client.TargetRequest{RuleIDs: args, Chain: targetChain, Network: targetNetwork})
		}
		if err != nil {
			return fmt.Errorf("failed to compile rules: %w", err)
		}

		if compileOut != "" && compileOut != "-" {
			if err := os.WriteFile(compileOut, []byte(compiled.Code), 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			logf(cmd, "Wrote %s code for %d rule(s) to %s\n", compiled.Metadata.Chain, compiled.Metadata.RuleCount, compileOut)
			return nil
		}
		if format != "table" {
			p, err := printer(cmd)
			if err != nil {
				return err
			}
			return p.PrintValue(compiled)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), compiled.Code)
		return err
	},
}

// compileLocal compiles rules from an export file. With ids, only those
// rules are compiled.
func compileLocal(cmd *cobra.Command, ids []string, opts compiler.Options) (*compiler.Compiled, error) {
	var doc ExportFormat
	if err := readDocument(compileFile, &doc); err != nil {
		return nil, err
	}
	selected := doc.Rules
	if len(ids) > 0 {
		byID := make(map[string]rules.Rule, len(doc.Rules))
		for _, r := range doc.Rules {
			byID[r.ID] = r
		}
		selected = selected[:0:0]
		for _, id := range ids {
			r, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("rule %s not found in %s", id, compileFile)
			}
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no rules to compile")
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	return compiler.NewDefault(logging.Nop()).CompileRules(ctx, selected, targetChain, opts)
}

var deployCmd = &cobra.Command{
	Use:   "deploy <id>...",
	Short: "Compile and deploy rules to a chain",
	Long: `Compile rules and deploy them to a chain. Deployed rules can no longer
be deleted.

Example:
  rulectl deploy aml-screening --chain evm --network sepolia`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		res, err := c.Deploy(ctx, client.TargetRequest{RuleIDs: args, Chain: targetChain, Network: targetNetwork})
		if err != nil {
			return fmt.Errorf("failed to deploy rules: %w", err)
		}
		if quiet {
			return nil
		}
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		return p.PrintDeployment(res)
	},
}

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "List recorded deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		deps, err := c.ListDeployments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list deployments: %w", err)
		}
		if len(deps) == 0 {
			logf(cmd, "No deployments found\n")
			return nil
		}
		p, err := printer(cmd)
		if err != nil {
			return err
		}
		return p.PrintDeployments(deps)
	},
}

func init() {
	rootCmd.AddCommand(compileCmd, deployCmd, deploymentsCmd)

	for _, c := range []*cobra.Command{compileCmd, deployCmd} {
		c.Flags().StringVar(&targetChain, "chain", "evm", "Target chain (evm, solana)")
		c.Flags().StringVar(&targetNetwork, "network", "", "Target network (default mainnet)")
	}
	compileCmd.Flags().BoolVar(&compileOffline, "offline", false, "Compile locally from an export file")
	compileCmd.Flags().StringVarP(&compileFile, "file", "f", "", "Export file used with --offline")
	compileCmd.Flags().StringVarP(&compileOut, "output", "o", "", "Write the generated code to a file")
}
