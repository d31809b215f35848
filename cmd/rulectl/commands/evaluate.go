package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/chainrules/internal/engine"
)

var (
	evalFile         string
	evalID           string
	evalAmount       float64
	evalCurrency     string
	evalCustomerType string
	evalKYCStatus    string
	evalCountry      string
	evalChain        string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate an invoice against the rules",
	Long: `Evaluate an invoice and print the recommendations, wallet mode and
compliance status. The invoice comes from a JSON/YAML file or from flags;
flags override file values.

Examples:
  rulectl evaluate -f invoice.json
  rulectl evaluate --id inv-1 --amount 15000 --customer-type new --kyc pending`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var p engine.InvoicePayload
		if evalFile != "" {
			if err := readDocument(evalFile, &p); err != nil {
				return err
			}
		}
		flags := cmd.Flags()
		if flags.Changed("id") {
			p.ID = evalID
		}
		if flags.Changed("amount") {
			p.Amount = evalAmount
		}
		if flags.Changed("currency") {
			p.Currency = evalCurrency
		}
		if flags.Changed("customer-type") {
			p.CustomerType = evalCustomerType
		}
		if flags.Changed("kyc") {
			p.KYCStatus = evalKYCStatus
		}
		if flags.Changed("country") {
			p.CustomerCountry = evalCountry
		}
		if flags.Changed("chain") {
			p.TargetChain = evalChain
		}
		if p.ID == "" {
			return fmt.Errorf("an invoice id is required (--id or in the file)")
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		rep, err := c.EvaluateInvoice(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to evaluate invoice: %w", err)
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}
		return pr.PrintReport(rep)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evalFile, "file", "f", "", "Invoice file (JSON or YAML, - for stdin)")
	evaluateCmd.Flags().StringVar(&evalID, "id", "", "Invoice id")
	evaluateCmd.Flags().Float64Var(&evalAmount, "amount", 0, "Invoice amount")
	evaluateCmd.Flags().StringVar(&evalCurrency, "currency", "", "Currency code")
	evaluateCmd.Flags().StringVar(&evalCustomerType, "customer-type", "", "Customer type (new, recurring, vip)")
	evaluateCmd.Flags().StringVar(&evalKYCStatus, "kyc", "", "KYC status (pending, verified)")
	evaluateCmd.Flags().StringVar(&evalCountry, "country", "", "Customer country (ISO code)")
	evaluateCmd.Flags().StringVar(&evalChain, "chain", "", "Target chain")
}
