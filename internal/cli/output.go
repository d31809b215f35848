package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/chainrules/internal/client"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/TimurManjosov/chainrules/internal/store"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (use table, json or yaml)", s)
	}
}

// Printer renders values in one output format.
type Printer struct {
	W      io.Writer
	Format OutputFormat
}

// PrintRules outputs rules; JSON and YAML wrap them under "rules".
func (p Printer) PrintRules(list []rules.Rule) error {
	if p.Format != FormatTable {
		return p.encode(map[string][]rules.Rule{"rules": list})
	}
	table := tablewriter.NewWriter(p.W)
	table.Header("ID", "Name", "Category", "Priority", "Enabled", "Chains", "Version")
	for _, r := range list {
		if err := table.Append(
			r.ID,
			truncate(r.Name, 40),
			string(r.Category),
			strconv.Itoa(r.Priority),
			strconv.FormatBool(r.Enabled),
			strings.Join(r.Chains, ","),
			r.Metadata.Version,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintRule outputs a single rule
func (p Printer) PrintRule(r *rules.Rule) error {
	if p.Format == FormatTable {
		return p.PrintRules([]rules.Rule{*r})
	}
	return p.encode(r)
}

// PrintReport outputs an evaluation report; the table form lists the
// recommendations and a summary line.
func (p Printer) PrintReport(rep *engine.Report) error {
	if p.Format != FormatTable {
		return p.encode(rep)
	}
	fmt.Fprintf(p.W, "Invoice %s: risk %d, wallet %s, compliant %t, needs review %t\n",
		rep.InvoiceID, rep.RiskScore, rep.WalletMode,
		rep.ComplianceStatus.Compliant, rep.ComplianceStatus.NeedsReview)

	table := tablewriter.NewWriter(p.W)
	table.Header("Priority", "Action", "Rule", "Severity", "Message")
	for _, r := range rep.Recommendations {
		if err := table.Append(
			strconv.Itoa(r.Priority),
			string(r.Action),
			r.RuleName,
			string(r.Severity),
			truncate(r.Message, 50),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintDeployments outputs deployment records
func (p Printer) PrintDeployments(deps []store.Deployment) error {
	if p.Format != FormatTable {
		return p.encode(map[string][]store.Deployment{"deployments": deps})
	}
	table := tablewriter.NewWriter(p.W)
	table.Header("Address", "Chain", "Network", "Rules", "Deployed At")
	for _, d := range deps {
		if err := table.Append(
			d.Address,
			d.Chain,
			d.Network,
			strings.Join(d.RuleIDs, ","),
			d.DeployedAt.Format("2006-01-02 15:04"),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintDeployment outputs the receipt of one deployment
func (p Printer) PrintDeployment(res *engine.DeploymentResult) error {
	if p.Format != FormatTable {
		return p.encode(res)
	}
	table := tablewriter.NewWriter(p.W)
	table.Header("Address", "Chain", "Network", "Transaction", "Gas/Compute")
	cost := strconv.Itoa(res.GasUsed)
	if res.ComputeUnits > 0 {
		cost = strconv.Itoa(res.ComputeUnits)
	}
	if err := table.Append(res.Address, res.Chain, res.Network, truncate(res.TransactionHash, 24), cost); err != nil {
		return err
	}
	return table.Render()
}

// PrintAudit outputs audit entries
func (p Printer) PrintAudit(entries []client.AuditEntry) error {
	if p.Format != FormatTable {
		return p.encode(map[string][]client.AuditEntry{"entries": entries})
	}
	table := tablewriter.NewWriter(p.W)
	table.Header("Timestamp", "Event", "Actor", "Verified", "ID")
	for _, e := range entries {
		if err := table.Append(
			e.Timestamp.Format("2006-01-02 15:04:05"),
			string(e.Event),
			e.Actor,
			strconv.FormatBool(e.Verified),
			e.ID,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintValue outputs any value as JSON or YAML; tables fall back to YAML.
func (p Printer) PrintValue(v any) error {
	return p.encode(v)
}

func (p Printer) encode(v any) error {
	if p.Format == FormatJSON {
		encoder := json.NewEncoder(p.W)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	}
	encoder := yaml.NewEncoder(p.W)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
