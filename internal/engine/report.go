package engine

import (
	"slices"
	"strings"

	"github.com/TimurManjosov/chainrules/internal/evaluator"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

// DefaultWalletMode is reported when no triggered rule sets a mode.
const DefaultWalletMode = "adaptive"

// complianceMarker selects the rules that feed ComplianceStatus.
const complianceMarker = "Compliance"

var actionPriorities = map[rules.ActionType]int{
	rules.ActionDeny:               100,
	rules.ActionRequireAttestation: 90,
	rules.ActionHold:               80,
	rules.ActionSetWalletMode:      70,
	rules.ActionNotify:             50,
	rules.ActionLog:                30,
	rules.ActionAllow:              10,
}

// ActionPriority ranks an action type; unknown types rank 0.
func ActionPriority(t rules.ActionType) int {
	return actionPriorities[t]
}

// Recommendation is one action of a triggered rule.
type Recommendation struct {
	RuleID     string           `json:"ruleId"`
	RuleName   string           `json:"ruleName"`
	Action     rules.ActionType `json:"action"`
	Parameters map[string]any   `json:"parameters,omitempty"`
	Message    string           `json:"message,omitempty"`
	Severity   rules.Severity   `json:"severity"`
	Priority   int              `json:"priority"`
}

type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message,omitempty"`
}

type Requirement struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ComplianceStatus aggregates the triggered compliance rules.
type ComplianceStatus struct {
	Compliant    bool          `json:"compliant"`
	Violations   []Violation   `json:"violations"`
	Requirements []Requirement `json:"requirements"`
	NeedsReview  bool          `json:"needsReview"`
}

// Report is the result of EvaluateInvoice.
type Report struct {
	InvoiceID         string             `json:"invoice"`
	EvaluationResults []evaluator.Result `json:"evaluationResults"`
	Recommendations   []Recommendation   `json:"recommendations"`
	WalletMode        string             `json:"walletMode"`
	ComplianceStatus  ComplianceStatus   `json:"complianceStatus"`
	RiskScore         int                `json:"riskScore"`
	EvaluationTimeMs  float64            `json:"evaluationTime"`
}

// recommendations lists every action of every triggered result, highest
// priority first. Ties keep evaluation order.
func recommendations(results []evaluator.Result) []Recommendation {
	out := []Recommendation{}
	for _, res := range results {
		if !res.Triggered {
			continue
		}
		for _, a := range res.Actions {
			sev := a.Severity
			if sev == "" {
				sev = rules.SeverityInfo
			}
			out = append(out, Recommendation{
				RuleID:     res.RuleID,
				RuleName:   res.RuleName,
				Action:     a.Type,
				Parameters: a.Parameters,
				Message:    a.Message,
				Severity:   sev,
				Priority:   ActionPriority(a.Type),
			})
		}
	}
	slices.SortStableFunc(out, func(a, b Recommendation) int { return b.Priority - a.Priority })
	return out
}

// walletMode returns the mode of the first triggered set_wallet_mode action
// that names one.
func walletMode(results []evaluator.Result) string {
	for _, res := range results {
		if !res.Triggered {
			continue
		}
		for _, a := range res.Actions {
			if a.Type != rules.ActionSetWalletMode {
				continue
			}
			if mode := a.Param("mode"); mode != "" {
				return mode
			}
		}
	}
	return DefaultWalletMode
}

func complianceStatus(results []evaluator.Result) ComplianceStatus {
	st := ComplianceStatus{Compliant: true, Violations: []Violation{}, Requirements: []Requirement{}}
	for _, res := range results {
		if !res.Triggered || !strings.Contains(res.RuleName, complianceMarker) {
			continue
		}
		for _, a := range res.Actions {
			switch a.Type {
			case rules.ActionDeny:
				st.Compliant = false
				st.Violations = append(st.Violations, Violation{Rule: res.RuleName, Message: a.Message})
			case rules.ActionRequireAttestation:
				st.Requirements = append(st.Requirements, Requirement{Type: a.Param("attestationType"), Message: a.Message})
			}
		}
	}
	st.NeedsReview = len(st.Violations) > 0 || len(st.Requirements) > 0
	return st
}
