package engine

import (
	"context"
	"time"

	"github.com/TimurManjosov/chainrules/internal/evaluator"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

var features = []string{
	"Multi-chain support",
	"Real-time evaluation",
	"Smart contract compilation",
	"Audit trail",
	"Risk scoring",
	"Compliance checking",
	"Wallet mode selection",
}

// Capabilities advertises what the engine supports.
type Capabilities struct {
	Chains         []string           `json:"chains"`
	RuleCategories []rules.Category   `json:"ruleCategories"`
	Operators      []rules.Operator   `json:"operators"`
	Actions        []rules.ActionType `json:"actions"`
	Features       []string           `json:"features"`
}

func (e *Engine) Capabilities() Capabilities {
	return Capabilities{
		Chains:         e.compiler.Targets(),
		RuleCategories: append([]rules.Category(nil), rules.Categories...),
		Operators:      append([]rules.Operator(nil), rules.Operators...),
		Actions:        append([]rules.ActionType(nil), rules.ActionTypes...),
		Features:       append([]string(nil), features...),
	}
}

// Metrics is a point-in-time view of engine state.
type Metrics struct {
	RulesLoaded       int             `json:"rulesLoaded"`
	DeployedContracts int             `json:"deployedContracts"`
	AuditLogSize      int             `json:"auditLogSize"`
	EvaluatorMetrics  evaluator.Stats `json:"evaluatorMetrics"`
	Initialized       bool            `json:"initialized"`
	Degraded          bool            `json:"degraded"`
	Timestamp         time.Time       `json:"timestamp"`
}

func (e *Engine) Metrics(ctx context.Context) (Metrics, error) {
	all, err := e.store.ListRules(ctx)
	if err != nil {
		return Metrics{}, err
	}
	deps, err := e.store.ListDeployments(ctx)
	if err != nil {
		return Metrics{}, err
	}

	e.stateMu.RLock()
	initialized, degraded := e.initialized, e.degraded
	e.stateMu.RUnlock()

	return Metrics{
		RulesLoaded:       len(all),
		DeployedContracts: len(deps),
		AuditLogSize:      e.audit.Len(),
		EvaluatorMetrics:  e.eval.Stats(),
		Initialized:       initialized,
		Degraded:          degraded,
		Timestamp:         e.now(),
	}, nil
}
