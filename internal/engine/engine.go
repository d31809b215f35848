// Package engine orchestrates rule storage, invoice evaluation, compilation
// and deployment, and records every mutation in the audit log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/TimurManjosov/chainrules/internal/audit"
	"github.com/TimurManjosov/chainrules/internal/chain"
	"github.com/TimurManjosov/chainrules/internal/compiler"
	"github.com/TimurManjosov/chainrules/internal/evaluator"
	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/TimurManjosov/chainrules/internal/store"
	"github.com/TimurManjosov/chainrules/internal/telemetry"
)

const (
	DefaultChain          = chain.TargetEVM
	DefaultConnectTimeout = 5 * time.Second
)

// relevantCategories are the categories considered by EvaluateInvoice.
var relevantCategories = map[rules.Category]bool{
	rules.CategoryTransaction: true,
	rules.CategoryCompliance:  true,
	rules.CategoryWallet:      true,
}

// Options wires the engine's collaborators. Zero values select in-memory or
// no-op defaults.
type Options struct {
	Logger    logging.Logger
	Connector chain.Connector
	Hasher    audit.Hasher
	Store     store.Store
	Compiler  *compiler.Compiler
	Deployers []chain.Deployer
	Evaluator *evaluator.Evaluator

	// AuditSink receives a copy of every audit entry.
	AuditSink     audit.Sink
	AuditCapacity int
	CacheTTL      time.Duration

	DefaultChain   string
	ConnectTimeout time.Duration
	Clock          func() time.Time
}

// Engine is safe for concurrent use. Rule mutations, deployment recording
// and their audit entries are serialized by one lock.
type Engine struct {
	mu sync.Mutex

	log       logging.Logger
	connector chain.Connector
	store     store.Store
	compiler  *compiler.Compiler
	deployers map[string]chain.Deployer
	eval      *evaluator.Evaluator
	audit     *audit.Log

	defaultChain   string
	connectTimeout time.Duration
	now            func() time.Time

	stateMu     sync.RWMutex
	initialized bool
	degraded    bool

	subMu   sync.RWMutex
	subs    map[int]chan Event
	nextSub int
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// New builds an engine. Call Initialize before serving traffic.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Compiler == nil {
		opts.Compiler = compiler.NewDefault(opts.Logger)
	}
	if opts.Deployers == nil {
		opts.Deployers = chain.DefaultDeployers()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = evaluator.New(evaluator.Options{
			CacheTTL: opts.CacheTTL,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
		})
	}
	if opts.DefaultChain == "" {
		opts.DefaultChain = DefaultChain
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	deployers := make(map[string]chain.Deployer, len(opts.Deployers))
	for _, d := range opts.Deployers {
		deployers[d.Target()] = d
	}

	return &Engine{
		log:       opts.Logger,
		connector: opts.Connector,
		store:     opts.Store,
		compiler:  opts.Compiler,
		deployers: deployers,
		eval:      opts.Evaluator,
		audit: audit.New(audit.Options{
			Capacity: opts.AuditCapacity,
			Clock:    clockFunc(opts.Clock),
			Hasher:   opts.Hasher,
			Sink:     opts.AuditSink,
			Logger:   opts.Logger,
		}),
		defaultChain:   opts.DefaultChain,
		connectTimeout: opts.ConnectTimeout,
		now:            opts.Clock,
		subs:           make(map[int]chan Event),
	}
}

// Status is returned by Initialize.
type Status struct {
	Status       string       `json:"status"`
	Rules        int          `json:"rules"`
	Degraded     bool         `json:"degraded"`
	Capabilities Capabilities `json:"capabilities"`
}

// Initialize loads the default catalog and probes chain connectivity.
// Catalog rules already in storage are left untouched, so repeated calls and
// persistent stores are safe. A connectivity failure is logged and the engine
// continues in degraded mode.
func (e *Engine) Initialize(ctx context.Context) (Status, error) {
	e.log.Info("Initializing rule engine", nil)

	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := 0
	for _, r := range rules.CatalogRules() {
		_, err := e.store.GetRule(ctx, r.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Status{}, fmt.Errorf("load catalog rule %s: %w", r.ID, err)
		}
		now := e.now()
		r.Metadata.CreatedAt, r.Metadata.UpdatedAt = now, now
		if err := e.store.CreateRule(ctx, r); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return Status{}, fmt.Errorf("load catalog rule %s: %w", r.ID, err)
		}
		loaded++
	}

	degraded := false
	if e.connector == nil {
		degraded = true
		e.log.Warn("Chain initialization skipped, using degraded mode", map[string]any{"reason": "no connector"})
	} else {
		cctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
		err := e.connector.Connect(cctx)
		cancel()
		if err != nil {
			degraded = true
			e.log.Warn("Chain initialization failed, using degraded mode", map[string]any{"error": err.Error()})
		} else {
			e.log.Info("Chain connections initialized", nil)
		}
	}

	e.stateMu.Lock()
	e.initialized = true
	e.degraded = degraded
	e.stateMu.Unlock()

	count := e.refreshRuleGauge(ctx)
	e.publish(Event{Type: EventInitialized})
	e.log.Info("Rule engine initialized", map[string]any{
		"ruleCount":     count,
		"catalogLoaded": loaded,
		"chains":        e.compiler.Targets(),
		"degraded":      degraded,
	})

	return Status{Status: "ready", Rules: count, Degraded: degraded, Capabilities: e.Capabilities()}, nil
}

// EvaluateInvoice runs the relevant rules against the payload and aggregates
// their outcome. Per-rule failures are reported inline in the results; a
// cancelled ctx aborts the evaluation and nothing is reported or audited.
func (e *Engine) EvaluateInvoice(ctx context.Context, p InvoicePayload) (*Report, error) {
	start := time.Now()

	now := e.now()
	score := RiskScore(p, now)
	evalCtx := buildContext(p, score, now)

	relevant, err := e.relevantRules(ctx, p.TargetChain)
	if err != nil {
		e.log.Error("Invoice evaluation failed", map[string]any{"invoiceId": p.ID, "error": err.Error()})
		return nil, err
	}

	results, err := e.eval.EvaluateRules(ctx, relevant, evalCtx)
	if err != nil {
		e.log.Warn("Invoice evaluation aborted", map[string]any{
			"invoiceId": p.ID,
			"evaluated": len(results),
			"relevant":  len(relevant),
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("evaluate invoice %s: %w", p.ID, err)
	}
	recs := recommendations(results)
	elapsed := time.Since(start)

	e.audit.Append(ctx, audit.EventInvoiceEvaluation, map[string]any{
		"invoiceId":       p.ID,
		"rulesEvaluated":  len(relevant),
		"recommendations": len(recs),
		"riskScore":       score,
		"durationMs":      elapsed.Milliseconds(),
	})
	telemetry.AuditLogSize.Set(float64(e.audit.Len()))
	telemetry.InvoiceEvaluationDur.Observe(elapsed.Seconds())
	telemetry.InvoiceRiskScore.Observe(float64(score))

	return &Report{
		InvoiceID:         p.ID,
		EvaluationResults: results,
		Recommendations:   recs,
		WalletMode:        walletMode(results),
		ComplianceStatus:  complianceStatus(results),
		RiskScore:         score,
		EvaluationTimeMs:  float64(elapsed) / float64(time.Millisecond),
	}, nil
}

func (e *Engine) relevantRules(ctx context.Context, target string) ([]rules.Rule, error) {
	if target == "" {
		target = e.defaultChain
	}
	all, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(all))
	for _, r := range all {
		if relevantCategories[r.Category] && r.AppliesTo(target) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeploymentResult is returned by DeployRulesToChain.
type DeploymentResult struct {
	chain.Receipt
	Network    string             `json:"network"`
	RuleIDs    []string           `json:"ruleIds"`
	DeployedAt time.Time          `json:"deployedAt"`
	Compiled   *compiler.Compiled `json:"compiled,omitempty"`
}

// DeployRulesToChain compiles the named rules for target and submits them.
// Rule storage is never modified; the deployment record and its audit entry
// are written together.
func (e *Engine) DeployRulesToChain(ctx context.Context, ids []string, target string, opts compiler.Options) (*DeploymentResult, error) {
	e.log.Info("Deploying rules to chain", map[string]any{"ruleCount": len(ids), "chain": target})

	res, err := e.deploy(ctx, ids, target, opts)
	if err != nil {
		telemetry.Deployments.WithLabelValues(target, "error").Inc()
		e.log.Error("Rule deployment failed", map[string]any{"chain": target, "error": err.Error()})
		return nil, err
	}
	telemetry.Deployments.WithLabelValues(target, "success").Inc()
	return res, nil
}

func (e *Engine) deploy(ctx context.Context, ids []string, target string, opts compiler.Options) (*DeploymentResult, error) {
	selected, err := e.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	deployer, ok := e.deployers[target]
	if !ok {
		return nil, &compiler.UnsupportedTargetError{Target: target}
	}
	compiled, err := e.compiler.CompileRules(ctx, selected, target, opts)
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	receipt, err := deployer.Deploy(dctx, compiled, opts)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("deploy to %s: %w", target, err)
	}

	network := opts.Network
	if network == "" {
		network = "mainnet"
	}
	res := &DeploymentResult{
		Receipt:    receipt,
		Network:    network,
		RuleIDs:    append([]string(nil), ids...),
		DeployedAt: e.now(),
		Compiled:   compiled,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A rule deleted while compiling must not end up in a deployment record.
	for _, id := range ids {
		if _, err := e.store.GetRule(ctx, id); err != nil {
			return nil, e.notFound(id, err)
		}
	}
	if err := e.store.SaveDeployment(ctx, store.Deployment{
		Address:         receipt.Address,
		Chain:           target,
		Network:         network,
		RuleIDs:         res.RuleIDs,
		DeployedAt:      res.DeployedAt,
		TransactionHash: receipt.TransactionHash,
	}); err != nil {
		return nil, fmt.Errorf("record deployment: %w", err)
	}
	e.appendAudit(ctx, audit.EventRulesDeployed, map[string]any{
		"chain":     target,
		"network":   network,
		"ruleCount": len(ids),
		"ruleIds":   res.RuleIDs,
		"address":   receipt.Address,
	})
	e.publish(Event{Type: EventRulesDeployed, Deployment: res})
	return res, nil
}

// CompileRules compiles the named rules for target without deploying them.
func (e *Engine) CompileRules(ctx context.Context, ids []string, target string, opts compiler.Options) (*compiler.Compiled, error) {
	selected, err := e.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	return e.compiler.CompileRules(ctx, selected, target, opts)
}

func (e *Engine) resolve(ctx context.Context, ids []string) ([]rules.Rule, error) {
	if len(ids) == 0 {
		return nil, &rules.ValidationError{Errors: []string{"At least one rule id is required"}}
	}
	selected := make([]rules.Rule, 0, len(ids))
	for _, id := range ids {
		r, err := e.GetRule(ctx, id)
		if err != nil {
			return nil, err
		}
		selected = append(selected, r)
	}
	return selected, nil
}

// CreateCustomRule validates cfg and stores the resulting rule.
func (e *Engine) CreateCustomRule(ctx context.Context, cfg rules.RuleConfig) (rules.Rule, error) {
	r, err := rules.CreateRule(cfg, rules.WithClock(e.now))
	if err != nil {
		return rules.Rule{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.CreateRule(ctx, r); err != nil {
		return rules.Rule{}, fmt.Errorf("store rule: %w", err)
	}
	e.appendAudit(ctx, audit.EventRuleCreated, map[string]any{"ruleId": r.ID, "name": r.Name})
	telemetry.RuleMutations.WithLabelValues("create").Inc()
	e.refreshRuleGauge(ctx)

	out := r.Clone()
	e.publish(Event{Type: EventRuleCreated, RuleID: r.ID, Rule: &out})
	return r, nil
}

// RulePatch lists the fields UpdateRule may change. Nil fields are kept.
type RulePatch struct {
	Name          *string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description   *string           `json:"description,omitempty" yaml:"description,omitempty"`
	Category      *rules.Category   `json:"category,omitempty" yaml:"category,omitempty"`
	Priority      *int              `json:"priority,omitempty" yaml:"priority,omitempty"`
	Enabled       *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Exclusive     *bool             `json:"exclusive,omitempty" yaml:"exclusive,omitempty"`
	Conditions    []rules.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions       []rules.Action    `json:"actions,omitempty" yaml:"actions,omitempty"`
	Chains        []string          `json:"chains,omitempty" yaml:"chains,omitempty"`
	Tags          []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	ChainSpecific map[string]any    `json:"chainSpecific,omitempty" yaml:"chainSpecific,omitempty"`
}

// apply merges p into r and returns the names of the fields it set.
func (p RulePatch) apply(r *rules.Rule) []string {
	var fields []string
	if p.Name != nil {
		r.Name = *p.Name
		fields = append(fields, "name")
	}
	if p.Description != nil {
		r.Description = *p.Description
		fields = append(fields, "description")
	}
	if p.Category != nil {
		r.Category = *p.Category
		fields = append(fields, "category")
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
		fields = append(fields, "priority")
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
		fields = append(fields, "enabled")
	}
	if p.Exclusive != nil {
		r.Exclusive = *p.Exclusive
		fields = append(fields, "exclusive")
	}
	if p.Conditions != nil {
		r.Conditions = append([]rules.Condition(nil), p.Conditions...)
		fields = append(fields, "conditions")
	}
	if p.Actions != nil {
		r.Actions = append([]rules.Action(nil), p.Actions...)
		fields = append(fields, "actions")
	}
	if p.Chains != nil {
		r.Chains = append([]string(nil), p.Chains...)
		fields = append(fields, "chains")
	}
	if p.Tags != nil {
		r.Metadata.Tags = append([]string(nil), p.Tags...)
		fields = append(fields, "tags")
	}
	if p.ChainSpecific != nil {
		r.ChainSpecific = maps.Clone(p.ChainSpecific)
		fields = append(fields, "chainSpecific")
	}
	return fields
}

// UpdateRule merges patch into the stored rule, bumps its patch version and
// revalidates. The rule id never changes.
func (e *Engine) UpdateRule(ctx context.Context, id string, patch RulePatch) (rules.Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before, err := e.store.GetRule(ctx, id)
	if err != nil {
		return rules.Rule{}, e.notFound(id, err)
	}

	updated := before.Clone()
	fields := patch.apply(&updated)
	updated = updated.WithDefaults()
	updated.Metadata.UpdatedAt = e.now()
	updated.Metadata.Version = rules.BumpVersion(updated.Metadata.Version)

	if err := rules.ValidateRule(updated).Err(); err != nil {
		return rules.Rule{}, err
	}
	if err := e.store.UpdateRule(ctx, updated); err != nil {
		return rules.Rule{}, e.notFound(id, err)
	}
	e.eval.Invalidate(id)

	e.appendAudit(ctx, audit.EventRuleUpdated, map[string]any{
		"ruleId":  id,
		"updates": fields,
		"version": updated.Metadata.Version,
		"changes": audit.ComputeChanges(audit.ToMap(before), audit.ToMap(updated)),
	})
	telemetry.RuleMutations.WithLabelValues("update").Inc()

	out := updated.Clone()
	e.publish(Event{Type: EventRuleUpdated, RuleID: id, Rule: &out})
	return updated, nil
}

// ToggleRule enables or disables a rule. Deployed rules may be toggled.
func (e *Engine) ToggleRule(ctx context.Context, id string, enabled bool) (rules.Rule, error) {
	return e.UpdateRule(ctx, id, RulePatch{Enabled: &enabled})
}

// DeleteRule removes a rule that no deployment references.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.store.GetRule(ctx, id)
	if err != nil {
		return e.notFound(id, err)
	}
	deps, err := e.store.ListDeployments(ctx)
	if err != nil {
		return fmt.Errorf("list deployments: %w", err)
	}
	for _, d := range deps {
		if d.References(id) {
			return &ConflictError{ID: id, Address: d.Address}
		}
	}

	if err := e.store.DeleteRule(ctx, id); err != nil {
		return e.notFound(id, err)
	}
	e.eval.Invalidate(id)
	e.appendAudit(ctx, audit.EventRuleDeleted, map[string]any{"ruleId": id, "name": r.Name})
	telemetry.RuleMutations.WithLabelValues("delete").Inc()
	e.refreshRuleGauge(ctx)

	e.publish(Event{Type: EventRuleDeleted, RuleID: id})
	return nil
}

// RuleFilter narrows GetRules. Zero fields match everything.
type RuleFilter struct {
	Category rules.Category
	Enabled  *bool
	Chain    string
}

func (f RuleFilter) match(r rules.Rule) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Enabled != nil && r.Enabled != *f.Enabled {
		return false
	}
	if f.Chain != "" && !r.AppliesTo(f.Chain) {
		return false
	}
	return true
}

// GetRules returns stored rules matching f in insertion order.
func (e *Engine) GetRules(ctx context.Context, f RuleFilter) ([]rules.Rule, error) {
	all, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(all))
	for _, r := range all {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetRule returns a *NotFoundError for unknown ids.
func (e *Engine) GetRule(ctx context.Context, id string) (rules.Rule, error) {
	r, err := e.store.GetRule(ctx, id)
	if err != nil {
		return rules.Rule{}, e.notFound(id, err)
	}
	return r, nil
}

// GetAuditLog returns audit entries oldest first.
func (e *Engine) GetAuditLog(f audit.Filter) []audit.Entry {
	return e.audit.Entries(f)
}

// VerifyAuditEntry reports whether an entry's digest matches its content.
func (e *Engine) VerifyAuditEntry(entry audit.Entry) bool {
	return e.audit.Verify(entry)
}

// Deployments lists recorded deployments oldest first.
func (e *Engine) Deployments(ctx context.Context) ([]store.Deployment, error) {
	return e.store.ListDeployments(ctx)
}

// Close drains the audit sink and closes every subscription.
func (e *Engine) Close(ctx context.Context) error {
	e.closeSubscribers()
	return e.audit.Close(ctx)
}

// notFound maps store.ErrNotFound to *NotFoundError.
func (e *Engine) notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	return err
}

func (e *Engine) appendAudit(ctx context.Context, event audit.Event, details map[string]any) {
	entry := e.audit.Append(ctx, event, details)
	telemetry.AuditLogSize.Set(float64(e.audit.Len()))
	e.log.Debug("Audit event logged", map[string]any{"event": string(event), "id": entry.ID})
}

func (e *Engine) refreshRuleGauge(ctx context.Context) int {
	all, err := e.store.ListRules(ctx)
	if err != nil {
		return 0
	}
	telemetry.RulesLoaded.Set(float64(len(all)))
	return len(all)
}
