// Package evaluator applies rule conditions to an evaluation context and
// caches the per-rule outcome.
package evaluator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/TimurManjosov/chainrules/internal/telemetry"
)

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 50000
)

// ConditionResult is the outcome of one condition.
type ConditionResult struct {
	Field    string         `json:"field"`
	Operator rules.Operator `json:"operator"`
	Expected any            `json:"expected"`
	Actual   any            `json:"actual"`
	Result   bool           `json:"result"`
	Logic    rules.Logic    `json:"logic,omitempty"`
}

// Result is the outcome of evaluating one rule against one context.
type Result struct {
	RuleID           string            `json:"ruleId"`
	RuleName         string            `json:"ruleName"`
	Triggered        bool              `json:"triggered"`
	Conditions       []ConditionResult `json:"conditions"`
	Actions          []rules.Action    `json:"actions"`
	EvaluationTimeMs float64           `json:"evaluationTimeMs"`
	Timestamp        time.Time         `json:"timestamp"`
	Cached           bool              `json:"cached,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Options configures an Evaluator. Zero values select the defaults.
type Options struct {
	CacheTTL        time.Duration
	CacheMaxEntries int
	Clock           func() time.Time
	Logger          logging.Logger
	Lists           map[string][]string
}

// Stats is a snapshot of evaluator counters.
type Stats struct {
	Evaluations     int64   `json:"evaluations"`
	Triggered       int64   `json:"triggered"`
	Errors          int64   `json:"errors"`
	CacheHits       int64   `json:"cacheHits"`
	CacheMisses     int64   `json:"cacheMisses"`
	CacheSize       int     `json:"cacheSize"`
	AverageTimeMs   float64 `json:"averageTimeMs"`
	CacheTTLSeconds float64 `json:"cacheTtlSeconds"`
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	cache *resultCache
	now   func() time.Time
	log   logging.Logger
	lists map[string][]string

	evaluations atomic.Int64
	triggered   atomic.Int64
	errors      atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	totalNanos  atomic.Int64
}

// New builds an Evaluator.
func New(opts Options) *Evaluator {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheMaxEntries <= 0 {
		opts.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Lists == nil {
		opts.Lists = DefaultLists
	}
	return &Evaluator{
		cache: newResultCache(opts.CacheTTL, opts.CacheMaxEntries, opts.Clock),
		now:   opts.Clock,
		log:   opts.Logger,
		lists: opts.Lists,
	}
}

// EvaluateRules evaluates rs against c in descending priority order, keeping
// input order among equal priorities. Disabled rules are skipped. Once an
// exclusive rule triggers, no further rules are evaluated in this call.
// When ctx is done before every rule ran, the partial results are returned
// together with ctx.Err().
func (e *Evaluator) EvaluateRules(ctx context.Context, rs []rules.Rule, c *Context) ([]Result, error) {
	ordered := rules.SortByPriority(rs)
	results := make([]Result, 0, len(ordered))
	for _, r := range ordered {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if !r.Enabled {
			continue
		}
		res := e.EvaluateRule(ctx, r, c)
		results = append(results, res)
		if r.Exclusive && res.Triggered {
			break
		}
	}
	return results, nil
}

// EvaluateRule evaluates a single rule, serving a cached result when one
// younger than the TTL exists for the rule and the context's invoice and
// customer sections. Failures are reported in Result.Error, never returned.
func (e *Evaluator) EvaluateRule(_ context.Context, r rules.Rule, c *Context) Result {
	if c == nil {
		c = &Context{}
	}
	key, cacheable := cacheKey{ruleID: r.ID}, false
	if h, ok := contextHash(c); ok {
		key.ctxHash, cacheable = h, true
	}

	if cacheable {
		if cached, ok := e.cache.get(key); ok {
			e.hits.Add(1)
			telemetry.EvalCacheLookups.WithLabelValues("hit").Inc()
			cached.Cached = true
			return cached
		}
		e.misses.Add(1)
		telemetry.EvalCacheLookups.WithLabelValues("miss").Inc()
	}

	res := e.evaluate(r, c)
	if cacheable && res.Error == "" {
		e.cache.put(key, res)
	}
	return res
}

func (e *Evaluator) evaluate(r rules.Rule, c *Context) (res Result) {
	start := e.now()
	res = Result{RuleID: r.ID, RuleName: r.Name, Timestamp: start}

	defer func() {
		if p := recover(); p != nil {
			res.Triggered = false
			res.Actions = nil
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		elapsed := e.now().Sub(start)
		res.EvaluationTimeMs = float64(elapsed.Microseconds()) / 1000
		e.record(res, elapsed)
	}()

	conds := make([]ConditionResult, 0, len(r.Conditions))
	for _, cond := range r.Conditions {
		cr, err := e.evaluateCondition(cond, c)
		if err != nil {
			res.Conditions = append(conds, cr)
			res.Error = fmt.Sprintf("condition %s %s: %v", cond.Field, cond.Operator, err)
			return res
		}
		conds = append(conds, cr)
	}
	res.Conditions = conds
	res.Triggered = combine(r.Conditions, conds)
	if res.Triggered {
		res.Actions = append([]rules.Action(nil), r.Actions...)
	}
	return res
}

// combine folds condition results left to right. Each condition after the
// first joins the accumulated value with its own Logic; there is no
// AND-before-OR precedence, so [A, B(OR), C(AND)] means (A || B) && C.
func combine(conds []rules.Condition, results []ConditionResult) bool {
	if len(results) == 0 {
		return false
	}
	acc := results[0].Result
	for i := 1; i < len(results); i++ {
		if conds[i].Logic == rules.LogicOr {
			acc = acc || results[i].Result
		} else {
			acc = acc && results[i].Result
		}
	}
	return acc
}

func (e *Evaluator) evaluateCondition(cond rules.Condition, c *Context) (ConditionResult, error) {
	cr := ConditionResult{Field: cond.Field, Operator: cond.Operator, Expected: cond.Value, Logic: cond.Logic}

	handler, ok := getOperatorHandler(cond.Operator)
	if !ok {
		e.log.Warn("unknown condition operator", logging.Fields{"operator": string(cond.Operator), "field": cond.Field})
		return cr, nil
	}

	actual, present := GetFieldValue(cond.Field, c)
	cr.Actual = actual
	if !present {
		return cr, nil
	}

	expected, err := resolveValue(cond.Value, c, cond.DataType, e.lists)
	if err != nil {
		return cr, err
	}
	cr.Expected = expected

	matched, err := handler.Check(actual, expected)
	if err != nil {
		return cr, err
	}
	cr.Result = matched
	return cr, nil
}

func (e *Evaluator) record(res Result, elapsed time.Duration) {
	e.evaluations.Add(1)
	e.totalNanos.Add(int64(elapsed))
	switch {
	case res.Error != "":
		e.errors.Add(1)
		telemetry.RuleEvaluations.WithLabelValues("error").Inc()
		e.log.Warn("rule evaluation failed", logging.Fields{"ruleId": res.RuleID, "error": res.Error})
	case res.Triggered:
		e.triggered.Add(1)
		telemetry.RuleEvaluations.WithLabelValues("triggered").Inc()
	default:
		telemetry.RuleEvaluations.WithLabelValues("not_triggered").Inc()
	}
}

// ClearCache drops every cached result.
func (e *Evaluator) ClearCache() { e.cache.clear() }

// Invalidate drops the cached results of one rule.
func (e *Evaluator) Invalidate(ruleID string) { e.cache.invalidate(ruleID) }

// Stats returns a snapshot of the evaluator counters.
func (e *Evaluator) Stats() Stats {
	s := Stats{
		Evaluations:     e.evaluations.Load(),
		Triggered:       e.triggered.Load(),
		Errors:          e.errors.Load(),
		CacheHits:       e.hits.Load(),
		CacheMisses:     e.misses.Load(),
		CacheSize:       e.cache.size(),
		CacheTTLSeconds: e.cache.ttl.Seconds(),
	}
	if s.Evaluations > 0 {
		s.AverageTimeMs = float64(e.totalNanos.Load()) / float64(s.Evaluations) / float64(time.Millisecond)
	}
	return s
}
