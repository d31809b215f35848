package rules

import (
	"time"

	"github.com/google/uuid"
)

// Defaults applied by CreateRule when the corresponding field is unset.
const (
	DefaultPriority = 50
	DefaultVersion  = "1.0.0"
)

// RuleConfig is the partial description a caller supplies to CreateRule.
// Pointer fields distinguish "unset" from a zero value.
type RuleConfig struct {
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category      Category       `json:"category" yaml:"category"`
	Priority      *int           `json:"priority,omitempty" yaml:"priority,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Exclusive     bool           `json:"exclusive,omitempty" yaml:"exclusive,omitempty"`
	Conditions    []Condition    `json:"conditions" yaml:"conditions"`
	Actions       []Action       `json:"actions" yaml:"actions"`
	Chains        []string       `json:"chains,omitempty" yaml:"chains,omitempty"`
	Metadata      *Metadata      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ChainSpecific map[string]any `json:"chainSpecific,omitempty" yaml:"chainSpecific,omitempty"`
}

type factoryOptions struct {
	now   func() time.Time
	newID func() string
}

// Option customizes CreateRule.
type Option func(*factoryOptions)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *factoryOptions) { o.now = now }
}

// WithIDGenerator overrides rule id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *factoryOptions) { o.newID = gen }
}

// CreateRule builds a Rule from cfg, filling defaults and assigning a fresh
// id, then validates it. The returned error is a *ValidationError.
func CreateRule(cfg RuleConfig, opts ...Option) (Rule, error) {
	o := factoryOptions{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}

	now := o.now()
	r := Rule{
		ID:            o.newID(),
		Name:          cfg.Name,
		Description:   cfg.Description,
		Category:      cfg.Category,
		Priority:      DefaultPriority,
		Enabled:       true,
		Exclusive:     cfg.Exclusive,
		Chains:        append([]string(nil), cfg.Chains...),
		ChainSpecific: cfg.ChainSpecific,
	}
	if cfg.Priority != nil {
		r.Priority = *cfg.Priority
	}
	if cfg.Enabled != nil {
		r.Enabled = *cfg.Enabled
	}
	if len(r.Chains) == 0 {
		r.Chains = []string{ChainAll}
	}

	r.Conditions = make([]Condition, len(cfg.Conditions))
	for i, c := range cfg.Conditions {
		r.Conditions[i] = withConditionDefaults(c)
	}
	r.Actions = make([]Action, len(cfg.Actions))
	for i, a := range cfg.Actions {
		r.Actions[i] = withActionDefaults(a)
	}

	if cfg.Metadata != nil {
		r.Metadata = *cfg.Metadata
	}
	if r.Metadata.Version == "" {
		r.Metadata.Version = DefaultVersion
	}
	if r.Metadata.CreatedAt.IsZero() {
		r.Metadata.CreatedAt = now
	}
	r.Metadata.UpdatedAt = now

	if err := ValidateRule(r).Err(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// WithDefaults fills unset condition and action fields the way CreateRule does.
func (r Rule) WithDefaults() Rule {
	out := r.Clone()
	for i, c := range out.Conditions {
		out.Conditions[i] = withConditionDefaults(c)
	}
	for i, a := range out.Actions {
		out.Actions[i] = withActionDefaults(a)
	}
	if len(out.Chains) == 0 {
		out.Chains = []string{ChainAll}
	}
	return out
}

func withConditionDefaults(c Condition) Condition {
	if c.DataType == "" {
		c.DataType = TypeString
	}
	if c.Logic == "" {
		c.Logic = LogicAnd
	}
	return c
}

func withActionDefaults(a Action) Action {
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}
	return a
}
