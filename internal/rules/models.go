package rules

import "time"

// Category groups rules by the business concern they cover.
type Category string

const (
	CategoryTransaction Category = "transaction"
	CategoryCompliance  Category = "compliance"
	CategorySecurity    Category = "security"
	CategoryWallet      Category = "wallet"
	CategoryToken       Category = "token"
)

// Categories lists every known category in display order.
var Categories = []Category{CategoryTransaction, CategoryCompliance, CategorySecurity, CategoryWallet, CategoryToken}

// Operator represents a comparison operator used in rule conditions.
type Operator string

// Supported condition operators (string values for clean JSON serialization).
const (
	OpEquals   Operator = "equals"
	OpGreater  Operator = "greater"
	OpLess     Operator = "less"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpBetween  Operator = "between"
	OpRegex    Operator = "regex"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEquals, OpGreater, OpLess, OpContains, OpIn, OpBetween, OpRegex}

// DataType tells the evaluator how to coerce a condition's literal before comparing.
type DataType string

const (
	TypeString    DataType = "string"
	TypeNumber    DataType = "number"
	TypeBoolean   DataType = "boolean"
	TypeDate      DataType = "date"
	TypeReference DataType = "reference"
	TypeArray     DataType = "array"
)

// Logic joins a condition with the accumulated result of the ones before it.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ActionType names an outcome a triggered rule recommends. The set is open.
type ActionType string

const (
	ActionAllow              ActionType = "allow"
	ActionDeny               ActionType = "deny"
	ActionHold               ActionType = "hold"
	ActionRequireAttestation ActionType = "require_attestation"
	ActionNotify             ActionType = "notify"
	ActionLog                ActionType = "log"
	ActionSetWalletMode      ActionType = "set_wallet_mode"
)

// ActionTypes lists the action types advertised to clients.
var ActionTypes = []ActionType{ActionAllow, ActionDeny, ActionHold, ActionRequireAttestation, ActionNotify, ActionLog}

// Severity grades an action.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ChainAll in Rule.Chains makes a rule apply to every target.
const ChainAll = "all"

// Condition is a single predicate over an evaluation context field.
// Logic describes how this condition joins the accumulated result of the
// conditions before it; the first condition's Logic is ignored.
type Condition struct {
	Field         string         `json:"field" yaml:"field"`
	Operator      Operator       `json:"operator" yaml:"operator"`
	Value         any            `json:"value" yaml:"value"`
	DataType      DataType       `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	Logic         Logic          `json:"logic,omitempty" yaml:"logic,omitempty"`
	ChainSpecific map[string]any `json:"chainSpecific,omitempty" yaml:"chainSpecific,omitempty"`
}

// Action is an outcome attached to a rule.
type Action struct {
	Type          ActionType     `json:"type" yaml:"type"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Message       string         `json:"message,omitempty" yaml:"message,omitempty"`
	Severity      Severity       `json:"severity,omitempty" yaml:"severity,omitempty"`
	ChainSpecific map[string]any `json:"chainSpecific,omitempty" yaml:"chainSpecific,omitempty"`
}

// Param returns the string form of a named parameter, or "" when absent.
func (a Action) Param(key string) string {
	if a.Parameters == nil {
		return ""
	}
	s, _ := a.Parameters[key].(string)
	return s
}

// Metadata carries bookkeeping about a rule.
type Metadata struct {
	Version       string    `json:"version" yaml:"version"`
	Author        string    `json:"author,omitempty" yaml:"author,omitempty"`
	CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt"`
	Jurisdictions []string  `json:"jurisdictions,omitempty" yaml:"jurisdictions,omitempty"`
	Tags          []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Rule is a named, prioritized set of conditions and actions.
// Priority ranges over [0,100]; higher is evaluated first.
type Rule struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category      Category       `json:"category" yaml:"category"`
	Priority      int            `json:"priority" yaml:"priority"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	Exclusive     bool           `json:"exclusive,omitempty" yaml:"exclusive,omitempty"`
	Conditions    []Condition    `json:"conditions" yaml:"conditions"`
	Actions       []Action       `json:"actions" yaml:"actions"`
	Chains        []string       `json:"chains" yaml:"chains"`
	Metadata      Metadata       `json:"metadata" yaml:"metadata"`
	ChainSpecific map[string]any `json:"chainSpecific,omitempty" yaml:"chainSpecific,omitempty"`
}

// AppliesTo reports whether the rule targets chain, either explicitly or via "all".
func (r Rule) AppliesTo(chain string) bool {
	for _, c := range r.Chains {
		if c == ChainAll || c == chain {
			return true
		}
	}
	return false
}

// HasAction reports whether the rule carries an action of type t.
func (r Rule) HasAction(t ActionType) bool {
	for _, a := range r.Actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with r. Nested maps and
// condition values are shared, they are treated as read-only.
func (r Rule) Clone() Rule {
	out := r
	out.Conditions = append([]Condition(nil), r.Conditions...)
	out.Actions = append([]Action(nil), r.Actions...)
	out.Chains = append([]string(nil), r.Chains...)
	out.Metadata.Jurisdictions = append([]string(nil), r.Metadata.Jurisdictions...)
	out.Metadata.Tags = append([]string(nil), r.Metadata.Tags...)
	return out
}
