package webhook

import (
	"time"

	"github.com/TimurManjosov/chainrules/internal/audit"
	"github.com/TimurManjosov/chainrules/internal/engine"
)

// Event types sent to webhook endpoints.
const (
	EventEngineInitialized = "engine.initialized"
	EventRuleCreated       = "rule.created"
	EventRuleUpdated       = "rule.updated"
	EventRuleDeleted       = "rule.deleted"
	EventRulesDeployed     = "rules.deployed"
)

var eventNames = map[engine.EventType]string{
	engine.EventInitialized:   EventEngineInitialized,
	engine.EventRuleCreated:   EventRuleCreated,
	engine.EventRuleUpdated:   EventRuleUpdated,
	engine.EventRuleDeleted:   EventRuleDeleted,
	engine.EventRulesDeployed: EventRulesDeployed,
}

// Event is the JSON body POSTed to an endpoint.
type Event struct {
	Type      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Resource  Resource       `json:"resource"`
	Data      map[string]any `json:"data,omitempty"`
}

// Resource identifies what the event is about.
type Resource struct {
	Type string `json:"type"` // "rule", "deployment" or "engine"
	Key  string `json:"key,omitempty"`
}

// FromEngineEvent converts a lifecycle notification. ok is false for event
// types that are not forwarded.
func FromEngineEvent(ev engine.Event) (Event, bool) {
	name, ok := eventNames[ev.Type]
	if !ok {
		return Event{}, false
	}
	out := Event{Type: name, Timestamp: ev.Timestamp}

	switch {
	case ev.Deployment != nil:
		out.Resource = Resource{Type: "deployment", Key: ev.Deployment.Address}
		out.Data = map[string]any{
			"chain":           ev.Deployment.Chain,
			"network":         ev.Deployment.Network,
			"ruleIds":         ev.Deployment.RuleIDs,
			"transactionHash": ev.Deployment.TransactionHash,
		}
	case ev.RuleID != "":
		out.Resource = Resource{Type: "rule", Key: ev.RuleID}
		if ev.Rule != nil {
			out.Data = map[string]any{"rule": audit.ToMap(ev.Rule)}
		}
	default:
		out.Resource = Resource{Type: "engine"}
	}
	return out, true
}
