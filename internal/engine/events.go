package engine

import (
	"time"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventInitialized   EventType = "initialized"
	EventRuleCreated   EventType = "ruleCreated"
	EventRuleUpdated   EventType = "ruleUpdated"
	EventRuleDeleted   EventType = "ruleDeleted"
	EventRulesDeployed EventType = "rulesDeployed"
)

// Event is delivered to subscribers after an operation completes.
type Event struct {
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	RuleID     string            `json:"ruleId,omitempty"`
	Rule       *rules.Rule       `json:"rule,omitempty"`
	Deployment *DeploymentResult `json:"deployment,omitempty"`
}

// Subscribe registers an observer. Delivery never blocks the engine: when the
// buffer is full the event is dropped for that subscriber. The returned func
// unregisters and closes the channel; it is safe to call more than once.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

// publish must be called while holding e.mu so delivery follows completion order.
func (e *Engine) publish(ev Event) {
	ev.Timestamp = e.now()

	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.log.Warn("subscriber buffer full, dropping event", map[string]any{"subscriber": id, "event": string(ev.Type)})
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
}
