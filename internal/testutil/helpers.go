// Package testutil has helpers shared by HTTP-level tests.
package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TimurManjosov/chainrules/internal/chain"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/TimurManjosov/chainrules/internal/store"
)

// T0 is the fixed instant returned by FixedClock.
var T0 = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// FixedClock always returns T0.
func FixedClock() time.Time { return T0 }

// NewEngine returns an initialized engine with a fixed clock, a healthy chain
// connector and the given store (in-memory when nil). It is closed on cleanup.
func NewEngine(t *testing.T, st store.Store) *engine.Engine {
	t.Helper()
	e := engine.New(engine.Options{
		Store:     st,
		Connector: chain.ConnectorFunc(func(context.Context) error { return nil }),
		Clock:     FixedClock,
	})
	if _, err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Bearer returns an Authorization header map for key.
func Bearer(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

// SeedRules creates each config through the engine and returns the stored rules.
func SeedRules(ctx context.Context, e *engine.Engine, cfgs ...rules.RuleConfig) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(cfgs))
	for _, cfg := range cfgs {
		r, err := e.CreateCustomRule(ctx, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// AmountRule is a minimal valid transaction rule triggered above threshold.
func AmountRule(name string, threshold float64) rules.RuleConfig {
	return rules.RuleConfig{
		Name:       name,
		Category:   rules.CategoryTransaction,
		Conditions: []rules.Condition{{Field: "invoice.amount", Operator: rules.OpGreater, Value: threshold, DataType: rules.TypeNumber}},
		Actions:    []rules.Action{{Type: rules.ActionLog, Message: name}},
	}
}
