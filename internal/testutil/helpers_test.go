package testutil

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/TimurManjosov/chainrules/internal/store"
)

func TestNewEngine(t *testing.T) {
	st := store.NewMemoryStore()
	e := NewEngine(t, st)

	m, err := e.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if !m.Initialized || m.Degraded {
		t.Errorf("Expected healthy initialized engine, got %+v", m)
	}
	if !m.Timestamp.Equal(T0) {
		t.Errorf("Expected fixed clock, got %v", m.Timestamp)
	}
	stored, _ := st.ListRules(context.Background())
	if len(stored) != m.RulesLoaded {
		t.Errorf("Expected engine to use the given store")
	}
}

func TestSeedRules(t *testing.T) {
	e := NewEngine(t, nil)
	ctx := context.Background()

	seeded, err := SeedRules(ctx, e, AmountRule("a", 10), AmountRule("b", 20))
	if err != nil {
		t.Fatalf("SeedRules failed: %v", err)
	}
	if len(seeded) != 2 || seeded[0].ID == seeded[1].ID {
		t.Fatalf("Expected 2 distinct rules, got %+v", seeded)
	}
	if _, err := e.GetRule(ctx, seeded[1].ID); err != nil {
		t.Errorf("seeded rule not stored: %v", err)
	}

	bad := AmountRule("", 1)
	if _, err := SeedRules(ctx, e, bad); err == nil {
		t.Error("Expected validation error for unnamed rule")
	}
}

func TestHTTPRequest_Do(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.Method))
	})

	req := &HTTPRequest{Method: http.MethodPost, Path: "/v1/rules", Body: `{}`, Headers: Bearer("k")}
	rr := req.Do(t, handler)
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "POST") {
		t.Errorf("unexpected body %q", rr.Body.String())
	}

	rr = (&HTTPRequest{Method: http.MethodGet, Path: "/"}).Do(t, handler)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
}
