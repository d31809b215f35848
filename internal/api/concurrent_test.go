package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
)

func TestConcurrent_RuleCreatesAndEvaluations(t *testing.T) {
	_, h := newTestServer(t, Options{})

	var wg sync.WaitGroup
	numRules := 25

	for i := 0; i < numRules; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			body := fmt.Sprintf(`{
				"name": "rule_%d",
				"category": "transaction",
				"priority": %d,
				"conditions": [{"field": "invoice.amount", "operator": "greater", "value": %d, "dataType": "number"}],
				"actions": [{"type": "log"}]
			}`, n, n%100, n*10)
			if rr := doRequest(t, h, http.MethodPost, "/v1/rules", body, true); rr.Code != http.StatusCreated {
				t.Errorf("Failed to create rule_%d: status %d", n, rr.Code)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"id": "inv-%d", "amount": %d}`, n, n*100)
			if rr := doRequest(t, h, http.MethodPost, "/v1/invoices/evaluate", body, false); rr.Code != http.StatusOK {
				t.Errorf("Failed to evaluate inv-%d: status %d", n, rr.Code)
			}
		}(i)
	}
	wg.Wait()

	rr := doRequest(t, h, http.MethodGet, "/v1/rules?category=transaction", "", false)
	var resp listRulesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	// daily-spend-limit plus the created rules
	if resp.Count != numRules+1 {
		t.Errorf("Expected %d transaction rules, got %d", numRules+1, resp.Count)
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/audit?limit=1000", "", true)
	var audit listAuditResponse
	if err := json.NewDecoder(rr.Body).Decode(&audit); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if audit.Count != 2*numRules {
		t.Errorf("Expected %d audit entries, got %d", 2*numRules, audit.Count)
	}
}
