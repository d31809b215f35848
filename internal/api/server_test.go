package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TimurManjosov/chainrules/internal/auth"
	"github.com/TimurManjosov/chainrules/internal/compiler"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/TimurManjosov/chainrules/internal/store"
	"github.com/TimurManjosov/chainrules/internal/testutil"
)

const testAdminKey = "admin-key"

func newTestServer(t *testing.T, opts Options) (*Server, http.Handler) {
	t.Helper()
	if opts.Engine == nil {
		opts.Engine = testutil.NewEngine(t, nil)
	}
	if opts.Auth == nil {
		opts.Auth = auth.NewAuthenticator(testAdminKey, nil)
	}
	srv := NewServer(opts)
	return srv, srv.Router()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := &testutil.HTTPRequest{Method: method, Path: path, Body: body}
	if admin {
		req.Headers = testutil.Bearer(testAdminKey)
	}
	return req.Do(t, h)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

const validRuleBody = `{
	"name": "Large invoice",
	"category": "transaction",
	"conditions": [{"field": "invoice.amount", "operator": "greater", "value": 100, "dataType": "number"}],
	"actions": [{"type": "log", "message": "large"}]
}`

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t, Options{})

	rr := doRequest(t, h, http.MethodGet, "/healthz", "", false)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("Expected body 'ok', got %s", rr.Body.String())
	}
}

func TestCapabilities(t *testing.T) {
	_, h := newTestServer(t, Options{})

	rr := doRequest(t, h, http.MethodGet, "/v1/capabilities", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var caps engine.Capabilities
	if err := json.NewDecoder(rr.Body).Decode(&caps); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if strings.Join(caps.Chains, ",") != "evm,solana" {
		t.Errorf("Expected evm,solana chains, got %v", caps.Chains)
	}
	if len(caps.Operators) != len(rules.Operators) {
		t.Errorf("Expected %d operators, got %d", len(rules.Operators), len(caps.Operators))
	}
}

func TestListRules(t *testing.T) {
	_, h := newTestServer(t, Options{})

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{"all", "", http.StatusOK, 9},
		{"compliance", "?category=compliance", http.StatusOK, 4},
		{"wallet enabled", "?category=wallet&enabled=true", http.StatusOK, 3},
		{"disabled", "?enabled=false", http.StatusOK, 0},
		{"bad enabled", "?enabled=maybe", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodGet, "/v1/rules"+tt.query, "", false)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp listRulesResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Count != tt.wantCount || len(resp.Rules) != tt.wantCount {
				t.Errorf("Expected %d rules, got %d", tt.wantCount, resp.Count)
			}
		})
	}
}

func TestGetRule(t *testing.T) {
	_, h := newTestServer(t, Options{})

	rr := doRequest(t, h, http.MethodGet, "/v1/rules/aml-screening", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var r rules.Rule
	if err := json.NewDecoder(rr.Body).Decode(&r); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if r.ID != "aml-screening" {
		t.Errorf("Expected aml-screening, got %s", r.ID)
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/rules/missing", "", false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != ErrCodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %s", resp.Code)
	}
}

func TestCreateRule(t *testing.T) {
	_, h := newTestServer(t, Options{})

	t.Run("unauthorized", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodPost, "/v1/rules", validRuleBody, false)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("Expected status 401, got %d", rr.Code)
		}
		if resp := decodeError(t, rr); resp.Code != ErrCodeUnauthorized {
			t.Errorf("Expected UNAUTHORIZED, got %s", resp.Code)
		}
	})

	t.Run("created", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodPost, "/v1/rules", validRuleBody, true)
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var r rules.Rule
		if err := json.NewDecoder(rr.Body).Decode(&r); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if r.ID == "" || r.Priority != rules.DefaultPriority || r.Metadata.Version != rules.DefaultVersion {
			t.Errorf("Expected defaults to be filled, got %+v", r)
		}
	})

	t.Run("invalid rule", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodPost, "/v1/rules", `{"name":"","category":"transaction"}`, true)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", rr.Code)
		}
		resp := decodeError(t, rr)
		if resp.Code != ErrCodeValidation {
			t.Errorf("Expected VALIDATION_ERROR, got %s", resp.Code)
		}
		if len(resp.Details) != 3 {
			t.Errorf("Expected 3 problems, got %v", resp.Details)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rr := doRequest(t, h, http.MethodPost, "/v1/rules", `{"name":`, true)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", rr.Code)
		}
		if resp := decodeError(t, rr); resp.Code != ErrCodeInvalidJSON {
			t.Errorf("Expected INVALID_JSON, got %s", resp.Code)
		}
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
		rr := doRequest(t, h, http.MethodPost, "/v1/rules", body, true)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("Expected status 413, got %d", rr.Code)
		}
	})
}

func TestUpdateAndToggleRule(t *testing.T) {
	_, h := newTestServer(t, Options{})

	rr := doRequest(t, h, http.MethodPut, "/v1/rules/tax-reporting", `{"priority": 65}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var r rules.Rule
	if err := json.NewDecoder(rr.Body).Decode(&r); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if r.Priority != 65 || r.Metadata.Version != "1.0.1" {
		t.Errorf("Expected priority 65 and version 1.0.1, got %d %s", r.Priority, r.Metadata.Version)
	}

	rr = doRequest(t, h, http.MethodPut, "/v1/rules/tax-reporting", `{"priority": 101}`, true)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for out of range priority, got %d", rr.Code)
	}

	rr = doRequest(t, h, http.MethodPatch, "/v1/rules/tax-reporting/toggle", `{"enabled": false}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if err := json.NewDecoder(rr.Body).Decode(&r); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if r.Enabled {
		t.Error("Expected rule to be disabled")
	}

	rr = doRequest(t, h, http.MethodPatch, "/v1/rules/tax-reporting/toggle", `{}`, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Fields["enabled"] == "" {
		t.Error("Expected field error for enabled")
	}

	rr = doRequest(t, h, http.MethodPatch, "/v1/rules/missing/toggle", `{"enabled": true}`, true)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestEvaluateInvoice(t *testing.T) {
	_, h := newTestServer(t, Options{})

	body := `{"id":"inv-1","amount":500,"customerType":"recurring","kycStatus":"verified","paymentMethod":"wallet"}`
	rr := doRequest(t, h, http.MethodPost, "/v1/invoices/evaluate", body, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rep engine.Report
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if rep.InvoiceID != "inv-1" || rep.WalletMode != "persistent" {
		t.Errorf("unexpected report: invoice=%s walletMode=%s", rep.InvoiceID, rep.WalletMode)
	}
	if len(rep.EvaluationResults) == 0 {
		t.Error("Expected evaluation results")
	}

	rr = doRequest(t, h, http.MethodPost, "/v1/invoices/evaluate", `{"amount": 10}`, false)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != ErrCodeMissingField {
		t.Errorf("Expected MISSING_FIELD, got %s", resp.Code)
	}
}

func TestDeployAndDeleteConflict(t *testing.T) {
	_, h := newTestServer(t, Options{})

	rr := doRequest(t, h, http.MethodPost, "/v1/deployments", `{"ruleIds":["aml-screening"],"chain":"evm"}`, false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rr.Code)
	}

	rr = doRequest(t, h, http.MethodPost, "/v1/deployments", `{"ruleIds":["aml-screening"],"chain":"evm","network":"sepolia"}`, true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var res engine.DeploymentResult
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.HasPrefix(res.Address, "0x") || res.Network != "sepolia" {
		t.Errorf("unexpected deployment: %+v", res.Receipt)
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/deployments", "", false)
	var deps listDeploymentsResponse
	if err := json.NewDecoder(rr.Body).Decode(&deps); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if deps.Count != 1 || deps.Deployments[0].Address != res.Address {
		t.Errorf("Expected the deployment to be listed, got %+v", deps)
	}

	rr = doRequest(t, h, http.MethodDelete, "/v1/rules/aml-screening", "", true)
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != ErrCodeConflict {
		t.Errorf("Expected CONFLICT, got %s", resp.Code)
	}

	rr = doRequest(t, h, http.MethodDelete, "/v1/rules/tax-reporting", "", true)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	rr = doRequest(t, h, http.MethodGet, "/v1/rules/tax-reporting", "", false)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected deleted rule to be gone, got %d", rr.Code)
	}
}

func TestCompile(t *testing.T) {
	_, h := newTestServer(t, Options{})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  ErrorCode
	}{
		{"evm", `{"ruleIds":["kyc-required-above-threshold"],"chain":"evm"}`, http.StatusOK, ""},
		{"solana", `{"ruleIds":["kyc-required-above-threshold"],"chain":"solana","network":"devnet"}`, http.StatusOK, ""},
		{"unknown chain", `{"ruleIds":["kyc-required-above-threshold"],"chain":"cosmos"}`, http.StatusBadRequest, ErrCodeUnsupportedTarget},
		{"unknown rule", `{"ruleIds":["nope"],"chain":"evm"}`, http.StatusNotFound, ErrCodeNotFound},
		{"missing fields", `{}`, http.StatusBadRequest, ErrCodeMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodPost, "/v1/compile", tt.body, false)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantErr != "" {
				if resp := decodeError(t, rr); resp.Code != tt.wantErr {
					t.Errorf("Expected %s, got %s", tt.wantErr, resp.Code)
				}
				return
			}
			var c compiler.Compiled
			if err := json.NewDecoder(rr.Body).Decode(&c); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if c.Code == "" {
				t.Error("Expected generated code")
			}
		})
	}

	// compiling never records a deployment
	rr := doRequest(t, h, http.MethodGet, "/v1/deployments", "", false)
	if !strings.Contains(rr.Body.String(), `"count":0`) {
		t.Errorf("Expected no deployments, got %s", rr.Body.String())
	}
}

func TestAuditLog(t *testing.T) {
	_, h := newTestServer(t, Options{})

	doRequest(t, h, http.MethodPost, "/v1/rules", validRuleBody, true)
	doRequest(t, h, http.MethodPost, "/v1/invoices/evaluate", `{"id":"inv-a","amount":1}`, false)

	rr := doRequest(t, h, http.MethodGet, "/v1/audit", "", false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rr.Code)
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/audit", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var resp listAuditResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("Expected 2 entries, got %d", resp.Count)
	}
	created := resp.Entries[0]
	if created.Event != "rule_created" || !created.Verified {
		t.Errorf("unexpected first entry: %+v", created)
	}
	if created.Actor != "admin:"+auth.Fingerprint(testAdminKey) {
		t.Errorf("Expected admin actor, got %q", created.Actor)
	}
	if created.RequestID == "" {
		t.Error("Expected request id to be recorded")
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/audit?event=invoice_evaluation&format=jsonl", "", true)
	if ct := rr.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Expected ndjson, got %s", ct)
	}
	if lines := strings.Count(rr.Body.String(), "\n"); lines != 1 {
		t.Errorf("Expected 1 line, got %d", lines)
	}

	rr = doRequest(t, h, http.MethodGet, "/v1/audit?format=csv", "", true)
	if !strings.HasPrefix(rr.Body.String(), "ID,Timestamp,Event,Actor") {
		t.Errorf("Expected CSV header, got %q", rr.Body.String())
	}

	for _, q := range []string{"limit=0", "limit=abc", "since=yesterday", "format=xml"} {
		rr = doRequest(t, h, http.MethodGet, "/v1/audit?"+q, "", true)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", q, rr.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, Options{})

	rr := doRequest(t, h, http.MethodGet, "/v1/metrics", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var m engine.Metrics
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if m.RulesLoaded != 9 || !m.Initialized {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestRateLimit(t *testing.T) {
	_, h := newTestServer(t, Options{RateLimitPerIP: 2})

	for i := 0; i < 2; i++ {
		if rr := doRequest(t, h, http.MethodGet, "/healthz", "", false); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	rr := doRequest(t, h, http.MethodGet, "/healthz", "", false)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != ErrCodeRateLimited {
		t.Errorf("Expected RATE_LIMITED, got %s", resp.Code)
	}
}

func TestPersistentStoreIsShared(t *testing.T) {
	st := store.NewMemoryStore()
	e := testutil.NewEngine(t, st)
	_, h := newTestServer(t, Options{Engine: e})

	doRequest(t, h, http.MethodPost, "/v1/rules", validRuleBody, true)
	list, err := st.ListRules(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 10 {
		t.Errorf("Expected 10 stored rules, got %d", len(list))
	}
}
