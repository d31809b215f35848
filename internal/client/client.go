// Package client is an HTTP client for the chainrules API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TimurManjosov/chainrules/internal/audit"
	"github.com/TimurManjosov/chainrules/internal/compiler"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/TimurManjosov/chainrules/internal/store"
)

// Client is an HTTP client for the chainrules API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
	Body       string   `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, strings.TrimSpace(e.Body))
	}
	msg := fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		_ = json.Unmarshal(bodyBytes, apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RuleQuery filters ListRules. Empty fields are not sent.
type RuleQuery struct {
	Category string
	Chain    string
	Enabled  *bool
}

// ListRules retrieves rules matching q
func (c *Client) ListRules(ctx context.Context, q RuleQuery) ([]rules.Rule, error) {
	query := url.Values{}
	if q.Category != "" {
		query.Set("category", q.Category)
	}
	if q.Chain != "" {
		query.Set("chain", q.Chain)
	}
	if q.Enabled != nil {
		query.Set("enabled", strconv.FormatBool(*q.Enabled))
	}
	var result struct {
		Rules []rules.Rule `json:"rules"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/rules", query, nil, &result); err != nil {
		return nil, err
	}
	return result.Rules, nil
}

// GetRule retrieves a single rule by id
func (c *Client) GetRule(ctx context.Context, id string) (*rules.Rule, error) {
	var r rules.Rule
	if err := c.do(ctx, http.MethodGet, "/v1/rules/"+url.PathEscape(id), nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule creates a custom rule and returns it with its assigned id
func (c *Client) CreateRule(ctx context.Context, cfg rules.RuleConfig) (*rules.Rule, error) {
	var r rules.Rule
	if err := c.do(ctx, http.MethodPost, "/v1/rules", nil, cfg, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRule merges patch into an existing rule
func (c *Client) UpdateRule(ctx context.Context, id string, patch engine.RulePatch) (*rules.Rule, error) {
	var r rules.Rule
	if err := c.do(ctx, http.MethodPut, "/v1/rules/"+url.PathEscape(id), nil, patch, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ToggleRule enables or disables a rule
func (c *Client) ToggleRule(ctx context.Context, id string, enabled bool) (*rules.Rule, error) {
	var r rules.Rule
	in := map[string]bool{"enabled": enabled}
	if err := c.do(ctx, http.MethodPatch, "/v1/rules/"+url.PathEscape(id)+"/toggle", nil, in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRule deletes a rule
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/rules/"+url.PathEscape(id), nil, nil, nil)
}

// EvaluateInvoice runs the engine against an invoice payload
func (c *Client) EvaluateInvoice(ctx context.Context, p engine.InvoicePayload) (*engine.Report, error) {
	var rep engine.Report
	if err := c.do(ctx, http.MethodPost, "/v1/invoices/evaluate", nil, p, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// TargetRequest selects rules and a chain for Compile and Deploy.
type TargetRequest struct {
	RuleIDs []string       `json:"ruleIds"`
	Chain   string         `json:"chain"`
	Network string         `json:"network,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Compile compiles rules without deploying them
func (c *Client) Compile(ctx context.Context, req TargetRequest) (*compiler.Compiled, error) {
	var out compiler.Compiled
	if err := c.do(ctx, http.MethodPost, "/v1/compile", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deploy compiles and deploys rules
func (c *Client) Deploy(ctx context.Context, req TargetRequest) (*engine.DeploymentResult, error) {
	var out engine.DeploymentResult
	if err := c.do(ctx, http.MethodPost, "/v1/deployments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeployments retrieves recorded deployments
func (c *Client) ListDeployments(ctx context.Context) ([]store.Deployment, error) {
	var result struct {
		Deployments []store.Deployment `json:"deployments"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/deployments", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Deployments, nil
}

// AuditEntry is an audit entry as served by the API.
type AuditEntry struct {
	audit.Entry
	Verified bool `json:"verified"`
}

// AuditLog retrieves audit entries matching f
func (c *Client) AuditLog(ctx context.Context, f audit.Filter) ([]AuditEntry, error) {
	query := url.Values{}
	if f.Event != "" {
		query.Set("event", string(f.Event))
	}
	if !f.Since.IsZero() {
		query.Set("since", f.Since.Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		query.Set("until", f.Until.Format(time.RFC3339))
	}
	if f.Limit > 0 {
		query.Set("limit", strconv.Itoa(f.Limit))
	}
	var result struct {
		Entries []AuditEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/audit", query, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// Capabilities retrieves what the server supports
func (c *Client) Capabilities(ctx context.Context) (*engine.Capabilities, error) {
	var caps engine.Capabilities
	if err := c.do(ctx, http.MethodGet, "/v1/capabilities", nil, nil, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}
