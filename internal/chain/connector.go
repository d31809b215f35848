// Package chain talks to the ledgers rule sets are deployed to.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// Target identifiers shared with the compiler adapters.
const (
	TargetEVM    = "evm"
	TargetSolana = "solana"
)

// ErrNotConfigured is returned by Connect when no endpoint is configured.
var ErrNotConfigured = errors.New("no chain endpoints configured")

// Connector establishes connectivity to the configured chains.
type Connector interface {
	Connect(ctx context.Context) error
}

// healthMethods maps a target to the JSON-RPC method used to probe it.
var healthMethods = map[string]string{
	TargetEVM:    "eth_chainId",
	TargetSolana: "getHealth",
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCConnector probes one JSON-RPC endpoint per target.
type RPCConnector struct {
	endpoints map[string]string
	client    *http.Client
}

// NewRPCConnector builds a connector. Blank endpoints are ignored.
func NewRPCConnector(endpoints map[string]string, timeout time.Duration) *RPCConnector {
	eps := make(map[string]string, len(endpoints))
	for target, url := range endpoints {
		if url != "" {
			eps[target] = url
		}
	}
	return &RPCConnector{
		endpoints: eps,
		client:    &http.Client{Timeout: timeout},
	}
}

// Connect probes every endpoint and returns the first failure.
func (c *RPCConnector) Connect(ctx context.Context) error {
	if len(c.endpoints) == 0 {
		return ErrNotConfigured
	}
	targets := make([]string, 0, len(c.endpoints))
	for t := range c.endpoints {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	for _, target := range targets {
		method, ok := healthMethods[target]
		if !ok {
			return fmt.Errorf("%s: no health probe for target", target)
		}
		if _, err := c.call(ctx, c.endpoints[target], method); err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
	}
	return nil
}

func (c *RPCConnector) call(ctx context.Context, url, method string) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: []any{}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, bytes.TrimSpace(b))
	}
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%s: rpc error %d: %s", method, out.Error.Code, out.Error.Message)
	}
	return out.Result, nil
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) error

func (f ConnectorFunc) Connect(ctx context.Context) error { return f(ctx) }
