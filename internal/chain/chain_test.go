package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TimurManjosov/chainrules/internal/compiler"
)

func rpcServer(t *testing.T, handler func(method string) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("Expected jsonrpc 2.0, got %q", req.JSONRPC)
		}
		status, body := handler(req.Method)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCConnector_Connect(t *testing.T) {
	var seen []string
	srv := rpcServer(t, func(method string) (int, string) {
		seen = append(seen, method)
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"ok"}`
	})

	c := NewRPCConnector(map[string]string{TargetEVM: srv.URL, TargetSolana: srv.URL}, time.Second)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if strings.Join(seen, ",") != "eth_chainId,getHealth" {
		t.Errorf("unexpected probe order: %v", seen)
	}
}

func TestRPCConnector_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rpc error", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"node is behind"}}`},
		{"http error", http.StatusBadGateway, "bad gateway"},
		{"garbage", http.StatusOK, "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rpcServer(t, func(string) (int, string) { return tt.status, tt.body })
			c := NewRPCConnector(map[string]string{TargetSolana: srv.URL}, time.Second)
			err := c.Connect(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "solana:") {
				t.Errorf("error should name the target: %v", err)
			}
		})
	}
}

func TestRPCConnector_NotConfigured(t *testing.T) {
	c := NewRPCConnector(map[string]string{TargetEVM: ""}, time.Second)
	if err := c.Connect(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestEVMDeployer(t *testing.T) {
	c := &compiler.Compiled{Artifacts: compiler.Artifacts{Chain: TargetEVM, GasEstimate: 1_004_200}}
	r, err := EVMDeployer{}.Deploy(context.Background(), c, compiler.Options{})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if len(r.Address) != 42 || !strings.HasPrefix(r.Address, "0x") {
		t.Errorf("unexpected address %q", r.Address)
	}
	if len(r.TransactionHash) != 66 {
		t.Errorf("unexpected tx hash %q", r.TransactionHash)
	}
	if r.GasUsed != 1_004_200 {
		t.Errorf("Expected gas 1004200, got %d", r.GasUsed)
	}
	if r.BlockNumber >= 1_000_000 {
		t.Errorf("block number out of range: %d", r.BlockNumber)
	}
}

func TestSolanaDeployer(t *testing.T) {
	c := &compiler.Compiled{Artifacts: compiler.Artifacts{Chain: TargetSolana, ProgramID: "BREXYZ"}}
	r, err := SolanaDeployer{}.Deploy(context.Background(), c, compiler.Options{})
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if r.Address != "BREXYZ" {
		t.Errorf("Expected program id as address, got %q", r.Address)
	}
	if len(r.TransactionHash) != 88 {
		t.Errorf("Expected 88-char signature, got %d", len(r.TransactionHash))
	}
	if r.ComputeUnits != SolanaComputeUnits {
		t.Errorf("Expected %d compute units, got %d", SolanaComputeUnits, r.ComputeUnits)
	}

	if _, err := (SolanaDeployer{}).Deploy(context.Background(), &compiler.Compiled{}, compiler.Options{}); err == nil {
		t.Error("expected error without program id")
	}
}

func TestDeployer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, d := range DefaultDeployers() {
		if _, err := d.Deploy(ctx, &compiler.Compiled{}, compiler.Options{}); !errors.Is(err, context.Canceled) {
			t.Errorf("%s: Expected context.Canceled, got %v", d.Target(), err)
		}
	}
}
