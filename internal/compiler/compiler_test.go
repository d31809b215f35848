package compiler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

func sampleRules() []rules.Rule {
	return []rules.Rule{
		{
			ID: "adaptive-default", Name: "Adaptive Wallet Default", Category: rules.CategoryWallet, Priority: 10,
			Conditions: []rules.Condition{{Field: "invoice.amount", Operator: rules.OpGreater, Value: 0}},
			Actions:    []rules.Action{{Type: rules.ActionSetWalletMode}},
		},
		{
			ID: "kyc-required-above-threshold", Name: "KYC Compliance Check", Category: rules.CategoryCompliance, Priority: 95,
			Conditions: []rules.Condition{
				{Field: "invoice.amount", Operator: rules.OpGreater, Value: 10000},
				{Field: "customer.kycStatus", Operator: rules.OpIn, Value: []any{"pending", "failed"}},
			},
			Actions: []rules.Action{{Type: rules.ActionRequireAttestation}},
		},
	}
}

// recordingAdapter records which methods were called.
type recordingAdapter struct {
	target string
	calls  []string
	genErr error
}

func (r *recordingAdapter) Target() string { return r.target }

func (r *recordingAdapter) GenerateContract(groups []rules.Group, _ Options) (string, error) {
	r.calls = append(r.calls, "generate")
	if r.genErr != nil {
		return "", r.genErr
	}
	return "code", nil
}

func (r *recordingAdapter) Optimize(code string) (string, error) {
	r.calls = append(r.calls, "optimize")
	return code + "+opt", nil
}

func (r *recordingAdapter) BuildArtifacts(code string, _ Options) (Artifacts, error) {
	r.calls = append(r.calls, "artifacts")
	return Artifacts{Chain: r.target}, nil
}

func TestCompileRules_UnsupportedTargetFailsFast(t *testing.T) {
	rec := &recordingAdapter{target: "evm"}
	c := New(nil, rec)

	out, err := c.CompileRules(context.Background(), sampleRules(), "unknown-chain", Options{})
	if out != nil {
		t.Fatalf("expected no artifacts, got %+v", out)
	}
	var ute *UnsupportedTargetError
	if !errors.As(err, &ute) || ute.Target != "unknown-chain" {
		t.Fatalf("expected UnsupportedTargetError, got %v", err)
	}
	if !errors.Is(err, ErrUnsupportedTarget) {
		t.Fatal("expected errors.Is(err, ErrUnsupportedTarget)")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("adapter must not be called, got %v", rec.calls)
	}
}

func TestCompileRules_PipelineOrder(t *testing.T) {
	rec := &recordingAdapter{target: "fake"}
	c := New(nil, rec)

	out, err := c.CompileRules(context.Background(), sampleRules(), "fake", Options{})
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}
	if got := strings.Join(rec.calls, ","); got != "generate,optimize,artifacts" {
		t.Fatalf("calls: got %s", got)
	}
	if out.Code != "code+opt" {
		t.Fatalf("code: got %q", out.Code)
	}
	if out.Metadata.RuleCount != 2 || out.Metadata.Chain != "fake" || out.Metadata.Compiler != Version {
		t.Fatalf("metadata: %+v", out.Metadata)
	}
}

func TestCompileRules_AdapterErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingAdapter{target: "fake", genErr: boom}
	c := New(nil, rec)

	_, err := c.CompileRules(context.Background(), sampleRules(), "fake", Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("pipeline should stop after generate, got %v", rec.calls)
	}
}

func TestCompiler_Targets(t *testing.T) {
	c := NewDefault(nil)
	got := strings.Join(c.Targets(), ",")
	if got != "evm,solana" {
		t.Fatalf("targets: got %s", got)
	}
	if !c.Supports(TargetEVM) || c.Supports("tron") {
		t.Fatal("Supports mismatch")
	}
}

func TestEVMAdapter_Contract(t *testing.T) {
	c := NewDefault(nil)
	rs := sampleRules()
	rs[0].ID = "6f1c-uuid-like"

	out, err := c.CompileRules(context.Background(), rs, TargetEVM, Options{Network: "sepolia"})
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}

	for _, want := range []string{
		"contract InvoiceWalletRules {",
		"    // COMPLIANCE Rules\n",
		"function evaluate_kyc_required_above_threshold(bytes calldata data) internal pure returns (bool)",
		"        // KYC Compliance Check\n",
		"        // Priority: 95\n",
		"        // Check: invoice.amount greater 10000\n",
		"        // Check: customer.kycStatus in pending,failed\n",
		"return true; // Placeholder",
		"function evaluate_6f1c_uuid_like(",
	} {
		if !strings.Contains(out.Code, want) {
			t.Errorf("code missing %q", want)
		}
	}
	if strings.Index(out.Code, "COMPLIANCE Rules") > strings.Index(out.Code, "WALLET Rules") {
		t.Error("higher priority category should come first")
	}

	a := out.Artifacts
	if a.Chain != TargetEVM || len(a.ABI) != 3 || a.Bytecode == "" {
		t.Fatalf("artifacts: %+v", a)
	}
	if a.GasEstimate != EstimateGas(out.Code) {
		t.Fatalf("gas: got %d, want %d", a.GasEstimate, EstimateGas(out.Code))
	}
	if !strings.Contains(a.DeploymentScript, "sepolia") {
		t.Fatal("deploy script should name the network")
	}
}

func TestEVMAdapter_Optimize(t *testing.T) {
	got, err := NewEVMAdapter().Optimize("function f(string memory s) { total += amount; }")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	want := "function f(bytes32 s) { unchecked { total += amount; } }"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEstimateGas(t *testing.T) {
	if got := EstimateGas("a\nb\nc"); got != 1_000_300 {
		t.Fatalf("got %d, want 1000300", got)
	}
}

func TestSolanaAdapter_Program(t *testing.T) {
	sol := &SolanaAdapter{NewProgramID: func() string { return "BREFIXED" }}
	c := New(nil, sol)

	out, err := c.CompileRules(context.Background(), sampleRules(), TargetSolana, Options{})
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}
	if !strings.HasPrefix(out.Code, "use borsh::{BorshDeserialize, BorshSerialize};\n") {
		t.Error("optimized program should start with the borsh import")
	}
	if !strings.Contains(out.Code, "#[program]\n#[compute_budget(200_000)]") {
		t.Error("compute budget attribute missing")
	}
	if !strings.Contains(out.Code, "fn evaluate_kyc_required_above_threshold(data: &Vec<u8>) -> Result<bool>") {
		t.Error("rule stub missing")
	}
	if !strings.Contains(out.Code, "Ok(true) // Placeholder") {
		t.Error("placeholder body missing")
	}
	a := out.Artifacts
	if a.ProgramID != "BREFIXED" || a.IDL == nil || len(a.IDL.Instructions) != 2 {
		t.Fatalf("artifacts: %+v", a)
	}
	if !strings.Contains(a.DeploymentScript, "Solana mainnet") {
		t.Fatal("default network should be mainnet")
	}
}

func TestGenerateContract_CommentsStayOnOneLine(t *testing.T) {
	rs := []rules.Rule{{
		ID: "r1", Name: "ok\n    function pwn() public {}", Category: rules.CategoryTransaction, Priority: 50,
		Conditions: []rules.Condition{{Field: "invoice.amount\r\nselfdestruct(x);", Operator: rules.OpGreater, Value: "1\nlet y = 2;"}},
		Actions:    []rules.Action{{Type: rules.ActionLog}},
	}}
	groups := rules.MergeRules(rs)

	for _, a := range []Adapter{NewEVMAdapter(), NewSolanaAdapter()} {
		t.Run(a.Target(), func(t *testing.T) {
			code, err := a.GenerateContract(groups, Options{})
			if err != nil {
				t.Fatalf("GenerateContract: %v", err)
			}
			for _, line := range strings.Split(code, "\n") {
				trimmed := strings.TrimSpace(line)
				for _, bad := range []string{"function pwn", "selfdestruct", "let y"} {
					if strings.Contains(trimmed, bad) && !strings.HasPrefix(trimmed, "//") {
						t.Errorf("rule text escaped its comment: %q", line)
					}
				}
			}
			if !strings.Contains(code, "        // ok     function pwn() public {}\n") {
				t.Errorf("expected the name on one comment line, got:\n%s", code)
			}
		})
	}
}

func TestGenerateContract_UniqueFunctionNames(t *testing.T) {
	rs := sampleRules()
	rs[0].ID = "a-b"
	rs[1].ID = "a_b"
	groups := rules.MergeRules(rs)

	for _, a := range []Adapter{NewEVMAdapter(), NewSolanaAdapter()} {
		t.Run(a.Target(), func(t *testing.T) {
			code, err := a.GenerateContract(groups, Options{})
			if err != nil {
				t.Fatalf("GenerateContract: %v", err)
			}
			if n := strings.Count(code, "evaluate_a_b("); n != 1 {
				t.Errorf("Expected one plain evaluate_a_b, got %d", n)
			}
			if n := strings.Count(code, "evaluate_a_b_"); n != 1 {
				t.Errorf("Expected one hash-suffixed name, got %d", n)
			}
		})
	}
}

func TestFunctionNames_Deterministic(t *testing.T) {
	groups := rules.MergeRules([]rules.Rule{
		{ID: "x.y", Priority: 10, Category: rules.CategoryWallet},
		{ID: "x-y", Priority: 20, Category: rules.CategoryWallet},
		{ID: "x_y", Priority: 30, Category: rules.CategoryWallet},
	})
	first, second := functionNames(groups), functionNames(groups)
	seen := map[string]bool{}
	for id, name := range first {
		if second[id] != name {
			t.Errorf("name for %s changed between runs: %s vs %s", id, name, second[id])
		}
		if seen[name] {
			t.Errorf("duplicate function name %s", name)
		}
		seen[name] = true
	}
	if first["x_y"] != "x_y" {
		t.Errorf("Expected the highest priority id to keep its plain name, got %s", first["x_y"])
	}
}

func TestRandomProgramID(t *testing.T) {
	id := RandomProgramID()
	if len(id) != len(programIDPrefix)+programIDLength || !strings.HasPrefix(id, programIDPrefix) {
		t.Fatalf("unexpected id %q", id)
	}
	for _, r := range id[len(programIDPrefix):] {
		if !strings.ContainsRune(programIDAlphabet, r) {
			t.Fatalf("unexpected rune %q in %q", r, id)
		}
	}
	if RandomProgramID() == id {
		t.Fatal("ids should differ")
	}
}
