package evaluator

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

func TestOperatorHandlers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		op      rules.Operator
		left    any
		right   any
		want    bool
		wantErr bool
	}{
		{name: "equals string", op: rules.OpEquals, left: "recurring", right: "recurring", want: true},
		{name: "equals string mismatch", op: rules.OpEquals, left: "new", right: "recurring", want: false},
		{name: "equals int float", op: rules.OpEquals, left: 10.0, right: 10, want: true},
		{name: "equals strict kinds", op: rules.OpEquals, left: "10", right: 10, want: false},
		{name: "equals bool", op: rules.OpEquals, left: true, right: true, want: true},
		{name: "greater", op: rules.OpGreater, left: 15000.0, right: 10000, want: true},
		{name: "greater equal boundary", op: rules.OpGreater, left: 10000.0, right: 10000, want: false},
		{name: "greater json number", op: rules.OpGreater, left: json.Number("12"), right: 10, want: true},
		{name: "greater non numeric", op: rules.OpGreater, left: "abc", right: 1, want: false},
		{name: "greater numeric string literal", op: rules.OpGreater, left: 100000.0, right: "5000", want: true},
		{name: "greater numeric string both", op: rules.OpGreater, left: "7.5", right: " 7 ", want: true},
		{name: "greater empty string", op: rules.OpGreater, left: 1.0, right: "", want: false},
		{name: "less numeric string literal", op: rules.OpLess, left: 100.0, right: "5000", want: true},
		{name: "equals numeric string stays strict", op: rules.OpEquals, left: 5000.0, right: "5000", want: false},
		{name: "between string bounds", op: rules.OpBetween, left: 5.0, right: []any{"1", "10"}, want: true},
		{name: "between string value", op: rules.OpBetween, left: "12", right: []any{1, 10}, want: false},
		{name: "less", op: rules.OpLess, left: 3, right: 4.5, want: true},
		{name: "less times", op: rules.OpLess, left: now, right: now.Add(time.Hour), want: true},
		{name: "contains substring", op: rules.OpContains, left: "premium_plan", right: "premium", want: true},
		{name: "contains sequence", op: rules.OpContains, left: []any{"a", "b"}, right: "b", want: true},
		{name: "contains sequence miss", op: rules.OpContains, left: []string{"a"}, right: "c", want: false},
		{name: "contains non string", op: rules.OpContains, left: 42, right: "4", want: false},
		{name: "in list", op: rules.OpIn, left: "US", right: []any{"US", "CA"}, want: true},
		{name: "in list miss", op: rules.OpIn, left: "UK", right: []string{"US", "CA"}, want: false},
		{name: "in non sequence", op: rules.OpIn, left: "US", right: "US", want: false},
		{name: "between inside", op: rules.OpBetween, left: 5.0, right: []any{1, 10}, want: true},
		{name: "between inclusive", op: rules.OpBetween, left: 10, right: []any{1, 10}, want: true},
		{name: "between outside", op: rules.OpBetween, left: 11, right: []float64{1, 10}, want: false},
		{name: "between malformed", op: rules.OpBetween, left: 5, right: []any{1}, wantErr: true},
		{name: "between non numeric bounds", op: rules.OpBetween, left: 5, right: []any{"a", "b"}, wantErr: true},
		{name: "regex", op: rules.OpRegex, left: "user@example.com", right: `^[^@]+@example\.com$`, want: true},
		{name: "regex number form", op: rules.OpRegex, left: 12345, right: `^\d+$`, want: true},
		{name: "regex invalid", op: rules.OpRegex, left: "abc", right: "(", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, ok := getOperatorHandler(tt.op)
			if !ok {
				t.Fatalf("handler not found for %q", tt.op)
			}
			got, err := handler.Check(tt.left, tt.right)
			if tt.wantErr {
				if !errors.Is(err, ErrOperand) {
					t.Fatalf("expected ErrOperand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetOperatorHandler_Unknown(t *testing.T) {
	if _, ok := getOperatorHandler("approximately"); ok {
		t.Fatal("unexpected handler for unknown operator")
	}
}

func TestGetCompiledRegex_Caches(t *testing.T) {
	a, err := getCompiledRegex(`^x+$`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := getCompiledRegex(`^x+$`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if a != b {
		t.Fatal("expected the cached *regexp.Regexp to be reused")
	}
}
