package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPrinter_Rules(t *testing.T) {
	list := rules.CatalogRules()[:2]

	var buf bytes.Buffer
	if err := (Printer{W: &buf, Format: FormatJSON}).PrintRules(list); err != nil {
		t.Fatalf("PrintRules failed: %v", err)
	}
	var decoded struct {
		Rules []rules.Rule `json:"rules"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded.Rules) != 2 {
		t.Errorf("Expected 2 rules, got %d", len(decoded.Rules))
	}

	buf.Reset()
	if err := (Printer{W: &buf, Format: FormatTable}).PrintRules(list); err != nil {
		t.Fatalf("PrintRules failed: %v", err)
	}
	if !strings.Contains(buf.String(), list[0].ID) {
		t.Errorf("table output is missing %s:\n%s", list[0].ID, buf.String())
	}

	buf.Reset()
	if err := (Printer{W: &buf, Format: FormatYAML}).PrintRule(&list[0]); err != nil {
		t.Fatalf("PrintRule failed: %v", err)
	}
	if !strings.Contains(buf.String(), "id: "+list[0].ID) {
		t.Errorf("yaml output is missing id:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a very long rule name", 10); got != "a very ..." {
		t.Errorf("truncate() = %q", got)
	}
}

func TestResolveProfile(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvAPIKey, "")

	if _, err := ResolveProfile("", "", ""); err == nil {
		t.Fatal("Expected error without any base url")
	}

	if err := InitConfig(); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	p, err := ResolveProfile("", "", "")
	if err != nil {
		t.Fatalf("ResolveProfile failed: %v", err)
	}
	if p.BaseURL != "http://localhost:8080" || p.APIKey != "admin-123" {
		t.Errorf("unexpected profile: %+v", p)
	}

	t.Setenv(EnvAPIKey, "from-env")
	p, _ = ResolveProfile("local", "http://flag:9000", "")
	if p.BaseURL != "http://flag:9000" || p.APIKey != "from-env" {
		t.Errorf("flags and env must override the file, got %+v", p)
	}

	p, _ = ResolveProfile("local", "", "from-flag")
	if p.APIKey != "from-flag" {
		t.Errorf("flag must override env, got %q", p.APIKey)
	}
}
