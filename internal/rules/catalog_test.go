package rules

import "testing"

func TestDefaultCatalog_Sections(t *testing.T) {
	sections := DefaultCatalog()
	want := map[string][]string{
		"compliance": {"kyc-required-above-threshold", "aml-screening", "tax-reporting"},
		"walletMode": {"ephemeral-for-high-risk", "persistent-for-trusted", "adaptive-default"},
		"security":   {"daily-spend-limit", "velocity-check", "geo-restriction"},
	}
	if len(sections) != len(want) {
		t.Fatalf("sections: got %d, want %d", len(sections), len(want))
	}
	for _, s := range sections {
		ids := want[s.Name]
		if len(s.Rules) != len(ids) {
			t.Fatalf("%s: got %d rules, want %d", s.Name, len(s.Rules), len(ids))
		}
		for i, r := range s.Rules {
			if r.ID != ids[i] {
				t.Errorf("%s[%d]: got %q, want %q", s.Name, i, r.ID, ids[i])
			}
			if !ValidateRule(r).Valid {
				t.Errorf("%s: invalid: %v", r.ID, ValidateRule(r).Errors)
			}
		}
	}
}

func TestDefaultCatalog_Fixtures(t *testing.T) {
	byID := make(map[string]Rule)
	for _, r := range CatalogRules() {
		byID[r.ID] = r
	}

	tests := []struct {
		id       string
		field    string
		operator Operator
		value    any
	}{
		{id: "kyc-required-above-threshold", field: "invoice.amount", operator: OpGreater, value: 10000},
		{id: "aml-screening", field: "customer.riskScore", operator: OpGreater, value: 70},
		{id: "tax-reporting", field: "invoice.amount", operator: OpGreater, value: 600},
		{id: "ephemeral-for-high-risk", field: "customer.riskScore", operator: OpGreater, value: 70},
		{id: "persistent-for-trusted", field: "customer.type", operator: OpEquals, value: "recurring"},
		{id: "adaptive-default", field: "invoice.amount", operator: OpGreater, value: 0},
		{id: "daily-spend-limit", field: "wallet.dailySpend", operator: OpGreater, value: "wallet.dailyLimit"},
		{id: "velocity-check", field: "wallet.transactionsPerHour", operator: OpGreater, value: 10},
	}

	for _, tt := range tests {
		r, ok := byID[tt.id]
		if !ok {
			t.Fatalf("missing catalog rule %q", tt.id)
		}
		c := r.Conditions[0]
		if c.Field != tt.field || c.Operator != tt.operator || c.Value != tt.value {
			t.Errorf("%s: got %s %s %v, want %s %s %v", tt.id, c.Field, c.Operator, c.Value, tt.field, tt.operator, tt.value)
		}
	}

	geo := byID["geo-restriction"]
	if !geo.Exclusive || geo.Priority != 100 {
		t.Errorf("geo-restriction: exclusive=%v priority=%d", geo.Exclusive, geo.Priority)
	}
	if list, ok := geo.Conditions[0].Value.([]any); !ok || len(list) != 1 || list[0] != "SANCTIONED_COUNTRIES" {
		t.Errorf("geo-restriction value: got %#v", geo.Conditions[0].Value)
	}
	if byID["ephemeral-for-high-risk"].Actions[0].Param("mode") != "ephemeral" {
		t.Error("ephemeral rule should set mode ephemeral")
	}
}

func TestDefaultCatalog_ReturnsCopies(t *testing.T) {
	first := DefaultCatalog()
	first[0].Rules[0].Name = "mutated"
	first[0].Rules[0].Chains[0] = "evm"

	second := DefaultCatalog()
	if second[0].Rules[0].Name == "mutated" || second[0].Rules[0].Chains[0] != ChainAll {
		t.Fatal("DefaultCatalog leaked shared state between calls")
	}
}

func TestParseCatalog_RejectsDuplicates(t *testing.T) {
	doc := []byte(`
compliance:
  - id: dup
    name: A
    category: compliance
    conditions: [{field: invoice.amount, operator: greater, value: 1}]
    actions: [{type: log}]
security:
  - id: dup
    name: B
    category: security
    conditions: [{field: invoice.amount, operator: greater, value: 1}]
    actions: [{type: log}]
`)
	if _, err := ParseCatalog(doc); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
