package rules

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Section is a named subset of the built-in catalog.
type Section struct {
	Name  string `json:"name" yaml:"name"`
	Rules []Rule `json:"rules" yaml:"rules"`
}

type catalogFile struct {
	Compliance []Rule `yaml:"compliance"`
	WalletMode []Rule `yaml:"walletMode"`
	Security   []Rule `yaml:"security"`
}

var loadCatalog = sync.OnceValues(func() ([]Section, error) {
	return ParseCatalog(catalogYAML)
})

// ParseCatalog decodes a catalog document and validates every rule in it.
func ParseCatalog(data []byte) ([]Section, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	sections := []Section{
		{Name: "compliance", Rules: f.Compliance},
		{Name: "walletMode", Rules: f.WalletMode},
		{Name: "security", Rules: f.Security},
	}
	seen := make(map[string]struct{})
	for _, s := range sections {
		for i, r := range s.Rules {
			if r.ID == "" {
				return nil, fmt.Errorf("catalog %s[%d]: id is required", s.Name, i)
			}
			if _, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("catalog %s[%d]: duplicate id %q", s.Name, i, r.ID)
			}
			seen[r.ID] = struct{}{}
			for j := range r.Conditions {
				r.Conditions[j] = withConditionDefaults(r.Conditions[j])
			}
			for j := range r.Actions {
				r.Actions[j] = withActionDefaults(r.Actions[j])
			}
			if len(r.Chains) == 0 {
				s.Rules[i].Chains = []string{ChainAll}
			}
			if err := ValidateRule(r).Err(); err != nil {
				return nil, fmt.Errorf("catalog rule %q: %w", r.ID, err)
			}
		}
	}
	return sections, nil
}

// DefaultCatalog returns the built-in rule catalog. Callers receive copies
// and may modify them freely.
func DefaultCatalog() []Section {
	sections, err := loadCatalog()
	if err != nil {
		panic(err)
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = Section{Name: s.Name, Rules: make([]Rule, len(s.Rules))}
		for j, r := range s.Rules {
			out[i].Rules[j] = r.Clone()
		}
	}
	return out
}

// CatalogRules flattens DefaultCatalog in section order.
func CatalogRules() []Rule {
	var out []Rule
	for _, s := range DefaultCatalog() {
		out = append(out, s.Rules...)
	}
	return out
}
