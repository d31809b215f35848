package store

import (
	"context"
	"slices"
	"sync"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It keeps insertion order alongside a map and guards both with an RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	rules       map[string]rules.Rule
	order       []string
	deployments []Deployment
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules: make(map[string]rules.Rule),
	}
}

func (m *MemoryStore) ListRules(_ context.Context) ([]rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]rules.Rule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rules[id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetRule(_ context.Context, id string) (rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok {
		return rules.Rule{}, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) CreateRule(_ context.Context, r rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[r.ID]; exists {
		return ErrAlreadyExists
	}
	m.rules[r.ID] = r.Clone()
	m.order = append(m.order, r.ID)
	return nil
}

func (m *MemoryStore) UpdateRule(_ context.Context, r rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[r.ID]; !exists {
		return ErrNotFound
	}
	m.rules[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[id]; !exists {
		return ErrNotFound
	}
	delete(m.rules, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	return nil
}

func (m *MemoryStore) SaveDeployment(_ context.Context, d Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d.RuleIDs = append([]string(nil), d.RuleIDs...)
	for i, existing := range m.deployments {
		if existing.Address == d.Address {
			m.deployments[i] = d
			return nil
		}
	}
	m.deployments = append(m.deployments, d)
	return nil
}

func (m *MemoryStore) ListDeployments(_ context.Context) ([]Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Deployment, len(m.deployments))
	for i, d := range m.deployments {
		d.RuleIDs = append([]string(nil), d.RuleIDs...)
		out[i] = d
	}
	return out, nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}
