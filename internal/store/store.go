package store

import (
	"context"
	"errors"
	"time"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Store defines rule and deployment persistence.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// ListRules returns every rule in insertion order.
	ListRules(ctx context.Context) ([]rules.Rule, error)

	// GetRule returns ErrNotFound when id is unknown.
	GetRule(ctx context.Context, id string) (rules.Rule, error)

	// CreateRule returns ErrAlreadyExists when the id is taken.
	CreateRule(ctx context.Context, r rules.Rule) error

	// UpdateRule replaces an existing rule and returns ErrNotFound when it is absent.
	UpdateRule(ctx context.Context, r rules.Rule) error

	// DeleteRule returns ErrNotFound when id is unknown.
	DeleteRule(ctx context.Context, id string) error

	// SaveDeployment records a deployment keyed by its address.
	SaveDeployment(ctx context.Context, d Deployment) error

	// ListDeployments returns deployments oldest first.
	ListDeployments(ctx context.Context) ([]Deployment, error)

	// Close releases any resources held by the store.
	// After Close is called, the store should not be used.
	Close() error
}

// Deployment records a compiled rule set sent to a target.
type Deployment struct {
	Address         string    `json:"address"`
	Chain           string    `json:"chain"`
	Network         string    `json:"network,omitempty"`
	RuleIDs         []string  `json:"ruleIds"`
	DeployedAt      time.Time `json:"deployedAt"`
	TransactionHash string    `json:"transactionHash"`
}

// References reports whether the deployment includes ruleID.
func (d Deployment) References(ruleID string) bool {
	for _, id := range d.RuleIDs {
		if id == ruleID {
			return true
		}
	}
	return false
}
