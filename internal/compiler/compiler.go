// Package compiler lowers rule sets into target-specific contract source and
// deployment artifacts.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

// Version is stamped into compilation metadata.
const Version = "BRE-Compiler-v1.0"

// ErrUnsupportedTarget is matched by *UnsupportedTargetError via errors.Is.
var ErrUnsupportedTarget = errors.New("unsupported target")

// UnsupportedTargetError is returned when no adapter is registered for a target.
type UnsupportedTargetError struct {
	Target string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedTarget, e.Target)
}

func (e *UnsupportedTargetError) Is(target error) bool { return target == ErrUnsupportedTarget }

// Options tunes a single compilation.
type Options struct {
	Network string         `json:"network,omitempty" yaml:"network,omitempty"`
	Extra   map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func (o Options) network() string {
	if o.Network == "" {
		return "mainnet"
	}
	return o.Network
}

// Adapter generates code for one target.
type Adapter interface {
	Target() string
	GenerateContract(groups []rules.Group, opts Options) (string, error)
	Optimize(code string) (string, error)
	BuildArtifacts(code string, opts Options) (Artifacts, error)
}

// Metadata describes a compilation.
type Metadata struct {
	Chain      string    `json:"chain"`
	RuleCount  int       `json:"ruleCount"`
	CompiledAt time.Time `json:"compiledAt"`
	Compiler   string    `json:"compiler"`
}

// Compiled is the output of CompileRules.
type Compiled struct {
	Code      string    `json:"code"`
	Artifacts Artifacts `json:"artifacts"`
	Metadata  Metadata  `json:"metadata"`
}

// Compiler dispatches to registered adapters. Safe for concurrent use.
type Compiler struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	log      logging.Logger
	now      func() time.Time
}

// New returns a Compiler with the given adapters registered.
func New(log logging.Logger, adapters ...Adapter) *Compiler {
	if log == nil {
		log = logging.Nop()
	}
	c := &Compiler{adapters: make(map[string]Adapter), log: log, now: time.Now}
	for _, a := range adapters {
		c.Register(a)
	}
	return c
}

// NewDefault returns a Compiler with the EVM and Solana adapters.
func NewDefault(log logging.Logger) *Compiler {
	return New(log, NewEVMAdapter(), NewSolanaAdapter())
}

// Register adds or replaces the adapter for a.Target().
func (c *Compiler) Register(a Adapter) {
	c.mu.Lock()
	c.adapters[a.Target()] = a
	c.mu.Unlock()
}

// Targets lists registered targets in sorted order.
func (c *Compiler) Targets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.adapters))
	for t := range c.adapters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether target has a registered adapter.
func (c *Compiler) Supports(target string) bool {
	_, ok := c.adapter(target)
	return ok
}

func (c *Compiler) adapter(target string) (Adapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.adapters[target]
	return a, ok
}

// CompileRules groups rs by category, generates and optimizes target source,
// then assembles deployment artifacts. An unknown target fails before any
// adapter is called. Adapter errors are returned unchanged.
func (c *Compiler) CompileRules(ctx context.Context, rs []rules.Rule, target string, opts Options) (*Compiled, error) {
	a, ok := c.adapter(target)
	if !ok {
		return nil, &UnsupportedTargetError{Target: target}
	}
	c.log.Info("compiling rules", logging.Fields{"chain": target, "ruleCount": len(rs), "network": opts.network()})

	groups := rules.MergeRules(rs)
	code, err := a.GenerateContract(groups, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, err = a.Optimize(code)
	if err != nil {
		return nil, err
	}
	artifacts, err := a.BuildArtifacts(code, opts)
	if err != nil {
		return nil, err
	}

	c.log.Info("rules compiled", logging.Fields{"chain": target, "codeSize": len(code), "gasEstimate": artifacts.GasEstimate})
	return &Compiled{
		Code:      code,
		Artifacts: artifacts,
		Metadata: Metadata{
			Chain:      target,
			RuleCount:  len(rs),
			CompiledAt: c.now().UTC(),
			Compiler:   Version,
		},
	}, nil
}
