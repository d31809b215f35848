package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/TimurManjosov/chainrules/internal/rules"
)

// ABIParam is one input or output of an ABI entry.
type ABIParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ABIEntry is a simplified contract interface descriptor.
type ABIEntry struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Inputs          []ABIParam `json:"inputs"`
	Outputs         []ABIParam `json:"outputs"`
	StateMutability string     `json:"stateMutability"`
}

// IDLAccount is an account referenced by an IDL instruction.
type IDLAccount struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// IDLArg is an instruction argument.
type IDLArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// IDLInstruction is one program instruction.
type IDLInstruction struct {
	Name     string       `json:"name"`
	Accounts []IDLAccount `json:"accounts"`
	Args     []IDLArg     `json:"args"`
}

// IDL is a program interface description document.
type IDL struct {
	Version      string           `json:"version"`
	Name         string           `json:"name"`
	Instructions []IDLInstruction `json:"instructions"`
}

// Artifacts bundles the deployment metadata for compiled code. Which fields
// are set depends on the target.
type Artifacts struct {
	Chain            string     `json:"chain"`
	ABI              []ABIEntry `json:"abi,omitempty"`
	Bytecode         string     `json:"bytecode,omitempty"`
	GasEstimate      int        `json:"gasEstimate,omitempty"`
	ProgramID        string     `json:"programId,omitempty"`
	IDL              *IDL       `json:"idl,omitempty"`
	DeploymentScript string     `json:"deploymentScript"`
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// identifier turns a rule id into a valid function name suffix.
func identifier(id string) string {
	return nonIdent.ReplaceAllString(id, "_")
}

// functionNames assigns every rule in groups a unique function name suffix.
// Ids that collapse onto an already used suffix get a hash of the id appended.
func functionNames(groups []rules.Group) map[string]string {
	names := make(map[string]string)
	used := make(map[string]bool)
	for _, g := range groups {
		for _, r := range g.Rules {
			if _, ok := names[r.ID]; ok {
				continue
			}
			name := identifier(r.ID)
			for salt := ""; used[name]; salt += "_" {
				name = fmt.Sprintf("%s_%08x", identifier(r.ID), uint32(xxhash.Sum64String(r.ID+salt)))
			}
			used[name] = true
			names[r.ID] = name
		}
	}
	return names
}

// comment makes s safe to embed in a single-line source comment.
func comment(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\t') || r == 0x7f || r == '\u2028' || r == '\u2029' {
			return ' '
		}
		return r
	}, s)
}

// formatValue renders a condition literal for a source comment.
func formatValue(v any) string {
	switch vv := v.(type) {
	case []any:
		parts := make([]string, len(vv))
		for i, item := range vv {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(vv, ",")
	case nil:
		return ""
	default:
		return comment(fmt.Sprint(vv))
	}
}
