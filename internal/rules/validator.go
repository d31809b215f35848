package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("rule validation failed")

// ValidationResult is the non-failing outcome of ValidateRule.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidationError carries every problem found in a rule.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Err converts a failed result into a *ValidationError; it returns nil when valid.
func (v ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Errors: append([]string(nil), v.Errors...)}
}

// ValidateRule checks the structural requirements of a rule. It never mutates r.
// Operators are not checked; an unknown operator never matches at evaluation time.
func ValidateRule(r Rule) ValidationResult {
	var errs []string

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, "Rule name is required")
	}
	if r.Category == "" {
		errs = append(errs, "Rule category is required")
	}
	if len(r.Conditions) == 0 {
		errs = append(errs, "At least one condition is required")
	}
	if len(r.Actions) == 0 {
		errs = append(errs, "At least one action is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		errs = append(errs, "Priority must be between 0 and 100")
	}

	for i, c := range r.Conditions {
		if strings.TrimSpace(c.Field) == "" {
			errs = append(errs, fmt.Sprintf("conditions[%d]: field is required", i))
		}
	}
	for i, a := range r.Actions {
		if a.Type == "" {
			errs = append(errs, fmt.Sprintf("actions[%d]: type is required", i))
		}
	}
	if v := r.Metadata.Version; v != "" {
		if _, err := semver.NewVersion(v); err != nil {
			errs = append(errs, fmt.Sprintf("metadata.version %q is not a semantic version", v))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// BumpVersion returns v with its patch component incremented. Versions that
// do not parse are returned unchanged.
func BumpVersion(v string) string {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	return parsed.IncPatch().String()
}
