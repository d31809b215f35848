package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/spf13/cast"
)

// ErrOperand reports an operand the operator cannot work with, such as a
// malformed between range or an invalid regex pattern.
var ErrOperand = errors.New("invalid operand")

// OperatorHandler evaluates one condition operator. left is the context
// value, right the resolved condition value.
type OperatorHandler interface {
	Check(left, right any) (bool, error)
}

var (
	operatorHandlers = map[rules.Operator]OperatorHandler{
		rules.OpEquals:   equalsHandler{},
		rules.OpGreater:  numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
		rules.OpLess:     numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
		rules.OpContains: containsHandler{},
		rules.OpIn:       inHandler{},
		rules.OpBetween:  betweenHandler{},
		rules.OpRegex:    regexHandler{},
	}
	// regexCache keeps compiled regex by pattern for the hot evaluation path.
	// Expected value type is *regexp.Regexp.
	regexCache sync.Map
)

func getOperatorHandler(op rules.Operator) (OperatorHandler, bool) {
	h, ok := operatorHandlers[op]
	return h, ok
}

type equalsHandler struct{}

// Check is strict: values of different kinds never compare equal, but
// numbers compare by value whatever their Go type.
func (equalsHandler) Check(left, right any) (bool, error) {
	return strictEqual(left, right), nil
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(left, right any) (bool, error) {
	l, ok := toFloat64(left)
	if !ok {
		return false, nil
	}
	r, ok := toFloat64(right)
	if !ok {
		return false, nil
	}
	return h.cmp(l, r), nil
}

type containsHandler struct{}

func (containsHandler) Check(left, right any) (bool, error) {
	if list, ok := toSlice(left); ok {
		return memberOf(right, list), nil
	}
	l, ok := left.(string)
	if !ok {
		return false, nil
	}
	r, err := cast.ToStringE(right)
	if err != nil {
		return false, nil
	}
	return strings.Contains(l, r), nil
}

type inHandler struct{}

func (inHandler) Check(left, right any) (bool, error) {
	list, ok := toSlice(right)
	if !ok {
		return false, nil
	}
	return memberOf(left, list), nil
}

type betweenHandler struct{}

func (betweenHandler) Check(left, right any) (bool, error) {
	bounds, ok := toSlice(right)
	if !ok || len(bounds) != 2 {
		return false, fmt.Errorf("%w: between expects [low, high], got %v", ErrOperand, right)
	}
	low, lok := toFloat64(bounds[0])
	high, hok := toFloat64(bounds[1])
	if !lok || !hok {
		return false, fmt.Errorf("%w: between bounds must be numeric, got %v", ErrOperand, right)
	}
	v, ok := toFloat64(left)
	if !ok {
		return false, nil
	}
	return low <= v && v <= high, nil
}

type regexHandler struct{}

func (regexHandler) Check(left, right any) (bool, error) {
	pattern, ok := right.(string)
	if !ok {
		return false, fmt.Errorf("%w: regex pattern must be a string, got %T", ErrOperand, right)
	}
	rx, err := getCompiledRegex(pattern)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOperand, err)
	}
	s, err := cast.ToStringE(left)
	if err != nil {
		return false, nil
	}
	return rx.MatchString(s), nil
}

func getCompiledRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, rx)
	return rx, nil
}

func strictEqual(a, b any) bool {
	if af, ok := toNumber(a); ok {
		bf, ok := toNumber(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case nil:
		return b == nil
	}
	return false
}

func memberOf(v any, list []any) bool {
	for _, item := range list {
		if strictEqual(v, item) {
			return true
		}
	}
	return false
}

// toNumber accepts only numeric Go types.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toFloat64 extends toNumber with timestamps, compared as Unix milliseconds,
// and numeric strings. Ordering operators use it; equals stays strict.
func toFloat64(v any) (float64, bool) {
	switch vv := v.(type) {
	case time.Time:
		return float64(vv.UnixMilli()), true
	case string:
		s := strings.TrimSpace(vv)
		if s == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(s)
		return f, err == nil
	}
	return toNumber(v)
}

func toSlice(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return values, true
	case []string:
		out := make([]any, len(values))
		for i, s := range values {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(values))
		for i, n := range values {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(values))
		for i, n := range values {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
