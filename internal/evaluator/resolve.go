package evaluator

import (
	"fmt"

	"github.com/TimurManjosov/chainrules/internal/rules"
	"github.com/spf13/cast"
)

// DefaultLists are the named external lists a condition value can refer to
// with a single-element array such as ["SANCTIONED_COUNTRIES"].
var DefaultLists = map[string][]string{
	"SANCTIONED_COUNTRIES": {"IR", "KP", "SY", "CU", "RU", "VE"},
	"HIGH_RISK_COUNTRIES": {
		"IR", "KP", "MM", "AL", "BB", "BF", "HT", "JM", "ML", "MA",
		"NI", "PK", "PA", "PH", "SN", "SS", "SY", "TZ", "UG", "YE", "ZW",
	},
}

// ResolveValue resolves a condition value using DefaultLists.
func ResolveValue(value any, c *Context, dataType rules.DataType) (any, error) {
	return resolveValue(value, c, dataType, DefaultLists)
}

func resolveValue(value any, c *Context, dataType rules.DataType, lists map[string][]string) (any, error) {
	if dataType == rules.TypeReference {
		if path, ok := value.(string); ok {
			v, _ := GetFieldValue(path, c)
			return v, nil
		}
	}

	if items, ok := toSlice(value); ok && len(items) == 1 {
		if name, ok := items[0].(string); ok {
			if list, ok := lists[name]; ok {
				return toSliceOfAny(list), nil
			}
		}
	}

	switch dataType {
	case rules.TypeNumber:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a number", ErrOperand, value)
		}
		return f, nil
	case rules.TypeBoolean:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a boolean", ErrOperand, value)
		}
		return b, nil
	case rules.TypeDate:
		t, err := cast.ToTimeE(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v is not a date", ErrOperand, value)
		}
		return t, nil
	default:
		return value, nil
	}
}

func toSliceOfAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}
