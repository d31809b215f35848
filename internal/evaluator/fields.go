package evaluator

import (
	"sort"
	"strings"
)

type accessor func(*Context) (any, bool)

// str reports an empty typed string as missing; the payload cannot tell an
// absent field from an empty one.
func str(v string) (any, bool) { return v, v != "" }

// fieldAccessors is the closed set of typed context paths. Paths outside it
// fall back to the owning section's Extra map.
var fieldAccessors = map[string]accessor{
	"invoice.id":              func(c *Context) (any, bool) { return str(c.Invoice.ID) },
	"invoice.amount":          func(c *Context) (any, bool) { return c.Invoice.Amount, true },
	"invoice.currency":        func(c *Context) (any, bool) { return str(c.Invoice.Currency) },
	"invoice.type":            func(c *Context) (any, bool) { return str(c.Invoice.Type) },
	"invoice.isInternational": func(c *Context) (any, bool) { return c.Invoice.IsInternational, true },
	"invoice.items":           func(c *Context) (any, bool) { return c.Invoice.Items, c.Invoice.Items != nil },
	"invoice.dueDate": func(c *Context) (any, bool) {
		if c.Invoice.DueDate == nil {
			return nil, false
		}
		return *c.Invoice.DueDate, true
	},

	"customer.id":          func(c *Context) (any, bool) { return str(c.Customer.ID) },
	"customer.type":        func(c *Context) (any, bool) { return str(c.Customer.Type) },
	"customer.isRecurring": func(c *Context) (any, bool) { return c.Customer.IsRecurring, true },
	"customer.riskScore":   func(c *Context) (any, bool) { return c.Customer.RiskScore, true },
	"customer.kycStatus":   func(c *Context) (any, bool) { return str(c.Customer.KYCStatus) },
	"customer.country":     func(c *Context) (any, bool) { return str(c.Customer.Country) },

	"transaction.timestamp": func(c *Context) (any, bool) {
		return c.Transaction.Timestamp, !c.Transaction.Timestamp.IsZero()
	},
	"transaction.originCountry":      func(c *Context) (any, bool) { return str(c.Transaction.OriginCountry) },
	"transaction.destinationCountry": func(c *Context) (any, bool) { return str(c.Transaction.DestinationCountry) },
	"transaction.paymentMethod":      func(c *Context) (any, bool) { return str(c.Transaction.PaymentMethod) },

	"wallet.dailyLimit":          func(c *Context) (any, bool) { return c.Wallet.DailyLimit, true },
	"wallet.dailySpend":          func(c *Context) (any, bool) { return c.Wallet.DailySpend, true },
	"wallet.transactionsPerHour": func(c *Context) (any, bool) { return c.Wallet.TransactionsPerHour, true },
}

// KnownFields lists the typed context paths in sorted order.
func KnownFields() []string {
	out := make([]string, 0, len(fieldAccessors))
	for k := range fieldAccessors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// GetFieldValue resolves a dot path against c. The second result is false
// when any segment is missing; it never panics.
//
// Typed string fields that are empty count as missing, so a condition such
// as equals "" never matches them. Values under Extra are returned as stored,
// including empty strings.
func GetFieldValue(path string, c *Context) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}
	if get, ok := fieldAccessors[path]; ok {
		return get(c)
	}

	section, rest, ok := strings.Cut(path, ".")
	if !ok {
		return nil, false
	}
	var extra map[string]any
	switch section {
	case "invoice":
		extra = c.Invoice.Extra
	case "customer":
		extra = c.Customer.Extra
	case "transaction":
		extra = c.Transaction.Extra
	case "wallet":
		extra = c.Wallet.Extra
	default:
		return nil, false
	}
	return lookupPath(extra, strings.Split(rest, "."))
}

func lookupPath(m map[string]any, segments []string) (any, bool) {
	var cur any = m
	for _, seg := range segments {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}
