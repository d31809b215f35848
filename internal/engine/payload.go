package engine

import (
	"time"

	"github.com/TimurManjosov/chainrules/internal/evaluator"
)

// Context defaults for fields the payload leaves unset.
const (
	DefaultInvoiceType      = "standard"
	DefaultCustomerType     = "new"
	DefaultKYCStatus        = "pending"
	DefaultCountry          = "US"
	DefaultPaymentMethod    = "wallet"
	DefaultWalletDailyLimit = 10000
)

// InvoicePayload is the raw input to EvaluateInvoice.
type InvoicePayload struct {
	ID              string     `json:"id" yaml:"id"`
	Amount          float64    `json:"amount" yaml:"amount"`
	Currency        string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	Type            string     `json:"type,omitempty" yaml:"type,omitempty"`
	IsInternational bool       `json:"isInternational,omitempty" yaml:"isInternational,omitempty"`
	DueDate         *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	Items           []any      `json:"items,omitempty" yaml:"items,omitempty"`

	CustomerID      string `json:"customerId,omitempty" yaml:"customerId,omitempty"`
	CustomerType    string `json:"customerType,omitempty" yaml:"customerType,omitempty"`
	KYCStatus       string `json:"kycStatus,omitempty" yaml:"kycStatus,omitempty"`
	CustomerCountry string `json:"customerCountry,omitempty" yaml:"customerCountry,omitempty"`

	OriginCountry      string `json:"originCountry,omitempty" yaml:"originCountry,omitempty"`
	DestinationCountry string `json:"destinationCountry,omitempty" yaml:"destinationCountry,omitempty"`
	PaymentMethod      string `json:"paymentMethod,omitempty" yaml:"paymentMethod,omitempty"`

	WalletDailyLimit          float64 `json:"walletDailyLimit,omitempty" yaml:"walletDailyLimit,omitempty"`
	WalletDailySpend          float64 `json:"walletDailySpend,omitempty" yaml:"walletDailySpend,omitempty"`
	WalletTransactionsPerHour float64 `json:"walletTransactionsPerHour,omitempty" yaml:"walletTransactionsPerHour,omitempty"`

	TargetChain string `json:"targetChain,omitempty" yaml:"targetChain,omitempty"`

	// Extra is exposed to conditions under invoice.<key>.
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// buildContext applies the payload defaults. riskScore is stored on the customer.
func buildContext(p InvoicePayload, riskScore int, now time.Time) *evaluator.Context {
	items := p.Items
	if items == nil {
		items = []any{}
	}
	limit := p.WalletDailyLimit
	if limit == 0 {
		limit = DefaultWalletDailyLimit
	}
	customerType := orDefault(p.CustomerType, DefaultCustomerType)

	return &evaluator.Context{
		Invoice: evaluator.Invoice{
			ID:              p.ID,
			Amount:          p.Amount,
			Currency:        p.Currency,
			Type:            orDefault(p.Type, DefaultInvoiceType),
			IsInternational: p.IsInternational,
			DueDate:         p.DueDate,
			Items:           items,
			Extra:           p.Extra,
		},
		Customer: evaluator.Customer{
			ID:          p.CustomerID,
			Type:        customerType,
			IsRecurring: p.CustomerType == "recurring",
			RiskScore:   float64(riskScore),
			KYCStatus:   orDefault(p.KYCStatus, DefaultKYCStatus),
			Country:     orDefault(p.CustomerCountry, DefaultCountry),
		},
		Transaction: evaluator.Transaction{
			Timestamp:          now,
			OriginCountry:      orDefault(p.OriginCountry, DefaultCountry),
			DestinationCountry: orDefault(p.DestinationCountry, DefaultCountry),
			PaymentMethod:      orDefault(p.PaymentMethod, DefaultPaymentMethod),
		},
		Wallet: evaluator.Wallet{
			DailyLimit:          limit,
			DailySpend:          p.WalletDailySpend,
			TransactionsPerHour: p.WalletTransactionsPerHour,
		},
	}
}
