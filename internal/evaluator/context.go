package evaluator

import "time"

// Invoice is the invoice section of an evaluation context.
type Invoice struct {
	ID              string         `json:"id,omitempty"`
	Amount          float64        `json:"amount"`
	Currency        string         `json:"currency,omitempty"`
	Type            string         `json:"type"`
	IsInternational bool           `json:"isInternational"`
	DueDate         *time.Time     `json:"dueDate,omitempty"`
	Items           []any          `json:"items"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Customer is the customer section of an evaluation context.
type Customer struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type"`
	IsRecurring bool           `json:"isRecurring"`
	RiskScore   float64        `json:"riskScore"`
	KYCStatus   string         `json:"kycStatus"`
	Country     string         `json:"country"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Transaction is the transaction section of an evaluation context.
type Transaction struct {
	Timestamp          time.Time      `json:"timestamp"`
	OriginCountry      string         `json:"originCountry"`
	DestinationCountry string         `json:"destinationCountry"`
	PaymentMethod      string         `json:"paymentMethod"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// Wallet is the wallet section of an evaluation context.
type Wallet struct {
	DailyLimit          float64        `json:"dailyLimit"`
	DailySpend          float64        `json:"dailySpend"`
	TransactionsPerHour float64        `json:"transactionsPerHour"`
	Extra               map[string]any `json:"extra,omitempty"`
}

// Context is the read-only input to rule evaluation. It is built fresh for
// every evaluation call.
type Context struct {
	Invoice     Invoice     `json:"invoice"`
	Customer    Customer    `json:"customer"`
	Transaction Transaction `json:"transaction"`
	Wallet      Wallet      `json:"wallet"`
}
