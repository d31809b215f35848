package engine

import "time"

// RiskScore computes the [0,100] heuristic for a payload as of now. It reads
// the raw payload, so unset customer type and KYC status are scored as sent.
func RiskScore(p InvoicePayload, now time.Time) int {
	score := 0

	switch {
	case p.Amount > 50000:
		score += 40
	case p.Amount > 10000:
		score += 20
	case p.Amount > 1000:
		score += 10
	}

	if p.IsInternational {
		score += 20
	}

	switch p.CustomerType {
	case "new":
		score += 30
	case "unverified":
		score += 40
	}

	switch p.PaymentMethod {
	case "crypto":
		score += 15
	case "wire":
		score += 5
	}

	if p.KYCStatus == "" || p.KYCStatus == "pending" {
		score += 25
	}
	if p.KYCStatus == "failed" {
		score += 50
	}

	hoursUntilDue := 24.0
	if p.DueDate != nil {
		hoursUntilDue = p.DueDate.Sub(now).Hours()
	}
	if hoursUntilDue < 1 {
		score += 20
	} else if hoursUntilDue < 6 {
		score += 10
	}

	return min(score, 100)
}
