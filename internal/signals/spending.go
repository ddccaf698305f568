package signals

import (
	"sort"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// MonthlyIncome averages payroll-like inflows over the window. Zero when no
// paycheck is visible.
func MonthlyIncome(txns []domain.Transaction, window domain.TimeWindow, asOf time.Time) float64 {
	var total float64
	for _, t := range windowTransactions(txns, window, asOf) {
		if isPayrollTransaction(t) {
			total += t.Amount
		}
	}
	return round2(total / window.Months())
}

// CategorySpend is one category's average monthly outflow.
type CategorySpend struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// CategorySpending totals outflows by primary category, averaged per month,
// largest first.
func CategorySpending(txns []domain.Transaction, window domain.TimeWindow, asOf time.Time) []CategorySpend {
	totals := make(map[string]float64)
	for _, t := range windowTransactions(txns, window, asOf) {
		if t.Amount >= 0 {
			continue
		}
		totals[domain.PrimaryCategory(t.Category)] += -t.Amount
	}

	out := make([]CategorySpend, 0, len(totals))
	months := window.Months()
	for category, total := range totals {
		out = append(out, CategorySpend{Category: category, Amount: round2(total / months)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}
