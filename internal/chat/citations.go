package chat

import (
	"fmt"
	"strings"

	"github.com/spendsense/spendsense/internal/domain"
)

// ExtractCitations matches the response text against the data points the
// prompt offered and returns one citation per hit. A card is cited when the
// response mentions its mask or its utilization percentage; the subscription
// total and savings rate are cited when their formatted values appear. The
// result is never nil so callers can encode it directly.
func ExtractCitations(response string, bundle domain.SignalBundle, monthlyIncome float64) []Citation {
	citations := []Citation{}

	for _, acc := range bundle.CreditUtilization.Accounts {
		if acc.Mask == "" || acc.Utilization <= 0 {
			continue
		}
		pct := fmt.Sprintf("%.1f", acc.Utilization)
		if !strings.Contains(response, acc.Mask) && !strings.Contains(response, pct) {
			continue
		}
		label := acc.Mask
		if len(label) >= 4 {
			label = "Account ending in " + label[len(label)-4:]
		}
		citations = append(citations, Citation{
			DataPoint: label,
			Value:     pct + "% utilization",
		})
	}

	if total := bundle.Subscriptions.MonthlyRecurring; total > 0 {
		if strings.Contains(response, fmt.Sprintf("%.2f", total)) || strings.Contains(response, usd(total)) {
			citations = append(citations, Citation{
				DataPoint: "Recurring subscriptions",
				Value:     usd(total) + "/month",
			})
		}
	}

	if monthlyIncome > 0 {
		rate := (monthlyIncome - bundle.IncomeStability.AvgMonthlyExpenses) / monthlyIncome * 100
		if strings.Contains(response, fmt.Sprintf("%.1f", rate)) {
			citations = append(citations, Citation{
				DataPoint: "Savings rate",
				Value:     fmt.Sprintf("%.1f%%", rate),
			})
		}
	}

	return citations
}
