package recommend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/internal/domain"
)

// residualPlaceholder sweeps any placeholder the substitution pass could not
// resolve. Leaking template syntax to a user is a defect, so unresolved
// variables render as empty string.
var residualPlaceholder = regexp.MustCompile(`\{[^}]+\}`)

// FormatCurrency renders an amount as US dollars with thousand separators,
// e.g. "$1,234.56" or "-$50.00". Cents are derived through decimal so float
// noise cannot shave one off (money.NewFromFloat(49.99) truncates to $49.98).
func FormatCurrency(amount float64) string {
	cents := decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// FormatPercent renders a percentage value with one decimal, e.g. "68.0%".
func FormatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value)
}

// cardName builds the user-facing name for a credit account, e.g.
// "Credit Card ending in 4523".
func cardName(acc domain.UtilizationAccount) string {
	subtype := acc.Subtype
	if subtype == "" {
		subtype = "card"
	}
	if acc.Mask != "" && acc.Mask != "****" {
		return titleWords(subtype) + " ending in " + acc.Mask
	}
	return titleWords(subtype) + " card"
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// formatDays renders a day count without a trailing ".0" for whole values.
func formatDays(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RenderRationale substitutes the placeholder vocabulary in a template with
// values from the signal bundle. Card-level placeholders resolve from the
// first credit account and stay unresolved when the user has none; the final
// sweep strips whatever could not be filled.
func RenderRationale(template string, b domain.SignalBundle) string {
	r := template
	cu := b.CreditUtilization
	accounts := cu.Accounts

	if strings.Contains(r, "{card_name}") && len(accounts) > 0 {
		r = strings.ReplaceAll(r, "{card_name}", cardName(accounts[0]))
	}
	if strings.Contains(r, "{utilization}") {
		util := cu.TotalUtilization
		if len(accounts) > 0 {
			util = accounts[0].Utilization
		}
		r = strings.ReplaceAll(r, "{utilization}", FormatPercent(util))
	}
	if len(accounts) > 0 {
		r = strings.ReplaceAll(r, "{balance}", FormatCurrency(accounts[0].Balance))
		r = strings.ReplaceAll(r, "{limit}", FormatCurrency(accounts[0].Limit))
	}
	r = strings.ReplaceAll(r, "{interest_charged}", FormatCurrency(cu.InterestCharged))
	r = strings.ReplaceAll(r, "{subscription_count}", strconv.Itoa(len(b.Subscriptions.RecurringMerchants)))
	r = strings.ReplaceAll(r, "{monthly_recurring}", FormatCurrency(b.Subscriptions.MonthlyRecurring))
	if strings.Contains(r, "{total_balance}") {
		var total float64
		for _, acc := range accounts {
			total += acc.Balance
		}
		r = strings.ReplaceAll(r, "{total_balance}", FormatCurrency(total))
	}
	r = strings.ReplaceAll(r, "{total_savings}", FormatCurrency(b.SavingsBehavior.TotalSavings))
	r = strings.ReplaceAll(r, "{growth_rate}", FormatPercent(b.SavingsBehavior.GrowthRate))
	r = strings.ReplaceAll(r, "{cash_flow_buffer}", fmt.Sprintf("%.1f", b.IncomeStability.CashFlowBuffer))
	r = strings.ReplaceAll(r, "{median_pay_gap}", formatDays(b.IncomeStability.MedianPayGap))

	r = residualPlaceholder.ReplaceAllString(r, "")
	return strings.TrimSpace(r)
}
