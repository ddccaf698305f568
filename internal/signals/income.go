package signals

import (
	"strings"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Pay-period bands in days. A median gap inside a band classifies the payroll
// cadence; anything else is irregular.
const (
	weeklyPayMin   = 6.0
	weeklyPayMax   = 8.0
	biweeklyPayMin = 13.0
	biweeklyPayMax = 15.0
	monthlyPayMin  = 28.0
	monthlyPayMax  = 31.0

	// irregularStddev forces the irregular classification when gap spread is
	// wide, even if the median lands inside a band.
	irregularStddev = 7.0
)

var payrollKeywords = []string{"payroll", "salary", "direct deposit", "paycheck"}
var payrollExclusions = []string{"savings", "transfer", "refund", "tax"}

// isPayrollTransaction reports whether an inflow looks like a paycheck:
// a payroll keyword in the merchant name or category, with none of the
// exclusion keywords.
func isPayrollTransaction(t domain.Transaction) bool {
	if t.Amount <= 0 {
		return false
	}
	merchant := strings.ToLower(t.MerchantName)

	matched := false
	for _, kw := range payrollKeywords {
		if strings.Contains(merchant, kw) || domain.CategoryContains(t.Category, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, kw := range payrollExclusions {
		if strings.Contains(merchant, kw) || domain.CategoryContains(t.Category, kw) {
			return false
		}
	}
	return true
}

// DetectIncomeStability infers payroll cadence from deposit timing. Fewer
// than two payroll-like deposits yields the zero-valued default rather than
// an error.
func DetectIncomeStability(txns []domain.Transaction, accounts []domain.Account, window domain.TimeWindow, asOf time.Time) domain.IncomeStability {
	out := domain.IncomeStability{Frequency: "unknown"}

	inWindowTxns := windowTransactions(txns, window, asOf)

	payroll := make([]domain.Transaction, 0, 8)
	var totalSpend float64
	for _, t := range inWindowTxns {
		if t.Amount < 0 {
			totalSpend += -t.Amount
		}
		if isPayrollTransaction(t) {
			payroll = append(payroll, t)
		}
	}
	out.PayrollCount = len(payroll)
	if len(payroll) < 2 {
		return out
	}

	sortChronological(payroll)
	gaps := dayGaps(payroll)
	out.MedianPayGap = median(gaps)
	out.GapStddev = round2(sampleStddev(gaps))

	switch {
	case out.MedianPayGap >= weeklyPayMin && out.MedianPayGap <= weeklyPayMax:
		out.Frequency = "weekly"
	case out.MedianPayGap >= biweeklyPayMin && out.MedianPayGap <= biweeklyPayMax:
		out.Frequency = "biweekly"
	case out.MedianPayGap >= monthlyPayMin && out.MedianPayGap <= monthlyPayMax:
		out.Frequency = "monthly"
	default:
		out.Frequency = "irregular"
		out.IrregularFrequency = true
	}
	if out.GapStddev > irregularStddev {
		out.Frequency = "irregular"
		out.IrregularFrequency = true
	}

	out.AvgMonthlyExpenses = round2(totalSpend / window.Months())
	if out.AvgMonthlyExpenses > 0 {
		var checking float64
		for _, a := range accounts {
			if a.Type == domain.AccountTypeDepository && strings.EqualFold(a.Subtype, "checking") {
				checking += a.Balance
			}
		}
		out.CashFlowBuffer = round2(checking / out.AvgMonthlyExpenses)
	}

	return out
}
