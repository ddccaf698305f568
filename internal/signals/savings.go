package signals

import (
	"strings"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Coverage level thresholds on the combined savings balance, in dollars.
const (
	coverageExcellent = 10000.0
	coverageGood      = 5000.0
	coverageBuilding  = 1000.0
)

// savingsSubtypes are the depository subtypes treated as savings vehicles.
var savingsSubtypes = map[string]bool{
	"savings":      true,
	"money market": true,
	"hsa":          true,
	"cd":           true,
}

// isSavingsAccount reports whether an account holds savings: a depository
// account with a savings-like subtype or a name that mentions savings.
func isSavingsAccount(a domain.Account) bool {
	if a.Type != domain.AccountTypeDepository {
		return false
	}
	if savingsSubtypes[strings.ToLower(a.Subtype)] {
		return true
	}
	return strings.Contains(strings.ToLower(a.Name), "savings")
}

// DetectSavingsBehavior summarizes balances and flows on the user's savings
// accounts, plus how many months of typical spending those balances cover.
func DetectSavingsBehavior(txns []domain.Transaction, accounts []domain.Account, window domain.TimeWindow, asOf time.Time) domain.SavingsBehavior {
	out := domain.SavingsBehavior{CoverageLevel: "low"}

	savingsIDs := make(map[string]bool)
	var totalSavings float64
	for _, a := range accounts {
		if isSavingsAccount(a) {
			savingsIDs[a.AccountID] = true
			totalSavings += a.Balance
		}
	}
	if len(savingsIDs) == 0 {
		return out
	}

	var inflow, outflow, totalSpend float64
	for _, t := range windowTransactions(txns, window, asOf) {
		if t.Amount < 0 {
			totalSpend += -t.Amount
		}
		if !savingsIDs[t.AccountID] {
			continue
		}
		if t.Amount > 0 {
			inflow += t.Amount
		} else {
			outflow += -t.Amount
		}
	}

	out.TotalSavings = round2(totalSavings)
	out.NetInflow = round2(inflow - outflow)

	// Growth is measured against the balance implied at the window start.
	opening := out.TotalSavings - out.NetInflow
	if opening > 0 {
		out.GrowthRate = round2(out.NetInflow / opening * 100)
	}

	avgMonthlyExpenses := totalSpend / window.Months()
	if avgMonthlyExpenses > 0 {
		out.EmergencyFundCoverage = round2(out.TotalSavings / avgMonthlyExpenses)
	}

	switch {
	case out.TotalSavings > coverageExcellent:
		out.CoverageLevel = "excellent"
	case out.TotalSavings > coverageGood:
		out.CoverageLevel = "good"
	case out.TotalSavings > coverageBuilding:
		out.CoverageLevel = "building"
	}

	return out
}
