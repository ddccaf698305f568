package signals

import (
	"math"
	"strings"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Utilization level thresholds, in percent of the combined credit limit.
const (
	utilizationHigh   = 50.0
	utilizationMedium = 30.0

	// overdueUtilization is the utilization at which an account is treated
	// as effectively overdue even without an observed interest charge.
	overdueUtilization = 90.0

	minimumPaymentFloor     = 25.0
	minimumPaymentRate      = 0.02
	minimumPaymentTolerance = 5.0
)

// DetectCreditUtilization summarizes revolving credit usage across the user's
// credit accounts. Accounts without a positive limit are excluded from both
// the per-account and aggregate math.
func DetectCreditUtilization(txns []domain.Transaction, accounts []domain.Account, window domain.TimeWindow, asOf time.Time) domain.CreditUtilization {
	out := domain.CreditUtilization{
		UtilizationLevel: "low",
		Accounts:         []domain.UtilizationAccount{},
	}

	eligible := make(map[string]domain.Account)
	var totalBalance, totalLimit float64
	for _, a := range accounts {
		if a.Type != domain.AccountTypeCredit || a.Limit <= 0 {
			continue
		}
		eligible[a.AccountID] = a
		totalBalance += a.Balance
		totalLimit += a.Limit
		out.Accounts = append(out.Accounts, domain.UtilizationAccount{
			AccountID:   a.AccountID,
			Name:        a.Name,
			Mask:        a.Mask,
			Subtype:     a.Subtype,
			Balance:     a.Balance,
			Limit:       a.Limit,
			Utilization: round2(a.Balance / a.Limit * 100),
		})
	}
	if len(eligible) == 0 {
		return out
	}

	out.TotalUtilization = round2(totalBalance / totalLimit * 100)
	switch {
	case out.TotalUtilization >= utilizationHigh:
		out.UtilizationLevel = "high"
	case out.TotalUtilization >= utilizationMedium:
		out.UtilizationLevel = "medium"
	}

	inWindowTxns := windowTransactions(txns, window, asOf)
	out.InterestCharged = detectInterestCharged(inWindowTxns, eligible)
	out.MinimumPaymentOnly = detectMinimumPaymentOnly(inWindowTxns, eligible)
	out.IsOverdue = out.TotalUtilization >= overdueUtilization || out.InterestCharged > 0

	return out
}

// detectInterestCharged totals spend on credit accounts that looks like an
// interest or fee charge.
func detectInterestCharged(txns []domain.Transaction, eligible map[string]domain.Account) float64 {
	var total float64
	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		if _, ok := eligible[t.AccountID]; !ok {
			continue
		}
		merchant := strings.ToLower(t.MerchantName)
		if strings.Contains(merchant, "interest") || strings.Contains(merchant, "fee") ||
			domain.CategoryContains(t.Category, "interest") || domain.CategoryContains(t.Category, "fee") {
			total += -t.Amount
		}
	}
	return round2(total)
}

// detectMinimumPaymentOnly looks for a payment near the estimated minimum
// (2% of balance, floored at $25) on any credit account in the window.
func detectMinimumPaymentOnly(txns []domain.Transaction, eligible map[string]domain.Account) bool {
	for _, t := range txns {
		if t.Amount <= 0 {
			continue
		}
		acct, ok := eligible[t.AccountID]
		if !ok {
			continue
		}
		estMin := math.Max(acct.Balance*minimumPaymentRate, minimumPaymentFloor)
		if math.Abs(t.Amount-estMin) <= minimumPaymentTolerance {
			return true
		}
	}
	return false
}
