// Package signals derives behavioral signals from raw transaction and account
// history. Every detector is a pure function of its inputs: identical inputs
// produce identical output, missing data degrades to a zero-valued structure,
// and no detector performs I/O.
package signals

import (
	"math"
	"sort"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Compute derives all four signals for one user. Transactions and accounts may
// include other users' rows; they are filtered here. asOf anchors the lookback
// window so recomputation over the same ledger is deterministic.
func Compute(userID string, txns []domain.Transaction, accounts []domain.Account, window domain.TimeWindow, asOf time.Time) domain.SignalBundle {
	userTxns := make([]domain.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.UserID == userID {
			userTxns = append(userTxns, t)
		}
	}
	userAccounts := make([]domain.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.UserID == userID {
			userAccounts = append(userAccounts, a)
		}
	}

	return domain.SignalBundle{
		UserID:            userID,
		TimeWindow:        window,
		Subscriptions:     DetectSubscriptions(userTxns, window, asOf),
		CreditUtilization: DetectCreditUtilization(userTxns, userAccounts, window, asOf),
		SavingsBehavior:   DetectSavingsBehavior(userTxns, userAccounts, window, asOf),
		IncomeStability:   DetectIncomeStability(userTxns, userAccounts, window, asOf),
	}
}

// inWindow reports whether the transaction's posting date falls inside the
// lookback window ending at asOf.
func inWindow(t domain.Transaction, window domain.TimeWindow, asOf time.Time) bool {
	start := asOf.AddDate(0, 0, -window.Days())
	return !t.Date.Before(start) && !t.Date.After(asOf)
}

// windowTransactions filters a slice to the lookback window, preserving order.
func windowTransactions(txns []domain.Transaction, window domain.TimeWindow, asOf time.Time) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txns))
	for _, t := range txns {
		if inWindow(t, window, asOf) {
			out = append(out, t)
		}
	}
	return out
}

// sortChronological orders transactions by effective date, breaking ties on
// transaction ID so repeated runs see an identical sequence.
func sortChronological(txns []domain.Transaction) {
	sort.Slice(txns, func(i, j int) bool {
		di, dj := txns[i].EffectiveDate(), txns[j].EffectiveDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return txns[i].TransactionID < txns[j].TransactionID
	})
}

// dayGaps returns the day distances between consecutive transactions.
// Callers must pass a chronologically sorted slice.
func dayGaps(txns []domain.Transaction) []float64 {
	if len(txns) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(txns)-1)
	for i := 1; i < len(txns); i++ {
		d := txns[i].EffectiveDate().Sub(txns[i-1].EffectiveDate())
		gaps = append(gaps, d.Hours()/24.0)
	}
	return gaps
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// sampleStddev is the n-1 standard deviation. Fewer than two samples yield 0.
func sampleStddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// round2 rounds to two decimal places, the precision carried by every
// monetary and percentage signal field.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
