package signals

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// ComputeBatch derives signals for every requested user in one grouped pass
// over the full ledger, instead of filtering per user. It must produce output
// identical to calling Compute per user; the equivalence is covered by tests.
// Users absent from the ledger receive zero-valued bundles.
func ComputeBatch(userIDs []string, txns []domain.Transaction, accounts []domain.Account, window domain.TimeWindow, asOf time.Time) map[string]domain.SignalBundle {
	b := newBatchState(userIDs)
	b.scanAccounts(accounts)
	b.scanTransactions(txns, window, asOf)

	out := make(map[string]domain.SignalBundle, len(userIDs))
	for _, userID := range userIDs {
		out[userID] = b.finalize(userID, window)
	}
	return out
}

// batchState holds columnar accumulators keyed by user, filled in single
// passes over accounts and transactions.
type batchState struct {
	requested map[string]bool

	// account-derived
	utilAccounts    map[string][]domain.UtilizationAccount
	creditBalance   map[string]float64
	creditLimit     map[string]float64
	eligibleCredit  map[string]float64 // accountID -> balance
	creditOwner     map[string]string  // accountID -> userID
	savingsAccounts map[string]string  // accountID -> userID
	savingsBalance  map[string]float64
	checkingBalance map[string]float64

	// transaction-derived
	totalSpend     map[string]float64
	merchantCols   map[string]map[string]*merchantCol
	savingsInflow  map[string]float64
	savingsOutflow map[string]float64
	interest       map[string]float64
	minPaymentOnly map[string]bool
	payroll        map[string][]occurrence
}

type occurrence struct {
	date time.Time
	id   string
}

type merchantCol struct {
	occurrences []occurrence
	amounts     []float64
	channels    map[string]int
	online      int
}

func newBatchState(userIDs []string) *batchState {
	b := &batchState{
		requested:       make(map[string]bool, len(userIDs)),
		utilAccounts:    make(map[string][]domain.UtilizationAccount),
		creditBalance:   make(map[string]float64),
		creditLimit:     make(map[string]float64),
		eligibleCredit:  make(map[string]float64),
		creditOwner:     make(map[string]string),
		savingsAccounts: make(map[string]string),
		savingsBalance:  make(map[string]float64),
		checkingBalance: make(map[string]float64),
		totalSpend:      make(map[string]float64),
		merchantCols:    make(map[string]map[string]*merchantCol),
		savingsInflow:   make(map[string]float64),
		savingsOutflow:  make(map[string]float64),
		interest:        make(map[string]float64),
		minPaymentOnly:  make(map[string]bool),
		payroll:         make(map[string][]occurrence),
	}
	for _, id := range userIDs {
		b.requested[id] = true
	}
	return b
}

func (b *batchState) scanAccounts(accounts []domain.Account) {
	for _, a := range accounts {
		if !b.requested[a.UserID] {
			continue
		}
		// The classifications below are not mutually exclusive: a depository
		// account can count toward both savings and checking totals, exactly
		// as the per-user detectors see it.
		if a.Type == domain.AccountTypeCredit && a.Limit > 0 {
			b.creditBalance[a.UserID] += a.Balance
			b.creditLimit[a.UserID] += a.Limit
			b.eligibleCredit[a.AccountID] = a.Balance
			b.creditOwner[a.AccountID] = a.UserID
			b.utilAccounts[a.UserID] = append(b.utilAccounts[a.UserID], domain.UtilizationAccount{
				AccountID:   a.AccountID,
				Name:        a.Name,
				Mask:        a.Mask,
				Subtype:     a.Subtype,
				Balance:     a.Balance,
				Limit:       a.Limit,
				Utilization: round2(a.Balance / a.Limit * 100),
			})
		}
		if isSavingsAccount(a) {
			b.savingsAccounts[a.AccountID] = a.UserID
			b.savingsBalance[a.UserID] += a.Balance
		}
		if a.Type == domain.AccountTypeDepository && strings.EqualFold(a.Subtype, "checking") {
			b.checkingBalance[a.UserID] += a.Balance
		}
	}
}

func (b *batchState) scanTransactions(txns []domain.Transaction, window domain.TimeWindow, asOf time.Time) {
	for _, t := range txns {
		if !b.requested[t.UserID] || !inWindow(t, window, asOf) {
			continue
		}

		if t.Amount < 0 {
			b.totalSpend[t.UserID] += -t.Amount
			b.accumulateMerchant(t)
			b.accumulateInterest(t)
		} else if t.Amount > 0 {
			b.checkMinimumPayment(t)
		}

		if owner, ok := b.savingsAccounts[t.AccountID]; ok && owner == t.UserID {
			if t.Amount > 0 {
				b.savingsInflow[t.UserID] += t.Amount
			} else {
				b.savingsOutflow[t.UserID] += -t.Amount
			}
		}

		if isPayrollTransaction(t) {
			b.payroll[t.UserID] = append(b.payroll[t.UserID], occurrence{date: t.EffectiveDate(), id: t.TransactionID})
		}
	}
}

func (b *batchState) accumulateMerchant(t domain.Transaction) {
	if t.MerchantName == "" {
		return
	}
	cols, ok := b.merchantCols[t.UserID]
	if !ok {
		cols = make(map[string]*merchantCol)
		b.merchantCols[t.UserID] = cols
	}
	col, ok := cols[t.MerchantName]
	if !ok {
		col = &merchantCol{channels: make(map[string]int)}
		cols[t.MerchantName] = col
	}
	col.occurrences = append(col.occurrences, occurrence{date: t.EffectiveDate(), id: t.TransactionID})
	col.amounts = append(col.amounts, -t.Amount)
	col.channels[t.PaymentChannel]++
	if t.PaymentChannel == domain.ChannelOnline {
		col.online++
	}
}

func (b *batchState) accumulateInterest(t domain.Transaction) {
	userID, ok := b.creditOwner[t.AccountID]
	if !ok || userID != t.UserID {
		return
	}
	merchant := strings.ToLower(t.MerchantName)
	if strings.Contains(merchant, "interest") || strings.Contains(merchant, "fee") ||
		domain.CategoryContains(t.Category, "interest") || domain.CategoryContains(t.Category, "fee") {
		b.interest[userID] += -t.Amount
	}
}

func (b *batchState) checkMinimumPayment(t domain.Transaction) {
	balance, ok := b.eligibleCredit[t.AccountID]
	if !ok || b.creditOwner[t.AccountID] != t.UserID {
		return
	}
	estMin := math.Max(balance*minimumPaymentRate, minimumPaymentFloor)
	if math.Abs(t.Amount-estMin) <= minimumPaymentTolerance {
		b.minPaymentOnly[t.UserID] = true
	}
}

func (b *batchState) finalize(userID string, window domain.TimeWindow) domain.SignalBundle {
	return domain.SignalBundle{
		UserID:            userID,
		TimeWindow:        window,
		Subscriptions:     b.finalizeSubscriptions(userID),
		CreditUtilization: b.finalizeCredit(userID),
		SavingsBehavior:   b.finalizeSavings(userID, window),
		IncomeStability:   b.finalizeIncome(userID, window),
	}
}

func (b *batchState) finalizeSubscriptions(userID string) domain.Subscriptions {
	out := domain.Subscriptions{
		RecurringMerchants: []string{},
		MerchantDetails:    []domain.MerchantDetail{},
	}

	cols := b.merchantCols[userID]
	merchants := make([]string, 0, len(cols))
	for m := range cols {
		merchants = append(merchants, m)
	}
	sort.Strings(merchants)

	var monthlyRecurring float64
	for _, merchant := range merchants {
		col := cols[merchant]
		if len(col.occurrences) < minOccurrences {
			continue
		}
		detail, ok := col.classify(merchant)
		if !ok {
			continue
		}
		out.RecurringMerchants = append(out.RecurringMerchants, merchant)
		out.MerchantDetails = append(out.MerchantDetails, detail)
		monthlyRecurring += detail.MonthlyEquivalent
	}

	out.MonthlyRecurring = round2(monthlyRecurring)
	if spend := b.totalSpend[userID]; spend > 0 {
		out.SubscriptionShare = round2(out.MonthlyRecurring / spend * 100)
	}
	return out
}

// classify mirrors classifyMerchant over columnar accumulators.
func (c *merchantCol) classify(merchant string) (domain.MerchantDetail, bool) {
	occ := append([]occurrence(nil), c.occurrences...)
	sort.Slice(occ, func(i, j int) bool {
		if !occ[i].date.Equal(occ[j].date) {
			return occ[i].date.Before(occ[j].date)
		}
		return occ[i].id < occ[j].id
	})

	gaps := make([]float64, 0, len(occ)-1)
	for i := 1; i < len(occ); i++ {
		gaps = append(gaps, occ[i].date.Sub(occ[i-1].date).Hours()/24.0)
	}
	meanGap := mean(gaps)

	var frequency string
	switch {
	case meanGap >= monthlyGapMin && meanGap <= monthlyGapMax:
		frequency = "monthly"
	case meanGap >= weeklyGapMin && meanGap <= weeklyGapMax:
		frequency = "weekly"
	default:
		return domain.MerchantDetail{}, false
	}

	onlineRatio := float64(c.online) / float64(len(occ))
	if onlineRatio < 0.5 && len(occ) < minOccurrences+1 {
		return domain.MerchantDetail{}, false
	}

	avgAmount := round2(mean(c.amounts))
	monthlyEquivalent := avgAmount
	if frequency == "weekly" {
		monthlyEquivalent = round2(avgAmount * weeksPerMonth)
	}

	return domain.MerchantDetail{
		Merchant:          merchant,
		Frequency:         frequency,
		Amount:            avgAmount,
		MonthlyEquivalent: monthlyEquivalent,
		Occurrences:       len(occ),
		PaymentChannel:    modalChannel(c.channels),
		OnlineRatio:       round2(onlineRatio),
	}, true
}

func (b *batchState) finalizeCredit(userID string) domain.CreditUtilization {
	out := domain.CreditUtilization{
		UtilizationLevel: "low",
		Accounts:         []domain.UtilizationAccount{},
	}
	accounts := b.utilAccounts[userID]
	if len(accounts) == 0 {
		return out
	}

	out.Accounts = accounts
	out.TotalUtilization = round2(b.creditBalance[userID] / b.creditLimit[userID] * 100)
	switch {
	case out.TotalUtilization >= utilizationHigh:
		out.UtilizationLevel = "high"
	case out.TotalUtilization >= utilizationMedium:
		out.UtilizationLevel = "medium"
	}

	out.InterestCharged = round2(b.interest[userID])
	out.MinimumPaymentOnly = b.minPaymentOnly[userID]
	out.IsOverdue = out.TotalUtilization >= overdueUtilization || out.InterestCharged > 0
	return out
}

func (b *batchState) finalizeSavings(userID string, window domain.TimeWindow) domain.SavingsBehavior {
	out := domain.SavingsBehavior{CoverageLevel: "low"}

	hasSavings := false
	for _, owner := range b.savingsAccounts {
		if owner == userID {
			hasSavings = true
			break
		}
	}
	if !hasSavings {
		return out
	}

	out.TotalSavings = round2(b.savingsBalance[userID])
	out.NetInflow = round2(b.savingsInflow[userID] - b.savingsOutflow[userID])

	opening := out.TotalSavings - out.NetInflow
	if opening > 0 {
		out.GrowthRate = round2(out.NetInflow / opening * 100)
	}

	avgMonthlyExpenses := b.totalSpend[userID] / window.Months()
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

func (b *batchState) finalizeIncome(userID string, window domain.TimeWindow) domain.IncomeStability {
	out := domain.IncomeStability{Frequency: "unknown"}

	payroll := b.payroll[userID]
	out.PayrollCount = len(payroll)
	if len(payroll) < 2 {
		return out
	}

	sorted := append([]occurrence(nil), payroll...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].date.Equal(sorted[j].date) {
			return sorted[i].date.Before(sorted[j].date)
		}
		return sorted[i].id < sorted[j].id
	})

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].date.Sub(sorted[i-1].date).Hours()/24.0)
	}

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

	out.AvgMonthlyExpenses = round2(b.totalSpend[userID] / window.Months())
	if out.AvgMonthlyExpenses > 0 {
		out.CashFlowBuffer = round2(b.checkingBalance[userID] / out.AvgMonthlyExpenses)
	}
	return out
}
