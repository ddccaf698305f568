package signals

import (
	"sort"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Recurring-cadence bounds in days. A merchant's mean charge interval must
// land inside one of these bands to count as a subscription.
const (
	monthlyGapMin = 25.0
	monthlyGapMax = 34.0
	weeklyGapMin  = 6.0
	weeklyGapMax  = 8.0

	// weeksPerMonth converts a weekly charge into its monthly equivalent.
	weeksPerMonth = 4.33

	minOccurrences = 3
)

// DetectSubscriptions finds merchants charged on a regular cadence within the
// window. To suppress one-off look-alikes, a candidate must either be charged
// mostly through the online channel or recur at least four times.
func DetectSubscriptions(txns []domain.Transaction, window domain.TimeWindow, asOf time.Time) domain.Subscriptions {
	out := domain.Subscriptions{
		RecurringMerchants: []string{},
		MerchantDetails:    []domain.MerchantDetail{},
	}

	var totalSpend float64
	byMerchant := make(map[string][]domain.Transaction)
	for _, t := range windowTransactions(txns, window, asOf) {
		if t.Amount >= 0 {
			continue
		}
		totalSpend += -t.Amount
		if t.MerchantName == "" {
			continue
		}
		byMerchant[t.MerchantName] = append(byMerchant[t.MerchantName], t)
	}

	// Alphabetical merchant order keeps output identical across runs and
	// across the batch and per-user execution paths.
	merchants := make([]string, 0, len(byMerchant))
	for m := range byMerchant {
		merchants = append(merchants, m)
	}
	sort.Strings(merchants)

	var monthlyRecurring float64
	for _, merchant := range merchants {
		occurrences := byMerchant[merchant]
		if len(occurrences) < minOccurrences {
			continue
		}
		detail, ok := classifyMerchant(merchant, occurrences)
		if !ok {
			continue
		}
		out.RecurringMerchants = append(out.RecurringMerchants, merchant)
		out.MerchantDetails = append(out.MerchantDetails, detail)
		monthlyRecurring += detail.MonthlyEquivalent
	}

	out.MonthlyRecurring = round2(monthlyRecurring)
	if totalSpend > 0 {
		out.SubscriptionShare = round2(out.MonthlyRecurring / totalSpend * 100)
	}
	return out
}

// classifyMerchant decides whether one merchant's charges form a subscription
// and, if so, summarizes them.
func classifyMerchant(merchant string, occurrences []domain.Transaction) (domain.MerchantDetail, bool) {
	sortChronological(occurrences)

	gaps := dayGaps(occurrences)
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

	online := 0
	channelCounts := make(map[string]int)
	for _, t := range occurrences {
		channelCounts[t.PaymentChannel]++
		if t.PaymentChannel == domain.ChannelOnline {
			online++
		}
	}
	onlineRatio := float64(online) / float64(len(occurrences))
	if onlineRatio < 0.5 && len(occurrences) < minOccurrences+1 {
		return domain.MerchantDetail{}, false
	}

	amounts := make([]float64, 0, len(occurrences))
	for _, t := range occurrences {
		amounts = append(amounts, -t.Amount)
	}
	avgAmount := round2(mean(amounts))

	monthlyEquivalent := avgAmount
	if frequency == "weekly" {
		monthlyEquivalent = round2(avgAmount * weeksPerMonth)
	}

	return domain.MerchantDetail{
		Merchant:          merchant,
		Frequency:         frequency,
		Amount:            avgAmount,
		MonthlyEquivalent: monthlyEquivalent,
		Occurrences:       len(occurrences),
		PaymentChannel:    modalChannel(channelCounts),
		OnlineRatio:       round2(onlineRatio),
	}, true
}

// modalChannel returns the most frequent payment channel, preferring the
// lexicographically smaller name on ties so output is stable.
func modalChannel(counts map[string]int) string {
	var best string
	bestCount := -1
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if counts[name] > bestCount {
			best = name
			bestCount = counts[name]
		}
	}
	return best
}
