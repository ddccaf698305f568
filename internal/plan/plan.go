// Package plan turns computed signals into concrete money plans: a budget
// breakdown, subscription trims, balance-transfer payoff math, and an
// emergency-fund timeline. Simulations step month by month, so everything
// runs on decimals to keep repeated additions exact.
package plan

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/spendsense/spendsense/internal/domain"
)

// Standard offer assumptions applied when an input field is zero-valued.
var (
	DefaultTransferFeePct = decimal.NewFromInt(5)
	DefaultRegularAPR     = decimal.NewFromInt(20)
	DefaultCardAPR        = decimal.NewFromFloat(24.99)
)

const (
	// DefaultIntroMonths is the promo window assumed for transfer offers.
	DefaultIntroMonths = 18
	// payoffCapMonths bounds every payoff simulation at ten years.
	payoffCapMonths = 120
	// emergencyFundMonths is the coverage target behind the fund timeline.
	emergencyFundMonths = 3
)

var (
	hundred         = decimal.NewFromInt(100)
	twelve          = decimal.NewFromInt(12)
	minPaymentRate  = decimal.NewFromFloat(0.02)
	minPaymentFloor = decimal.NewFromInt(25)
	payoffEpsilon   = decimal.NewFromFloat(0.01)
	tightThreshold  = decimal.NewFromFloat(0.9)
)

// BalanceTransferInput describes the card debt and the transfer offer.
// Zero-valued offer fields fall back to the standard assumptions; a zero
// MonthlyPayment means estimate the issuer minimum (2% of balance, $25
// floor).
type BalanceTransferInput struct {
	Balance        decimal.Decimal
	CurrentAPR     decimal.Decimal
	TransferFeePct decimal.Decimal
	IntroAPR       decimal.Decimal
	IntroMonths    int
	MonthlyPayment decimal.Decimal
	RegularAPR     decimal.Decimal
}

// BalanceTransferResult compares paying the card down in place against
// moving the balance onto the offer.
type BalanceTransferResult struct {
	TransferFee         decimal.Decimal `json:"transfer_fee"`
	NewBalance          decimal.Decimal `json:"new_balance"`
	MonthlyPayment      decimal.Decimal `json:"monthly_payment_needed"`
	PayoffMonths        int             `json:"payoff_months"`
	CurrentPayoffMonths int             `json:"payoff_months_current"`
	InterestCurrent     decimal.Decimal `json:"total_interest_current"`
	InterestTransfer    decimal.Decimal `json:"total_interest_new"`
	TotalSavings        decimal.Decimal `json:"total_savings"`
	MonthlySavings      decimal.Decimal `json:"monthly_savings"`
}

// monthlyRate converts an annual percentage rate to a monthly multiplier.
func monthlyRate(apr decimal.Decimal) decimal.Decimal {
	return apr.Div(twelve).Div(hundred)
}

// simulatePayoff walks a balance month by month at the given APR, returning
// the interest accrued and the months elapsed. The walk stops once the
// balance clears or maxMonths pass; a payment below the monthly interest
// never clears, which is exactly what the cap reports.
func simulatePayoff(balance, apr, payment decimal.Decimal, maxMonths int) (decimal.Decimal, int) {
	rate := monthlyRate(apr)
	interest := decimal.Zero
	months := 0
	for balance.GreaterThan(payoffEpsilon) && months < maxMonths {
		charge := balance.Mul(rate)
		interest = interest.Add(charge)
		balance = balance.Add(charge).Sub(payment)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		months++
	}
	return interest, months
}

// BalanceTransferSavings simulates both payoff paths and nets the transfer
// fee out of the interest saved.
func BalanceTransferSavings(in BalanceTransferInput) BalanceTransferResult {
	feePct := in.TransferFeePct
	if feePct.IsZero() {
		feePct = DefaultTransferFeePct
	}
	introMonths := in.IntroMonths
	if introMonths <= 0 {
		introMonths = DefaultIntroMonths
	}
	regularAPR := in.RegularAPR
	if regularAPR.IsZero() {
		regularAPR = DefaultRegularAPR
	}

	fee := in.Balance.Mul(feePct).Div(hundred)
	newBalance := in.Balance.Add(fee)

	payment := in.MonthlyPayment
	if payment.LessThanOrEqual(decimal.Zero) {
		payment = decimal.Max(newBalance.Mul(minPaymentRate), minPaymentFloor)
	}

	// Intro period on the new card, then the regular rate on whatever is
	// left.
	introRate := monthlyRate(in.IntroAPR)
	introBalance := newBalance
	introInterest := decimal.Zero
	payoffMonths := 0
	for introBalance.GreaterThan(payoffEpsilon) && payoffMonths < introMonths {
		charge := introBalance.Mul(introRate)
		introInterest = introInterest.Add(charge)
		introBalance = introBalance.Add(charge).Sub(payment)
		if introBalance.IsNegative() {
			introBalance = decimal.Zero
		}
		payoffMonths++
	}

	transferInterest := introInterest
	if introBalance.GreaterThan(decimal.Zero) {
		post, _ := simulatePayoff(introBalance, regularAPR, payment, payoffCapMonths)
		transferInterest = transferInterest.Add(post)
	}

	currentInterest, currentMonths := simulatePayoff(in.Balance, in.CurrentAPR, payment, payoffCapMonths)

	savings := currentInterest.Sub(transferInterest).Sub(fee)

	monthlySavings := decimal.Zero
	if payoffMonths > 0 {
		monthlySavings = in.Balance.Mul(monthlyRate(in.CurrentAPR)).Sub(in.Balance.Mul(introRate))
	}

	return BalanceTransferResult{
		TransferFee:         fee.Round(2),
		NewBalance:          newBalance.Round(2),
		MonthlyPayment:      payment.Round(2),
		PayoffMonths:        payoffMonths,
		CurrentPayoffMonths: currentMonths,
		InterestCurrent:     currentInterest.Round(2),
		InterestTransfer:    transferInterest.Round(2),
		TotalSavings:        savings.Round(2),
		MonthlySavings:      monthlySavings.Round(2),
	}
}

// CanceledSubscription is one merchant in the trim list.
type CanceledSubscription struct {
	Merchant       string          `json:"merchant"`
	MonthlySavings decimal.Decimal `json:"monthly_savings"`
}

// SubscriptionSavingsResult totals the recurring spend freed by the trim.
type SubscriptionSavingsResult struct {
	MonthlySavings decimal.Decimal        `json:"monthly_savings"`
	YearlySavings  decimal.Decimal        `json:"yearly_savings"`
	CanceledCount  int                    `json:"canceled_count"`
	Canceled       []CanceledSubscription `json:"canceled"`
}

// SubscriptionSavings sums the monthly equivalents of the selected
// merchants. Out-of-range indices are ignored; a merchant without a monthly
// equivalent contributes its raw charge amount.
func SubscriptionSavings(subs []domain.MerchantDetail, selected []int) SubscriptionSavingsResult {
	out := SubscriptionSavingsResult{
		MonthlySavings: decimal.Zero,
		YearlySavings:  decimal.Zero,
		Canceled:       []CanceledSubscription{},
	}
	for _, i := range selected {
		if i < 0 || i >= len(subs) {
			continue
		}
		sub := subs[i]
		monthly := decimal.NewFromFloat(sub.MonthlyEquivalent)
		if monthly.IsZero() {
			monthly = decimal.NewFromFloat(sub.Amount)
		}
		out.Canceled = append(out.Canceled, CanceledSubscription{
			Merchant:       sub.Merchant,
			MonthlySavings: monthly.Round(2),
		})
		out.MonthlySavings = out.MonthlySavings.Add(monthly)
	}
	out.CanceledCount = len(out.Canceled)
	out.MonthlySavings = out.MonthlySavings.Round(2)
	out.YearlySavings = out.MonthlySavings.Mul(twelve).Round(2)
	return out
}

// GoalTimelineResult reports how long a savings goal takes at the current
// rate. MonthsNeeded is zero when the goal is unreachable or already met.
type GoalTimelineResult struct {
	MonthsNeeded int             `json:"months_needed"`
	YearsNeeded  decimal.Decimal `json:"years_needed"`
	AmountNeeded decimal.Decimal `json:"amount_needed"`
	Achievable   bool            `json:"is_achievable"`
}

// SavingsGoalTimeline computes the months to close the gap between current
// savings and the goal at the given monthly contribution.
func SavingsGoalTimeline(current, goal, monthlyRate decimal.Decimal) GoalTimelineResult {
	amountNeeded := decimal.Max(decimal.Zero, goal.Sub(current))
	out := GoalTimelineResult{
		YearsNeeded:  decimal.Zero,
		AmountNeeded: amountNeeded.Round(2),
	}
	if amountNeeded.IsZero() {
		out.Achievable = true
		return out
	}
	if monthlyRate.LessThanOrEqual(decimal.Zero) {
		return out
	}

	months := amountNeeded.Div(monthlyRate).Ceil().IntPart()
	out.MonthsNeeded = int(months)
	out.YearsNeeded = decimal.NewFromInt(months).Div(twelve).Round(2)
	out.Achievable = true
	return out
}

// essentialCategories mark spending that belongs in the essentials bucket.
// Matching is a substring test, so "Debt Payments" covers "Credit Card Debt
// Payments" and the like.
var essentialCategories = []string{
	"Housing", "Utilities", "Transportation", "Groceries",
	"Healthcare", "Insurance", "Debt Payments",
}

func isEssential(category string) bool {
	lower := strings.ToLower(category)
	for _, essential := range essentialCategories {
		if strings.Contains(lower, strings.ToLower(essential)) {
			return true
		}
	}
	return false
}

// CategorySpend is one category's average monthly outflow.
type CategorySpend struct {
	Category string
	Amount   decimal.Decimal
}

// CategoryAllocation grades one category against its bucket target.
type CategoryAllocation struct {
	Category       string          `json:"category"`
	CurrentSpend   decimal.Decimal `json:"current_spending"`
	RecommendedMax decimal.Decimal `json:"recommended_max"`
	Type           string          `json:"type"`
	OverBudget     bool            `json:"over_budget"`
}

// BudgetBreakdownResult is the recommended split of monthly income across
// essentials, savings, and discretionary spending.
type BudgetBreakdownResult struct {
	EssentialsTarget     decimal.Decimal      `json:"essentials_target"`
	SavingsTarget        decimal.Decimal      `json:"savings_target"`
	DiscretionaryTarget  decimal.Decimal      `json:"discretionary_target"`
	EssentialsPercent    decimal.Decimal      `json:"essentials_percent"`
	SavingsPercent       decimal.Decimal      `json:"savings_percent"`
	DiscretionaryPercent decimal.Decimal      `json:"discretionary_percent"`
	Allocations          []CategoryAllocation `json:"category_allocations"`
	CurrentEssentials    decimal.Decimal      `json:"current_essentials"`
	CurrentDiscretionary decimal.Decimal      `json:"current_discretionary"`
	Rationale            string               `json:"rationale"`
}

// displayUSD renders a decimal dollar amount like $3,500.00.
func displayUSD(d decimal.Decimal) string {
	cents := d.Mul(hundred).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// BudgetBreakdown applies the 50/30/20 rule to monthly income, tightening to
// 60/20/20 when expenses run above 90% of income, and grades each spending
// category against its bucket.
func BudgetBreakdown(income, expenses decimal.Decimal, spending []CategorySpend) BudgetBreakdownResult {
	essentialsPct := decimal.NewFromFloat(0.50)
	savingsPct := decimal.NewFromFloat(0.20)
	discretionaryPct := decimal.NewFromFloat(0.30)
	tight := expenses.GreaterThan(income.Mul(tightThreshold))
	if tight {
		essentialsPct = decimal.NewFromFloat(0.60)
		discretionaryPct = decimal.NewFromFloat(0.20)
	}

	essentialsTarget := income.Mul(essentialsPct)
	savingsTarget := income.Mul(savingsPct)
	discretionaryTarget := income.Mul(discretionaryPct)

	allocations := make([]CategoryAllocation, 0, len(spending))
	currentEssentials := decimal.Zero
	currentDiscretionary := decimal.Zero
	for _, cs := range spending {
		target := discretionaryTarget
		allocationType := "discretionary"
		if isEssential(cs.Category) {
			target = essentialsTarget
			allocationType = "essential"
			currentEssentials = currentEssentials.Add(cs.Amount)
		} else {
			currentDiscretionary = currentDiscretionary.Add(cs.Amount)
		}
		allocations = append(allocations, CategoryAllocation{
			Category:       cs.Category,
			CurrentSpend:   cs.Amount.Round(2),
			RecommendedMax: target.Round(2),
			Type:           allocationType,
			OverBudget:     cs.Amount.GreaterThan(target),
		})
	}

	var rationale string
	switch {
	case expenses.GreaterThan(income):
		rationale = fmt.Sprintf(
			"Your expenses (%s/month) exceed your income (%s/month). We recommend focusing on essentials first, then building savings when cash flow improves.",
			displayUSD(expenses), displayUSD(income))
	case tight:
		rationale = fmt.Sprintf(
			"Your expenses are %s/month, which is quite tight. Consider reducing discretionary spending to build a buffer.",
			displayUSD(expenses))
	default:
		rationale = fmt.Sprintf(
			"Based on your average income of %s/month, we recommend allocating %s%% to essentials, %s%% to savings, and %s%% to discretionary spending.",
			displayUSD(income),
			essentialsPct.Mul(hundred).StringFixed(0),
			savingsPct.Mul(hundred).StringFixed(0),
			discretionaryPct.Mul(hundred).StringFixed(0))
	}

	return BudgetBreakdownResult{
		EssentialsTarget:     essentialsTarget.Round(2),
		SavingsTarget:        savingsTarget.Round(2),
		DiscretionaryTarget:  discretionaryTarget.Round(2),
		EssentialsPercent:    essentialsPct.Mul(hundred),
		SavingsPercent:       savingsPct.Mul(hundred),
		DiscretionaryPercent: discretionaryPct.Mul(hundred),
		Allocations:          allocations,
		CurrentEssentials:    currentEssentials.Round(2),
		CurrentDiscretionary: currentDiscretionary.Round(2),
		Rationale:            rationale,
	}
}

// EmergencyFundPlan is the goal timeline toward three months of expenses.
type EmergencyFundPlan struct {
	GoalAmount decimal.Decimal `json:"goal_amount"`
	GoalTimelineResult
}

// ActionPlan combines the calculators into one user-facing plan.
type ActionPlan struct {
	UserID          string                     `json:"user_id"`
	TimeWindow      domain.TimeWindow          `json:"time_window"`
	Budget          BudgetBreakdownResult      `json:"budget"`
	Subscriptions   *SubscriptionSavingsResult `json:"subscription_savings,omitempty"`
	BalanceTransfer *BalanceTransferResult     `json:"balance_transfer,omitempty"`
	EmergencyFund   *EmergencyFundPlan         `json:"emergency_fund,omitempty"`
}

// Build assembles the plan a user sees: budget targets always, the optional
// sections only when the signals show something to act on.
func Build(bundle domain.SignalBundle, monthlyIncome decimal.Decimal, spending []CategorySpend) ActionPlan {
	expenses := decimal.NewFromFloat(bundle.IncomeStability.AvgMonthlyExpenses)
	out := ActionPlan{
		UserID:     bundle.UserID,
		TimeWindow: bundle.TimeWindow,
		Budget:     BudgetBreakdown(monthlyIncome, expenses, spending),
	}

	if details := bundle.Subscriptions.MerchantDetails; len(details) > 0 {
		all := make([]int, len(details))
		for i := range details {
			all[i] = i
		}
		savings := SubscriptionSavings(details, all)
		out.Subscriptions = &savings
	}

	cardBalance := decimal.Zero
	for _, acct := range bundle.CreditUtilization.Accounts {
		if acct.Balance > 0 {
			cardBalance = cardBalance.Add(decimal.NewFromFloat(acct.Balance))
		}
	}
	if cardBalance.GreaterThan(decimal.Zero) {
		transfer := BalanceTransferSavings(BalanceTransferInput{
			Balance:    cardBalance,
			CurrentAPR: DefaultCardAPR,
		})
		out.BalanceTransfer = &transfer
	}

	if months := bundle.TimeWindow.Months(); expenses.GreaterThan(decimal.Zero) && months > 0 {
		goal := expenses.Mul(decimal.NewFromInt(emergencyFundMonths))
		monthlyInflow := decimal.NewFromFloat(bundle.SavingsBehavior.NetInflow).
			Div(decimal.NewFromFloat(months))
		timeline := SavingsGoalTimeline(decimal.NewFromFloat(bundle.SavingsBehavior.TotalSavings), goal, monthlyInflow)
		out.EmergencyFund = &EmergencyFundPlan{
			GoalAmount:         goal.Round(2),
			GoalTimelineResult: timeline,
		}
	}

	return out
}
