package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeWindow is the lookback horizon over which behavioral signals are computed.
type TimeWindow string

const (
	Window30d  TimeWindow = "30d"
	Window180d TimeWindow = "180d"
)

// Windows lists every supported window in ascending order.
var Windows = []TimeWindow{Window30d, Window180d}

// Days returns the window length in days.
func (w TimeWindow) Days() int {
	switch w {
	case Window30d:
		return 30
	case Window180d:
		return 180
	default:
		return 0
	}
}

// Months returns the window length in 30-day months.
func (w TimeWindow) Months() float64 {
	return float64(w.Days()) / 30.0
}

// ParseTimeWindow validates a window string from an API or CLI parameter.
func ParseTimeWindow(s string) (TimeWindow, error) {
	switch TimeWindow(s) {
	case Window30d:
		return Window30d, nil
	case Window180d:
		return Window180d, nil
	default:
		return "", fmt.Errorf("ParseTimeWindow: unknown time window %q", s)
	}
}

// Persona is one of the five mutually-exclusive behavioral classifications.
type Persona string

const (
	PersonaHighUtilization   Persona = "high_utilization"
	PersonaVariableIncome    Persona = "variable_income"
	PersonaSubscriptionHeavy Persona = "subscription_heavy"
	PersonaSavingsBuilder    Persona = "savings_builder"
	PersonaGeneralWellness   Persona = "general_wellness"
)

// Personas lists all personas in classifier priority order.
// general_wellness is the universal fallback and must stay last.
var Personas = []Persona{
	PersonaHighUtilization,
	PersonaVariableIncome,
	PersonaSubscriptionHeavy,
	PersonaSavingsBuilder,
	PersonaGeneralWellness,
}

// SignalType identifies one of the four behavioral signal categories.
type SignalType string

const (
	SignalSubscriptions     SignalType = "subscriptions"
	SignalCreditUtilization SignalType = "credit_utilization"
	SignalSavingsBehavior   SignalType = "savings_behavior"
	SignalIncomeStability   SignalType = "income_stability"
)

// SignalTypes lists every signal type in canonical order.
var SignalTypes = []SignalType{
	SignalSubscriptions,
	SignalCreditUtilization,
	SignalSavingsBehavior,
	SignalIncomeStability,
}

// Account types as they appear in the ledger.
const (
	AccountTypeDepository = "depository"
	AccountTypeCredit     = "credit"
	AccountTypeLoan       = "loan"
)

// Payment channels observed on transactions.
const (
	ChannelOnline  = "online"
	ChannelInStore = "in store"
	ChannelOther   = "other"
)

// Transaction is an immutable ledger entry. Amount is signed: negative values
// are spend, positive values are inflows.
type Transaction struct {
	TransactionID  string     `json:"transaction_id"`
	AccountID      string     `json:"account_id"`
	UserID         string     `json:"user_id"`
	Date           time.Time  `json:"date"`
	Amount         float64    `json:"amount"`
	MerchantName   string     `json:"merchant_name"`
	Category       []string   `json:"category"`
	Pending        bool       `json:"pending"`
	PaymentChannel string     `json:"payment_channel"`
	AuthorizedDate *time.Time `json:"authorized_date,omitempty"`
}

// EffectiveDate prefers the authorization date over the posting date when
// ordering occurrences of a merchant.
func (t Transaction) EffectiveDate() time.Time {
	if t.AuthorizedDate != nil && !t.AuthorizedDate.IsZero() {
		return *t.AuthorizedDate
	}
	return t.Date
}

// Account is a bank or card account owned by a user. Limit is zero for
// accounts without a credit limit.
type Account struct {
	AccountID string  `json:"account_id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	Subtype   string  `json:"subtype"`
	Name      string  `json:"name"`
	Mask      string  `json:"mask"`
	Balance   float64 `json:"balance"`
	Limit     float64 `json:"limit"`
}

// User is a profile row for the consumer being classified. Flagged marks the
// user for operator review.
type User struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Flagged   bool      `json:"flagged"`
	CreatedAt time.Time `json:"created_at"`
}

// MerchantDetail describes one detected recurring merchant.
type MerchantDetail struct {
	Merchant          string  `json:"merchant"`
	Frequency         string  `json:"frequency"`
	Amount            float64 `json:"amount"`
	MonthlyEquivalent float64 `json:"monthly_equivalent"`
	Occurrences       int     `json:"occurrences"`
	PaymentChannel    string  `json:"payment_channel"`
	OnlineRatio       float64 `json:"online_ratio"`
}

// Subscriptions summarizes recurring spend detected in the window.
type Subscriptions struct {
	RecurringMerchants []string         `json:"recurring_merchants"`
	MonthlyRecurring   float64          `json:"monthly_recurring"`
	SubscriptionShare  float64          `json:"subscription_share"`
	MerchantDetails    []MerchantDetail `json:"merchant_details"`
}

// UtilizationAccount is the per-card breakdown inside CreditUtilization.
type UtilizationAccount struct {
	AccountID   string  `json:"account_id"`
	Name        string  `json:"name"`
	Mask        string  `json:"mask"`
	Subtype     string  `json:"subtype"`
	Balance     float64 `json:"balance"`
	Limit       float64 `json:"limit"`
	Utilization float64 `json:"utilization"`
}

// CreditUtilization summarizes revolving credit usage. Only accounts with a
// positive limit participate in the math.
type CreditUtilization struct {
	TotalUtilization   float64              `json:"total_utilization"`
	UtilizationLevel   string               `json:"utilization_level"`
	Accounts           []UtilizationAccount `json:"accounts"`
	InterestCharged    float64              `json:"interest_charged"`
	MinimumPaymentOnly bool                 `json:"minimum_payment_only"`
	IsOverdue          bool                 `json:"is_overdue"`
}

// SavingsBehavior summarizes activity on savings-type accounts.
type SavingsBehavior struct {
	TotalSavings          float64 `json:"total_savings"`
	GrowthRate            float64 `json:"growth_rate"`
	NetInflow             float64 `json:"net_inflow"`
	EmergencyFundCoverage float64 `json:"emergency_fund_coverage"`
	CoverageLevel         string  `json:"coverage_level"`
}

// IncomeStability summarizes payroll cadence and cash-flow headroom.
type IncomeStability struct {
	Frequency          string  `json:"frequency"`
	MedianPayGap       float64 `json:"median_pay_gap"`
	GapStddev          float64 `json:"gap_stddev"`
	IrregularFrequency bool    `json:"irregular_frequency"`
	CashFlowBuffer     float64 `json:"cash_flow_buffer"`
	AvgMonthlyExpenses float64 `json:"avg_monthly_expenses"`
	PayrollCount       int     `json:"payroll_count"`
}

// SignalBundle groups the four signal payloads for one (user, window).
// Detectors guarantee zero-valued structures when data is absent, so every
// field is always safe to read.
type SignalBundle struct {
	UserID            string            `json:"user_id"`
	TimeWindow        TimeWindow        `json:"time_window"`
	Subscriptions     Subscriptions     `json:"subscriptions"`
	CreditUtilization CreditUtilization `json:"credit_utilization"`
	SavingsBehavior   SavingsBehavior   `json:"savings_behavior"`
	IncomeStability   IncomeStability   `json:"income_stability"`
}

// Signal is the persisted form of one signal payload, keyed by
// (user_id, time_window, signal_type). Recomputation upserts the row.
type Signal struct {
	UserID     string          `json:"user_id"`
	TimeWindow TimeWindow      `json:"time_window"`
	SignalType SignalType      `json:"signal_type"`
	Data       json.RawMessage `json:"signal_data"`
	ComputedAt time.Time       `json:"computed_at"`
}

// MatchSet carries the independent match percentage for every persona.
// Values are 0-100 and deliberately do not sum to 100.
type MatchSet struct {
	HighUtilization   float64 `json:"match_high_utilization"`
	VariableIncome    float64 `json:"match_variable_income"`
	SubscriptionHeavy float64 `json:"match_subscription_heavy"`
	SavingsBuilder    float64 `json:"match_savings_builder"`
	GeneralWellness   float64 `json:"match_general_wellness"`
}

// For returns the match percentage for a persona.
func (m MatchSet) For(p Persona) float64 {
	switch p {
	case PersonaHighUtilization:
		return m.HighUtilization
	case PersonaVariableIncome:
		return m.VariableIncome
	case PersonaSubscriptionHeavy:
		return m.SubscriptionHeavy
	case PersonaSavingsBuilder:
		return m.SavingsBuilder
	case PersonaGeneralWellness:
		return m.GeneralWellness
	default:
		return 0
	}
}

// Set stores the match percentage for a persona.
func (m *MatchSet) Set(p Persona, v float64) {
	switch p {
	case PersonaHighUtilization:
		m.HighUtilization = v
	case PersonaVariableIncome:
		m.VariableIncome = v
	case PersonaSubscriptionHeavy:
		m.SubscriptionHeavy = v
	case PersonaSavingsBuilder:
		m.SavingsBuilder = v
	case PersonaGeneralWellness:
		m.GeneralWellness = v
	}
}

// PersonaAssignment is the classifier output for one (user, window).
// Exactly one persona is primary; recomputation upserts the row.
type PersonaAssignment struct {
	UserID      string     `json:"user_id"`
	TimeWindow  TimeWindow `json:"time_window"`
	Persona     Persona    `json:"persona"`
	Matches     MatchSet   `json:"matches"`
	CriteriaMet []string   `json:"criteria_met"`
	AssignedAt  time.Time  `json:"assigned_at"`
}

// RecommendationType distinguishes education cards from partner offers.
type RecommendationType string

const (
	RecommendationEducation    RecommendationType = "education"
	RecommendationPartnerOffer RecommendationType = "partner_offer"
)

// Recommendation is one generated, auditable recommendation. Records are
// append-only; the override fields are the only ones ever mutated.
type Recommendation struct {
	RecommendationID string             `json:"recommendation_id"`
	UserID           string             `json:"user_id"`
	Type             RecommendationType `json:"type"`
	ContentID        string             `json:"content_id"`
	Title            string             `json:"title"`
	Rationale        string             `json:"rationale"`
	DecisionTrace    json.RawMessage    `json:"decision_trace"`
	ShownAt          time.Time          `json:"shown_at"`
	Overridden       bool               `json:"overridden"`
	OverrideReason   string             `json:"override_reason,omitempty"`
	OverriddenBy     string             `json:"overridden_by,omitempty"`
	OverriddenAt     *time.Time         `json:"overridden_at,omitempty"`
}

// ChatLog is one guarded chat exchange, kept for the audit timeline.
type ChatLog struct {
	ChatID           string          `json:"chat_id"`
	UserID           string          `json:"user_id"`
	Message          string          `json:"message"`
	Response         string          `json:"response"`
	Citations        json.RawMessage `json:"citations,omitempty"`
	GuardrailsPassed bool            `json:"guardrails_passed"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Operator action types recorded against recommendations and users.
const (
	ActionOverride = "override"
	ActionFlag     = "flag"
)

// OperatorAction is a human intervention: overriding a recommendation or
// flagging a user for review.
type OperatorAction struct {
	ActionID         string    `json:"action_id"`
	UserID           string    `json:"user_id"`
	OperatorID       string    `json:"operator_id"`
	ActionType       string    `json:"action_type"`
	RecommendationID string    `json:"recommendation_id,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
