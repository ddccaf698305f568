package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/spendsense/spendsense/internal/domain"
)

// Row types mirror the dataset schema. Nullable columns use the bigquery
// wrapper types so streamed rows round-trip without sentinel values.

type UserRow struct {
	UserID    string    `bigquery:"user_id"`
	Name      string    `bigquery:"name"`
	Flagged   bool      `bigquery:"flagged"`
	CreatedAt time.Time `bigquery:"created_at"`
}

func rowFromUser(u domain.User) *UserRow {
	return &UserRow{UserID: u.UserID, Name: u.Name, Flagged: u.Flagged, CreatedAt: u.CreatedAt.UTC()}
}

func (r *UserRow) User() domain.User {
	return domain.User{UserID: r.UserID, Name: r.Name, Flagged: r.Flagged, CreatedAt: r.CreatedAt}
}

type AccountRow struct {
	AccountID string  `bigquery:"account_id"`
	UserID    string  `bigquery:"user_id"`
	Type      string  `bigquery:"type"`
	Subtype   string  `bigquery:"subtype"`
	Name      string  `bigquery:"name"`
	Mask      string  `bigquery:"mask"`
	Balance   float64 `bigquery:"balance"`
	// LIMIT is reserved in GoogleSQL, so the column is credit_limit here
	// even though the SQLite schema quotes "limit".
	CreditLimit float64 `bigquery:"credit_limit"`
}

func rowFromAccount(a domain.Account) *AccountRow {
	return &AccountRow{
		AccountID: a.AccountID, UserID: a.UserID, Type: a.Type, Subtype: a.Subtype,
		Name: a.Name, Mask: a.Mask, Balance: a.Balance, CreditLimit: a.Limit,
	}
}

func (r *AccountRow) Account() domain.Account {
	return domain.Account{
		AccountID: r.AccountID, UserID: r.UserID, Type: r.Type, Subtype: r.Subtype,
		Name: r.Name, Mask: r.Mask, Balance: r.Balance, Limit: r.CreditLimit,
	}
}

type TransactionRow struct {
	TransactionID  string            `bigquery:"transaction_id"`
	AccountID      string            `bigquery:"account_id"`
	UserID         string            `bigquery:"user_id"`
	Date           civil.Date        `bigquery:"date"`
	Amount         float64           `bigquery:"amount"`
	MerchantName   string            `bigquery:"merchant_name"`
	Category       []string          `bigquery:"category"`
	Pending        bool              `bigquery:"pending"`
	PaymentChannel string            `bigquery:"payment_channel"`
	AuthorizedDate bigquery.NullDate `bigquery:"authorized_date"`
}

func rowFromTransaction(t domain.Transaction) *TransactionRow {
	category := t.Category
	if len(category) == 0 {
		category = []string{domain.UncategorizedCategory}
	}
	r := &TransactionRow{
		TransactionID: t.TransactionID, AccountID: t.AccountID, UserID: t.UserID,
		Date: civil.DateOf(t.Date.UTC()), Amount: t.Amount, MerchantName: t.MerchantName,
		Category: category, Pending: t.Pending, PaymentChannel: t.PaymentChannel,
	}
	if t.AuthorizedDate != nil && !t.AuthorizedDate.IsZero() {
		r.AuthorizedDate = bigquery.NullDate{Date: civil.DateOf(t.AuthorizedDate.UTC()), Valid: true}
	}
	return r
}

func (r *TransactionRow) Transaction() domain.Transaction {
	category := r.Category
	if len(category) == 0 {
		category = []string{domain.UncategorizedCategory}
	}
	t := domain.Transaction{
		TransactionID: r.TransactionID, AccountID: r.AccountID, UserID: r.UserID,
		Date: r.Date.In(time.UTC), Amount: r.Amount, MerchantName: r.MerchantName,
		Category: category, Pending: r.Pending, PaymentChannel: r.PaymentChannel,
	}
	if r.AuthorizedDate.Valid {
		at := r.AuthorizedDate.Date.In(time.UTC)
		t.AuthorizedDate = &at
	}
	return t
}

type SignalRow struct {
	UserID     string    `bigquery:"user_id"`
	TimeWindow string    `bigquery:"time_window"`
	SignalType string    `bigquery:"signal_type"`
	SignalData string    `bigquery:"signal_data"`
	ComputedAt time.Time `bigquery:"computed_at"`
}

func rowFromSignal(sig domain.Signal) *SignalRow {
	data := string(sig.Data)
	if data == "" {
		data = "{}"
	}
	return &SignalRow{
		UserID: sig.UserID, TimeWindow: string(sig.TimeWindow), SignalType: string(sig.SignalType),
		SignalData: data, ComputedAt: sig.ComputedAt.UTC(),
	}
}

func (r *SignalRow) Signal() domain.Signal {
	return domain.Signal{
		UserID:     r.UserID,
		TimeWindow: domain.TimeWindow(r.TimeWindow),
		SignalType: domain.SignalType(r.SignalType),
		Data:       json.RawMessage(r.SignalData),
		ComputedAt: r.ComputedAt,
	}
}

type AssignmentRow struct {
	UserID               string    `bigquery:"user_id"`
	TimeWindow           string    `bigquery:"time_window"`
	Persona              string    `bigquery:"persona"`
	CriteriaMet          []string  `bigquery:"criteria_met"`
	MatchHighUtilization float64   `bigquery:"match_high_utilization"`
	MatchVariableIncome  float64   `bigquery:"match_variable_income"`
	MatchSubscription    float64   `bigquery:"match_subscription_heavy"`
	MatchSavingsBuilder  float64   `bigquery:"match_savings_builder"`
	MatchGeneralWellness float64   `bigquery:"match_general_wellness"`
	AssignedAt           time.Time `bigquery:"assigned_at"`
}

func rowFromAssignment(a domain.PersonaAssignment) *AssignmentRow {
	return &AssignmentRow{
		UserID:               a.UserID,
		TimeWindow:           string(a.TimeWindow),
		Persona:              string(a.Persona),
		CriteriaMet:          a.CriteriaMet,
		MatchHighUtilization: a.Matches.HighUtilization,
		MatchVariableIncome:  a.Matches.VariableIncome,
		MatchSubscription:    a.Matches.SubscriptionHeavy,
		MatchSavingsBuilder:  a.Matches.SavingsBuilder,
		MatchGeneralWellness: a.Matches.GeneralWellness,
		AssignedAt:           a.AssignedAt.UTC(),
	}
}

func (r *AssignmentRow) Assignment() domain.PersonaAssignment {
	criteria := r.CriteriaMet
	if criteria == nil {
		criteria = []string{}
	}
	return domain.PersonaAssignment{
		UserID:     r.UserID,
		TimeWindow: domain.TimeWindow(r.TimeWindow),
		Persona:    domain.Persona(r.Persona),
		Matches: domain.MatchSet{
			HighUtilization:   r.MatchHighUtilization,
			VariableIncome:    r.MatchVariableIncome,
			SubscriptionHeavy: r.MatchSubscription,
			SavingsBuilder:    r.MatchSavingsBuilder,
			GeneralWellness:   r.MatchGeneralWellness,
		},
		CriteriaMet: criteria,
		AssignedAt:  r.AssignedAt,
	}
}

type RecommendationRow struct {
	RecommendationID string                 `bigquery:"recommendation_id"`
	UserID           string                 `bigquery:"user_id"`
	Type             string                 `bigquery:"type"`
	ContentID        string                 `bigquery:"content_id"`
	Title            string                 `bigquery:"title"`
	Rationale        string                 `bigquery:"rationale"`
	DecisionTrace    string                 `bigquery:"decision_trace"`
	ShownAt          time.Time              `bigquery:"shown_at"`
	Overridden       bool                   `bigquery:"overridden"`
	OverrideReason   bigquery.NullString    `bigquery:"override_reason"`
	OverriddenBy     bigquery.NullString    `bigquery:"overridden_by"`
	OverriddenAt     bigquery.NullTimestamp `bigquery:"overridden_at"`
}

func rowFromRecommendation(rec domain.Recommendation) *RecommendationRow {
	trace := string(rec.DecisionTrace)
	if trace == "" {
		trace = "{}"
	}
	r := &RecommendationRow{
		RecommendationID: rec.RecommendationID,
		UserID:           rec.UserID,
		Type:             string(rec.Type),
		ContentID:        rec.ContentID,
		Title:            rec.Title,
		Rationale:        rec.Rationale,
		DecisionTrace:    trace,
		ShownAt:          rec.ShownAt.UTC(),
		Overridden:       rec.Overridden,
		OverrideReason:   nullString(rec.OverrideReason),
		OverriddenBy:     nullString(rec.OverriddenBy),
	}
	if rec.OverriddenAt != nil {
		r.OverriddenAt = bigquery.NullTimestamp{Timestamp: rec.OverriddenAt.UTC(), Valid: true}
	}
	return r
}

func (r *RecommendationRow) Recommendation() domain.Recommendation {
	rec := domain.Recommendation{
		RecommendationID: r.RecommendationID,
		UserID:           r.UserID,
		Type:             domain.RecommendationType(r.Type),
		ContentID:        r.ContentID,
		Title:            r.Title,
		Rationale:        r.Rationale,
		DecisionTrace:    json.RawMessage(r.DecisionTrace),
		ShownAt:          r.ShownAt,
		Overridden:       r.Overridden,
		OverrideReason:   stringValue(r.OverrideReason),
		OverriddenBy:     stringValue(r.OverriddenBy),
	}
	if r.OverriddenAt.Valid {
		at := r.OverriddenAt.Timestamp
		rec.OverriddenAt = &at
	}
	return rec
}

type ChatLogRow struct {
	ChatID           string              `bigquery:"chat_id"`
	UserID           string              `bigquery:"user_id"`
	Message          string              `bigquery:"message"`
	Response         string              `bigquery:"response"`
	Citations        bigquery.NullString `bigquery:"citations"`
	GuardrailsPassed bool                `bigquery:"guardrails_passed"`
	CreatedAt        time.Time           `bigquery:"created_at"`
}

func rowFromChatLog(cl domain.ChatLog) *ChatLogRow {
	return &ChatLogRow{
		ChatID:           cl.ChatID,
		UserID:           cl.UserID,
		Message:          cl.Message,
		Response:         cl.Response,
		Citations:        nullString(string(cl.Citations)),
		GuardrailsPassed: cl.GuardrailsPassed,
		CreatedAt:        cl.CreatedAt.UTC(),
	}
}

func (r *ChatLogRow) ChatLog() domain.ChatLog {
	cl := domain.ChatLog{
		ChatID:           r.ChatID,
		UserID:           r.UserID,
		Message:          r.Message,
		Response:         r.Response,
		GuardrailsPassed: r.GuardrailsPassed,
		CreatedAt:        r.CreatedAt,
	}
	if r.Citations.Valid && r.Citations.StringVal != "" {
		cl.Citations = json.RawMessage(r.Citations.StringVal)
	}
	return cl
}

type ActionRow struct {
	ActionID         string              `bigquery:"action_id"`
	UserID           string              `bigquery:"user_id"`
	OperatorID       string              `bigquery:"operator_id"`
	ActionType       string              `bigquery:"action_type"`
	RecommendationID bigquery.NullString `bigquery:"recommendation_id"`
	Reason           bigquery.NullString `bigquery:"reason"`
	CreatedAt        time.Time           `bigquery:"created_at"`
}

func rowFromAction(a domain.OperatorAction) *ActionRow {
	return &ActionRow{
		ActionID:         a.ActionID,
		UserID:           a.UserID,
		OperatorID:       a.OperatorID,
		ActionType:       a.ActionType,
		RecommendationID: nullString(a.RecommendationID),
		Reason:           nullString(a.Reason),
		CreatedAt:        a.CreatedAt.UTC(),
	}
}

func (r *ActionRow) Action() domain.OperatorAction {
	return domain.OperatorAction{
		ActionID:         r.ActionID,
		UserID:           r.UserID,
		OperatorID:       r.OperatorID,
		ActionType:       r.ActionType,
		RecommendationID: stringValue(r.RecommendationID),
		Reason:           stringValue(r.Reason),
		CreatedAt:        r.CreatedAt,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func stringValue(ns bigquery.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.StringVal
}
