package bigquery

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

var rowAt = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func TestTransactionRow_RoundTrip(t *testing.T) {
	authorized := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	txn := domain.Transaction{
		TransactionID:  "txn_1",
		AccountID:      "acc_1",
		UserID:         "user_001",
		Date:           time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Amount:         15.99,
		MerchantName:   "Netflix",
		Category:       []string{"Service", "Subscription"},
		Pending:        true,
		PaymentChannel: "online",
		AuthorizedDate: &authorized,
	}

	got := rowFromTransaction(txn).Transaction()
	if !reflect.DeepEqual(got, txn) {
		t.Errorf("round trip = %+v, want %+v", got, txn)
	}
}

func TestTransactionRow_Defaults(t *testing.T) {
	txn := domain.Transaction{
		TransactionID: "txn_1",
		AccountID:     "acc_1",
		UserID:        "user_001",
		Date:          time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Amount:        12.50,
	}

	row := rowFromTransaction(txn)
	if !reflect.DeepEqual(row.Category, []string{domain.UncategorizedCategory}) {
		t.Errorf("empty category stored as %v, want [%s]", row.Category, domain.UncategorizedCategory)
	}
	if row.AuthorizedDate.Valid {
		t.Error("nil authorized date should map to an invalid NullDate")
	}

	got := row.Transaction()
	if got.AuthorizedDate != nil {
		t.Errorf("authorized date = %v, want nil", got.AuthorizedDate)
	}
}

func TestAssignmentRow_RoundTrip(t *testing.T) {
	a := domain.PersonaAssignment{
		UserID:     "user_001",
		TimeWindow: domain.Window30d,
		Persona:    domain.PersonaHighUtilization,
		Matches: domain.MatchSet{
			HighUtilization:   100,
			VariableIncome:    50,
			SubscriptionHeavy: 25,
			SavingsBuilder:    0,
			GeneralWellness:   100,
		},
		CriteriaMet: []string{"credit_utilization.total_utilization=68.0>=50"},
		AssignedAt:  rowAt,
	}

	got := rowFromAssignment(a).Assignment()
	if !reflect.DeepEqual(got, a) {
		t.Errorf("round trip = %+v, want %+v", got, a)
	}
}

func TestAssignmentRow_NilCriteriaBecomesEmpty(t *testing.T) {
	row := AssignmentRow{UserID: "user_001", TimeWindow: "30d", Persona: "general_wellness", AssignedAt: rowAt}
	got := row.Assignment()
	if got.CriteriaMet == nil || len(got.CriteriaMet) != 0 {
		t.Errorf("criteria = %#v, want empty non-nil slice", got.CriteriaMet)
	}
}

func TestRecommendationRow_RoundTrip(t *testing.T) {
	overriddenAt := rowAt.Add(time.Hour)
	rec := domain.Recommendation{
		RecommendationID: "rec_000000000001",
		UserID:           "user_001",
		Type:             domain.RecommendationPartnerOffer,
		ContentID:        "offer_balance_transfer",
		Title:            "Balance Transfer Card",
		Rationale:        "Based on your spending patterns.",
		DecisionTrace:    json.RawMessage(`{"persona":"high_utilization"}`),
		ShownAt:          rowAt,
		Overridden:       true,
		OverrideReason:   "manual review",
		OverriddenBy:     "op_042",
		OverriddenAt:     &overriddenAt,
	}

	got := rowFromRecommendation(rec).Recommendation()
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("round trip = %+v, want %+v", got, rec)
	}
}

func TestRecommendationRow_EmptyOptionalFields(t *testing.T) {
	rec := domain.Recommendation{
		RecommendationID: "rec_000000000001",
		UserID:           "user_001",
		Type:             domain.RecommendationEducation,
		ContentID:        "edu_apr_basics_101",
		Title:            "Understanding APR",
		Rationale:        "A good start.",
		ShownAt:          rowAt,
	}

	row := rowFromRecommendation(rec)
	if row.DecisionTrace != "{}" {
		t.Errorf("empty trace stored as %q, want {}", row.DecisionTrace)
	}
	if row.OverrideReason.Valid || row.OverriddenBy.Valid || row.OverriddenAt.Valid {
		t.Error("clean recommendation should carry invalid override columns")
	}

	got := row.Recommendation()
	if got.Overridden || got.OverrideReason != "" || got.OverriddenAt != nil {
		t.Errorf("round trip = %+v, want clean override fields", got)
	}
	if string(got.DecisionTrace) != "{}" {
		t.Errorf("trace = %s, want {}", got.DecisionTrace)
	}
}

func TestChatLogRow_RoundTrip(t *testing.T) {
	cl := domain.ChatLog{
		ChatID:           "chat_1",
		UserID:           "user_001",
		Message:          "How do I lower my utilization?",
		Response:         "Paying more than the minimum helps.",
		Citations:        json.RawMessage(`["credit_utilization"]`),
		GuardrailsPassed: true,
		CreatedAt:        rowAt,
	}

	got := rowFromChatLog(cl).ChatLog()
	if !reflect.DeepEqual(got, cl) {
		t.Errorf("round trip = %+v, want %+v", got, cl)
	}

	cl.Citations = nil
	if got := rowFromChatLog(cl).ChatLog(); got.Citations != nil {
		t.Errorf("nil citations round-tripped to %s", got.Citations)
	}
}

func TestActionRow_RoundTrip(t *testing.T) {
	a := domain.OperatorAction{
		ActionID:         "action_1",
		UserID:           "user_001",
		OperatorID:       "op_042",
		ActionType:       domain.ActionOverride,
		RecommendationID: "rec_000000000001",
		Reason:           "user opted out",
		CreatedAt:        rowAt,
	}
	if got := rowFromAction(a).Action(); !reflect.DeepEqual(got, a) {
		t.Errorf("round trip = %+v, want %+v", got, a)
	}

	flag := domain.OperatorAction{
		ActionID:   "action_2",
		UserID:     "user_002",
		OperatorID: "op_042",
		ActionType: domain.ActionFlag,
		CreatedAt:  rowAt,
	}
	row := rowFromAction(flag)
	if row.RecommendationID.Valid || row.Reason.Valid {
		t.Error("flag action without target should carry invalid nullable columns")
	}
	if got := row.Action(); !reflect.DeepEqual(got, flag) {
		t.Errorf("round trip = %+v, want %+v", got, flag)
	}
}

func TestSignalRow_EmptyDataDefaults(t *testing.T) {
	sig := domain.Signal{
		UserID:     "user_001",
		TimeWindow: domain.Window30d,
		SignalType: domain.SignalSubscriptions,
		ComputedAt: rowAt,
	}
	row := rowFromSignal(sig)
	if row.SignalData != "{}" {
		t.Errorf("empty payload stored as %q, want {}", row.SignalData)
	}
}
