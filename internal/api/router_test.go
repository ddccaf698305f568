package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/jobs"
	"github.com/spendsense/spendsense/internal/jobs/inmemory"
	"github.com/spendsense/spendsense/internal/store"
	"github.com/spendsense/spendsense/internal/store/sqlite"
)

const testKey = "test-key"

var apiAt = time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)

// stubPublisher records published jobs, assigning IDs the way the real
// queue does.
type stubPublisher struct {
	published []*jobs.RefreshSignalsJob
	err       error
}

func (p *stubPublisher) PublishRefreshSignals(ctx context.Context, job *jobs.RefreshSignalsJob) error {
	if p.err != nil {
		return p.err
	}
	job.JobID = fmt.Sprintf("job_%d", len(p.published)+1)
	job.Status = jobs.JobStatusPending
	job.CreatedAt = apiAt
	p.published = append(p.published, job)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "spendsense.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedLedger loads one fully classified user and one empty one. user_401
// carries two signals, a 30d assignment, and a single recommendation, so
// every read endpoint has something to return.
func seedLedger(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	users := []domain.User{
		{UserID: "user_401", Name: "Wanda Flores", CreatedAt: apiAt.AddDate(0, 0, -200)},
		{UserID: "user_402", Name: "Yusuf Grant", CreatedAt: apiAt.AddDate(0, 0, -200)},
	}
	if err := s.UpsertUsers(ctx, users); err != nil {
		t.Fatalf("seeding users: %v", err)
	}

	accounts := []domain.Account{
		{AccountID: "acc_401_cc", UserID: "user_401", Type: domain.AccountTypeCredit, Subtype: "credit card", Name: "Rewards Card", Mask: "5533", Balance: 3400, Limit: 5000},
		{AccountID: "acc_401_chk", UserID: "user_401", Type: domain.AccountTypeDepository, Subtype: "checking", Name: "Everyday Checking", Mask: "9001", Balance: 1200},
	}
	if err := s.UpsertAccounts(ctx, accounts); err != nil {
		t.Fatalf("seeding accounts: %v", err)
	}

	txns := []domain.Transaction{
		{TransactionID: "txn_401_p1", AccountID: "acc_401_chk", UserID: "user_401", Date: apiAt.AddDate(0, 0, -20), Amount: 2400, MerchantName: "Employer Payroll", Category: []string{"Income"}, PaymentChannel: domain.ChannelOther},
		{TransactionID: "txn_401_p2", AccountID: "acc_401_chk", UserID: "user_401", Date: apiAt.AddDate(0, 0, -6), Amount: 2400, MerchantName: "Employer Payroll", Category: []string{"Income"}, PaymentChannel: domain.ChannelOther},
		{TransactionID: "txn_401_g1", AccountID: "acc_401_chk", UserID: "user_401", Date: apiAt.AddDate(0, 0, -4), Amount: -130, MerchantName: "Whole Foods", Category: []string{"Food and Drink", "Groceries"}, PaymentChannel: domain.ChannelInStore},
	}
	if err := s.InsertTransactions(ctx, txns); err != nil {
		t.Fatalf("seeding transactions: %v", err)
	}

	signals := []domain.Signal{
		{
			UserID:     "user_401",
			TimeWindow: domain.Window30d,
			SignalType: domain.SignalCreditUtilization,
			Data:       json.RawMessage(`{"total_utilization":0.68,"utilization_level":"high","accounts":[],"interest_charged":42.5,"minimum_payment_only":false,"is_overdue":false}`),
			ComputedAt: apiAt.Add(-time.Hour),
		},
		{
			UserID:     "user_401",
			TimeWindow: domain.Window30d,
			SignalType: domain.SignalSubscriptions,
			Data:       json.RawMessage(`{"recurring_merchants":["StreamFlix"],"monthly_recurring":15.25,"subscription_share":0.04,"merchant_details":[]}`),
			ComputedAt: apiAt.Add(-time.Hour),
		},
	}
	if err := s.UpsertSignals(ctx, signals); err != nil {
		t.Fatalf("seeding signals: %v", err)
	}

	assignment := domain.PersonaAssignment{
		UserID:     "user_401",
		TimeWindow: domain.Window30d,
		Persona:    domain.PersonaHighUtilization,
		Matches:    domain.MatchSet{HighUtilization: 100, GeneralWellness: 100},
		CriteriaMet: []string{
			"utilization 68% >= 50%",
			"interest charges present",
		},
		AssignedAt: apiAt.Add(-time.Hour),
	}
	if err := s.UpsertAssignments(ctx, []domain.PersonaAssignment{assignment}); err != nil {
		t.Fatalf("seeding assignment: %v", err)
	}

	rec := domain.Recommendation{
		RecommendationID: "rec_w401_edu01",
		UserID:           "user_401",
		Type:             domain.RecommendationEducation,
		ContentID:        "edu_utilization_101",
		Title:            "Understanding Credit Utilization",
		Rationale:        "Your card balance sits at 68% of its limit.",
		ShownAt:          apiAt.Add(-30 * time.Minute),
	}
	if err := s.InsertRecommendations(ctx, []domain.Recommendation{rec}); err != nil {
		t.Fatalf("seeding recommendation: %v", err)
	}
}

// newTestAPI assembles the full handler over a seeded store. Chat stays
// nil; its endpoint reports unavailable.
func newTestAPI(t *testing.T) (http.Handler, store.Store, *stubPublisher, *inmemory.Store) {
	t.Helper()
	s := openStore(t)
	seedLedger(t, s)
	pub := &stubPublisher{}
	jobStore := inmemory.NewStore()
	h := NewHandler(Config{
		Store:     s,
		Publisher: pub,
		Jobs:      jobStore,
		APIKey:    testKey,
		Log:       zerolog.Nop(),
	})
	return h, s, pub, jobStore
}

func doRequest(t *testing.T, h http.Handler, method, target, body, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealth_OpenWithoutKey(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &got)
	if got.Status != "healthy" {
		t.Errorf("status = %q, want healthy", got.Status)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		target string
		key    string
		want   int
	}{
		{name: "missing key", method: http.MethodGet, target: "/api/users", key: "", want: http.StatusUnauthorized},
		{name: "wrong key", method: http.MethodGet, target: "/api/users", key: "nope", want: http.StatusUnauthorized},
		{name: "valid key", method: http.MethodGet, target: "/api/users", key: testKey, want: http.StatusOK},
		{name: "preflight skips auth", method: http.MethodOptions, target: "/api/users", key: "", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.method, tt.target, "", tt.key)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/health", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-fixed-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-fixed-42" {
		t.Errorf("X-Request-ID = %q, want req-fixed-42", got)
	}
}

func TestListUsers(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/users", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var got struct {
		Users []struct {
			UserID              string `json:"user_id"`
			Name                string `json:"name"`
			Persona30d          string `json:"persona_30d"`
			BehaviorCount       int    `json:"behavior_count"`
			RecommendationCount int    `json:"recommendation_count"`
		} `json:"users"`
		Count int `json:"count"`
	}
	decodeBody(t, rec, &got)

	if got.Count != 2 || len(got.Users) != 2 {
		t.Fatalf("count = %d, users = %d, want 2", got.Count, len(got.Users))
	}
	first := got.Users[0]
	if first.UserID != "user_401" {
		t.Fatalf("users[0] = %s, want user_401", first.UserID)
	}
	if first.Persona30d != string(domain.PersonaHighUtilization) {
		t.Errorf("persona_30d = %q, want %s", first.Persona30d, domain.PersonaHighUtilization)
	}
	if first.BehaviorCount != 2 {
		t.Errorf("behavior_count = %d, want 2", first.BehaviorCount)
	}
	if first.RecommendationCount != 1 {
		t.Errorf("recommendation_count = %d, want 1", first.RecommendationCount)
	}
	second := got.Users[1]
	if second.UserID != "user_402" || second.Persona30d != "" || second.BehaviorCount != 0 {
		t.Errorf("users[1] = %+v, want bare user_402", second)
	}
}

func TestGetUser(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/users/user_401", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var got struct {
		User     domain.User                          `json:"user"`
		Personas map[string]*domain.PersonaAssignment `json:"personas"`
	}
	decodeBody(t, rec, &got)

	if got.User.Name != "Wanda Flores" {
		t.Errorf("name = %q, want Wanda Flores", got.User.Name)
	}
	if got.Personas["30d"] == nil || got.Personas["30d"].Persona != domain.PersonaHighUtilization {
		t.Errorf("personas[30d] = %+v, want high_utilization", got.Personas["30d"])
	}
	if got.Personas["180d"] != nil {
		t.Errorf("personas[180d] = %+v, want null", got.Personas["180d"])
	}

	rec = doRequest(t, h, http.MethodGet, "/api/users/user_999", "", testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetSignals(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/users/user_401/signals?time_window=30d", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var got struct {
		UserID     string          `json:"user_id"`
		TimeWindow string          `json:"time_window"`
		Signals    []domain.Signal `json:"signals"`
		Count      int             `json:"count"`
	}
	decodeBody(t, rec, &got)
	if got.Count != 2 || got.TimeWindow != "30d" {
		t.Errorf("count = %d window = %s, want 2 signals in 30d", got.Count, got.TimeWindow)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/users/user_401/signals?time_window=90d", "", testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad window status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/users/user_999/signals", "", testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetPlan(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/users/user_401/plan", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var got map[string]any
	decodeBody(t, rec, &got)
	if got["user_id"] != "user_401" {
		t.Errorf("user_id = %v, want user_401", got["user_id"])
	}
	if _, ok := got["budget"]; !ok {
		t.Error("plan has no budget section")
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	h, _, pub, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodPost, "/api/users/user_401/refresh", `{"time_window":"180d"}`, testKey)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
	}

	var got struct {
		JobID  string `json:"job_id"`
		UserID string `json:"user_id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &got)
	if got.JobID == "" || got.UserID != "user_401" || got.Status != string(jobs.JobStatusPending) {
		t.Errorf("response = %+v, want pending job for user_401", got)
	}

	if len(pub.published) != 1 {
		t.Fatalf("published = %d jobs, want 1", len(pub.published))
	}
	job := pub.published[0]
	if job.UserID != "user_401" || job.TimeWindow != domain.Window180d {
		t.Errorf("job = %+v, want user_401 180d", job)
	}

	// No body refreshes every window.
	rec = doRequest(t, h, http.MethodPost, "/api/users/user_401/refresh", "", testKey)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("no-body status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
	}
	if len(pub.published) != 2 || pub.published[1].TimeWindow != "" {
		t.Errorf("no-body job window = %q, want empty", pub.published[1].TimeWindow)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/users/user_401/refresh", `{"time_window":"90d"}`, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad window status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/users/user_999/refresh", "", testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRefresh_PublisherFailure(t *testing.T) {
	t.Parallel()
	h, _, pub, _ := newTestAPI(t)
	pub.err = fmt.Errorf("queue is closed")

	rec := doRequest(t, h, http.MethodPost, "/api/users/user_401/refresh", "", testKey)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestFlagUser(t *testing.T) {
	t.Parallel()
	h, s, _, _ := newTestAPI(t)
	ctx := context.Background()

	rec := doRequest(t, h, http.MethodPost, "/api/users/user_402/flag", `{"operator_id":"op_9","reason":"suspicious volume"}`, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var got struct {
		UserID   string `json:"user_id"`
		Flagged  bool   `json:"flagged"`
		ActionID string `json:"action_id"`
	}
	decodeBody(t, rec, &got)
	if !got.Flagged || !strings.HasPrefix(got.ActionID, "action_") {
		t.Errorf("response = %+v, want flagged with action id", got)
	}

	user, err := s.GetUser(ctx, "user_402")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if !user.Flagged {
		t.Error("user not flagged in store")
	}

	actions, err := s.ListOperatorActions(ctx, store.Filter{UserID: "user_402"})
	if err != nil {
		t.Fatalf("ListOperatorActions() error = %v", err)
	}
	if len(actions) != 1 || actions[0].ActionType != domain.ActionFlag || actions[0].Reason != "suspicious volume" {
		t.Errorf("actions = %+v, want one flag action", actions)
	}

	// Explicit false clears the flag.
	rec = doRequest(t, h, http.MethodPost, "/api/users/user_402/flag", `{"operator_id":"op_9","flagged":false}`, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("unflag status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	user, err = s.GetUser(ctx, "user_402")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Flagged {
		t.Error("user still flagged after unflag")
	}

	rec = doRequest(t, h, http.MethodPost, "/api/users/user_402/flag", `{"reason":"no operator"}`, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing operator status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestOverrideRecommendation(t *testing.T) {
	t.Parallel()
	h, s, _, _ := newTestAPI(t)
	ctx := context.Background()

	body := `{"reason":"tone too aggressive","overridden_by":"op_4"}`
	rec := doRequest(t, h, http.MethodPost, "/api/recommendations/rec_w401_edu01/override", body, testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var got struct {
		Recommendation domain.Recommendation `json:"recommendation"`
		ActionID       string                `json:"action_id"`
	}
	decodeBody(t, rec, &got)
	if !got.Recommendation.Overridden || got.Recommendation.OverrideReason != "tone too aggressive" {
		t.Errorf("recommendation = %+v, want overridden", got.Recommendation)
	}
	if got.Recommendation.OverriddenBy != "op_4" || got.Recommendation.OverriddenAt == nil {
		t.Errorf("override attribution = %+v, want op_4 with timestamp", got.Recommendation)
	}
	if !strings.HasPrefix(got.ActionID, "action_") {
		t.Errorf("action_id = %q, want action_ prefix", got.ActionID)
	}

	actions, err := s.ListOperatorActions(ctx, store.Filter{UserID: "user_401"})
	if err != nil {
		t.Fatalf("ListOperatorActions() error = %v", err)
	}
	if len(actions) != 1 || actions[0].ActionType != domain.ActionOverride || actions[0].RecommendationID != "rec_w401_edu01" {
		t.Errorf("actions = %+v, want one override action", actions)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/recommendations/rec_w401_edu01/override", `{"reason":"missing operator"}`, testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing field status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/recommendations/rec_missing_01/override", body, testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown recommendation status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestChat_Unconfigured(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodPost, "/api/chat", `{"user_id":"user_401","message":"How am I doing?"}`, testKey)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestTraces(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	// user_401 carries one recommendation, one assignment, two signals.
	rec := doRequest(t, h, http.MethodGet, "/api/traces?user_id=user_401", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var page struct {
		Traces []struct {
			TraceID   string `json:"trace_id"`
			TraceType string `json:"trace_type"`
		} `json:"traces"`
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}
	decodeBody(t, rec, &page)
	if page.Total != 4 {
		t.Errorf("total = %d, want 4", page.Total)
	}
	if page.Traces[0].TraceID != "rec_w401_edu01" {
		t.Errorf("traces[0] = %s, want the newest event first", page.Traces[0].TraceID)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/traces?user_id=user_401&limit=2", "", testKey)
	decodeBody(t, rec, &page)
	if len(page.Traces) != 2 || !page.HasMore {
		t.Errorf("paged traces = %d hasMore = %v, want 2 with more", len(page.Traces), page.HasMore)
	}

	// The literal stats route must win over the {id} wildcard.
	rec = doRequest(t, h, http.MethodGet, "/api/traces/stats", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var stats struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &stats)
	if stats.Total != 4 {
		t.Errorf("stats total = %d, want 4", stats.Total)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/traces/rec_w401_edu01", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("get trace status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var tr struct {
		TraceType string `json:"trace_type"`
	}
	decodeBody(t, rec, &tr)
	if tr.TraceType != "recommendation_generated" {
		t.Errorf("trace_type = %q, want recommendation_generated", tr.TraceType)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/traces/bogus_id", "", testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown trace status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	t.Parallel()
	h, _, _, _ := newTestAPI(t)

	rec := doRequest(t, h, http.MethodGet, "/api/analytics/personas/current", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var current struct {
		Distribution struct {
			HighUtilization int `json:"high_utilization"`
		} `json:"distribution"`
		Total int `json:"total"`
	}
	decodeBody(t, rec, &current)
	if current.Distribution.HighUtilization != 1 || current.Total != 1 {
		t.Errorf("distribution = %+v total = %d, want one high_utilization", current.Distribution, current.Total)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/analytics/personas/weekly?weeks=2", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("weekly status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var weekly struct {
		Weeks []json.RawMessage `json:"weeks"`
	}
	decodeBody(t, rec, &weekly)
	if len(weekly.Weeks) == 0 {
		t.Error("weekly returned no snapshots")
	}

	rec = doRequest(t, h, http.MethodGet, "/api/analytics/safety", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("safety status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var safety struct {
		TotalUsers           int `json:"total_users"`
		TotalRecommendations int `json:"total_recommendations"`
	}
	decodeBody(t, rec, &safety)
	if safety.TotalUsers != 2 || safety.TotalRecommendations != 1 {
		t.Errorf("safety = %+v, want 2 users and 1 recommendation", safety)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/analytics/engagement", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("engagement status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var engagement struct {
		Personas []struct {
			Persona   string `json:"persona"`
			UserCount int    `json:"user_count"`
		} `json:"personas"`
	}
	decodeBody(t, rec, &engagement)
	if len(engagement.Personas) != len(domain.Personas) {
		t.Errorf("personas = %d, want %d", len(engagement.Personas), len(domain.Personas))
	}

	rec = doRequest(t, h, http.MethodGet, "/api/analytics/engagement?persona=high_utilization", "", testKey)
	decodeBody(t, rec, &engagement)
	if len(engagement.Personas) != 1 || engagement.Personas[0].UserCount != 1 {
		t.Errorf("filtered engagement = %+v, want one cohort of one", engagement.Personas)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/analytics/engagement?persona=big_spender", "", testKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown persona status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestJobsEndpoints(t *testing.T) {
	t.Parallel()
	h, _, _, jobStore := newTestAPI(t)
	ctx := context.Background()

	job := &jobs.RefreshSignalsJob{
		JobID:     "job_seed_01",
		UserID:    "user_401",
		Status:    jobs.JobStatusCompleted,
		CreatedAt: apiAt.Add(-time.Hour),
	}
	if err := jobStore.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/jobs", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var list struct {
		Jobs  []jobs.RefreshSignalsJob `json:"jobs"`
		Count int                      `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 || list.Jobs[0].JobID != "job_seed_01" {
		t.Errorf("jobs = %+v, want the seeded job", list)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/jobs?user_id=user_402", "", testKey)
	decodeBody(t, rec, &list)
	if list.Count != 0 {
		t.Errorf("filtered count = %d, want 0", list.Count)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/jobs/job_seed_01", "", testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/jobs/job_missing", "", testKey)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
