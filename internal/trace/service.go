package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/recommend"
	"github.com/spendsense/spendsense/internal/store"
)

const (
	// DefaultLimit is the page size when a query does not set one.
	DefaultLimit = 50
	// timelineLimit bounds a single user's timeline; statsLimit bounds the
	// sweep behind Stats.
	timelineLimit = 1000
	statsLimit    = 10000
)

// Service projects storage rows into traces.
type Service struct {
	repo store.Repository
	now  func() time.Time
}

// NewService builds a trace service over a repository.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// List returns one page of the filtered timeline, newest first. Total counts
// every match before pagination so callers can render page controls.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	log := logger.FromContext(ctx)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	want := make(map[Type]bool, len(AllTypes))
	if len(q.Types) == 0 {
		for _, t := range AllTypes {
			want[t] = true
		}
	} else {
		for _, t := range q.Types {
			want[t] = true
		}
	}

	f := store.Filter{UserID: q.UserID, Start: q.Start, End: q.End, Search: q.Search}

	var traces []Trace
	if want[TypeChat] {
		logs, err := s.repo.ListChatLogs(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("List: chat logs: %w", err)
		}
		for _, cl := range logs {
			traces = append(traces, chatTrace(cl))
		}
	}
	if want[TypeRecommendation] {
		recs, err := s.repo.ListRecommendations(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("List: recommendations: %w", err)
		}
		for _, rec := range recs {
			t := recommendationTrace(rec)
			if q.Persona != "" && t.Persona != q.Persona {
				continue
			}
			traces = append(traces, t)
		}
	}
	if want[TypeOverride] || want[TypeFlag] {
		actions, err := s.repo.ListOperatorActions(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("List: operator actions: %w", err)
		}
		for _, a := range actions {
			t := actionTrace(a)
			if !want[t.TraceType] {
				continue
			}
			traces = append(traces, t)
		}
	}
	if want[TypePersona] {
		assignments, err := s.repo.ListAssignments(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("List: assignments: %w", err)
		}
		for _, a := range assignments {
			if q.Persona != "" && string(a.Persona) != q.Persona {
				continue
			}
			traces = append(traces, personaTrace(a))
		}
	}
	if want[TypeFeatures] {
		signals, err := s.repo.ListSignals(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("List: signals: %w", err)
		}
		for _, sig := range signals {
			traces = append(traces, featureTrace(sig))
		}
	}

	sort.SliceStable(traces, func(i, j int) bool {
		return traces[i].Timestamp.After(traces[j].Timestamp)
	})

	total := len(traces)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	page := traces[start:end]
	if page == nil {
		page = []Trace{}
	}

	log.Debug().Int("total", total).Int("returned", len(page)).Msg("assembled trace page")
	return &Page{
		Traces:  page,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: q.Offset+len(page) < total,
	}, nil
}

// Timeline returns every event for one user, newest first.
func (s *Service) Timeline(ctx context.Context, userID string, start, end time.Time) ([]Trace, error) {
	page, err := s.List(ctx, Query{UserID: userID, Start: start, End: end, Limit: timelineLimit})
	if err != nil {
		return nil, fmt.Errorf("Timeline: %w", err)
	}
	return page.Traces, nil
}

// Get resolves one trace by ID, dispatching on the typed prefix. Returns
// store.ErrNotFound for unknown prefixes and missing records alike.
func (s *Service) Get(ctx context.Context, traceID string) (*Trace, error) {
	prefix, rest, ok := strings.Cut(traceID, "_")
	if !ok || rest == "" {
		return nil, store.ErrNotFound
	}

	switch prefix {
	case "chat":
		cl, err := s.repo.GetChatLog(ctx, traceID)
		if err != nil {
			return nil, err
		}
		t := chatTrace(*cl)
		return &t, nil
	case "rec":
		rec, err := s.repo.GetRecommendation(ctx, traceID)
		if err != nil {
			return nil, err
		}
		t := recommendationTrace(*rec)
		return &t, nil
	case "action":
		a, err := s.repo.GetOperatorAction(ctx, traceID)
		if err != nil {
			return nil, err
		}
		t := actionTrace(*a)
		return &t, nil
	case "persona":
		userID, window, ok := splitWindowKey(rest)
		if !ok {
			return nil, store.ErrNotFound
		}
		a, err := s.repo.GetAssignment(ctx, userID, window)
		if err != nil {
			return nil, err
		}
		t := personaTrace(*a)
		return &t, nil
	case "feature":
		userID, window, signalType, ok := splitSignalKey(rest)
		if !ok {
			return nil, store.ErrNotFound
		}
		signals, err := s.repo.ListSignals(ctx, store.Filter{UserID: userID, Window: window})
		if err != nil {
			return nil, err
		}
		for _, sig := range signals {
			if sig.SignalType == signalType {
				t := featureTrace(sig)
				return &t, nil
			}
		}
		return nil, store.ErrNotFound
	}
	return nil, store.ErrNotFound
}

// Stats sweeps the timeline once and buckets it by type and recency.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	page, err := s.List(ctx, Query{UserID: userID, Limit: statsLimit})
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}

	now := s.now()
	stats := &Stats{Total: page.Total, ByType: make(map[Type]int)}
	for _, t := range page.Traces {
		stats.ByType[t.TraceType]++
		if !t.Timestamp.Before(now.Add(-24 * time.Hour)) {
			stats.Last24h++
		}
		if !t.Timestamp.Before(now.Add(-7 * 24 * time.Hour)) {
			stats.Last7d++
		}
		if !t.Timestamp.Before(now.Add(-30 * 24 * time.Hour)) {
			stats.Last30d++
		}
	}
	return stats, nil
}

// splitWindowKey parses "<user>_<window>". User IDs may contain underscores,
// so the window is matched as a known suffix.
func splitWindowKey(rest string) (string, domain.TimeWindow, bool) {
	for _, w := range domain.Windows {
		suffix := "_" + string(w)
		if strings.HasSuffix(rest, suffix) && len(rest) > len(suffix) {
			return strings.TrimSuffix(rest, suffix), w, true
		}
	}
	return "", "", false
}

// splitSignalKey parses "<user>_<window>_<signal_type>".
func splitSignalKey(rest string) (string, domain.TimeWindow, domain.SignalType, bool) {
	for _, w := range domain.Windows {
		for _, st := range domain.SignalTypes {
			suffix := "_" + string(w) + "_" + string(st)
			if strings.HasSuffix(rest, suffix) && len(rest) > len(suffix) {
				return strings.TrimSuffix(rest, suffix), w, st, true
			}
		}
	}
	return "", "", "", false
}

func chatTrace(cl domain.ChatLog) Trace {
	return Trace{
		TraceID:   cl.ChatID,
		TraceType: TypeChat,
		UserID:    cl.UserID,
		Timestamp: cl.CreatedAt,
		Summary:   summarize(cl.Message),
		Details: map[string]any{
			"chat_id":           cl.ChatID,
			"message":           cl.Message,
			"response":          cl.Response,
			"citations":         parseJSON(cl.Citations),
			"guardrails_passed": cl.GuardrailsPassed,
		},
		Related: []string{},
	}
}

func recommendationTrace(rec domain.Recommendation) Trace {
	persona := ""
	if dt, err := recommend.ParseDecisionTrace(rec.DecisionTrace); err == nil {
		persona = string(dt.PersonaMatch)
	}
	return Trace{
		TraceID:   rec.RecommendationID,
		TraceType: TypeRecommendation,
		UserID:    rec.UserID,
		Timestamp: rec.ShownAt,
		Summary:   "Recommendation: " + rec.Title,
		Details: map[string]any{
			"recommendation_id": rec.RecommendationID,
			"type":              string(rec.Type),
			"content_id":        rec.ContentID,
			"title":             rec.Title,
			"rationale":         rec.Rationale,
			"decision_trace":    parseJSON(rec.DecisionTrace),
			"overridden":        rec.Overridden,
			"override_reason":   rec.OverrideReason,
		},
		Related: []string{},
		Persona: persona,
	}
}

func actionTrace(a domain.OperatorAction) Trace {
	t := Trace{
		TraceID:   a.ActionID,
		UserID:    a.UserID,
		Timestamp: a.CreatedAt,
		Details: map[string]any{
			"action_id":         a.ActionID,
			"operator_id":       a.OperatorID,
			"action_type":       a.ActionType,
			"recommendation_id": a.RecommendationID,
			"reason":            a.Reason,
		},
		Related: []string{},
	}
	switch a.ActionType {
	case domain.ActionOverride:
		t.TraceType = TypeOverride
		target := a.RecommendationID
		if target == "" {
			target = "N/A"
		}
		t.Summary = "Overridden recommendation: " + target
	case domain.ActionFlag:
		t.TraceType = TypeFlag
		t.Summary = "User flagged for review"
	default:
		t.TraceType = Type(a.ActionType)
		t.Summary = "Action: " + a.ActionType
	}
	if a.RecommendationID != "" {
		t.Related = []string{a.RecommendationID}
	}
	return t
}

func personaTrace(a domain.PersonaAssignment) Trace {
	return Trace{
		TraceID:   "persona_" + a.UserID + "_" + string(a.TimeWindow),
		TraceType: TypePersona,
		UserID:    a.UserID,
		Timestamp: a.AssignedAt,
		Summary:   "Persona assigned: " + string(a.Persona),
		Details: map[string]any{
			"persona":      string(a.Persona),
			"time_window":  string(a.TimeWindow),
			"criteria_met": a.CriteriaMet,
			"match_percentages": map[string]float64{
				"high_utilization":   a.Matches.HighUtilization,
				"variable_income":    a.Matches.VariableIncome,
				"subscription_heavy": a.Matches.SubscriptionHeavy,
				"savings_builder":    a.Matches.SavingsBuilder,
				"general_wellness":   a.Matches.GeneralWellness,
			},
		},
		Related: []string{},
		Persona: string(a.Persona),
	}
}

func featureTrace(sig domain.Signal) Trace {
	return Trace{
		TraceID:   "feature_" + sig.UserID + "_" + string(sig.TimeWindow) + "_" + string(sig.SignalType),
		TraceType: TypeFeatures,
		UserID:    sig.UserID,
		Timestamp: sig.ComputedAt,
		Summary:   "Features computed: " + string(sig.SignalType),
		Details: map[string]any{
			"signal_type": string(sig.SignalType),
			"time_window": string(sig.TimeWindow),
			"signal_data": parseJSON(sig.Data),
		},
		Related: []string{},
	}
}

// summarize truncates a message for the timeline listing.
func summarize(message string) string {
	const max = 100
	runes := []rune(message)
	if len(runes) <= max {
		return message
	}
	return string(runes[:max]) + "..."
}

// parseJSON decodes a stored JSON column for embedding in details. Invalid
// payloads fall back to the raw string rather than failing the whole trace.
func parseJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
