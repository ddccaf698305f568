package reviewsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jomei/notionapi"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/store"
	"github.com/spendsense/spendsense/internal/store/sqlite"
)

var syncAt = time.Date(2025, 8, 2, 16, 0, 0, 0, time.UTC)

// fakeNotion implements NotionService over an in-memory board. pageSize
// caps how many pages each query returns so pagination gets exercised.
type fakeNotion struct {
	pages    []notionapi.Page
	pageSize int

	queries   int
	created   []notionapi.Properties
	updated   map[string]notionapi.Properties
	createErr error
}

func (f *fakeNotion) CreatePage(_ context.Context, _ string, props notionapi.Properties) (*notionapi.Page, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, props)
	return &notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("page_new_%d", len(f.created)))}, nil
}

func (f *fakeNotion) UpdatePage(_ context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	if f.updated == nil {
		f.updated = make(map[string]notionapi.Properties)
	}
	f.updated[pageID] = props
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (f *fakeNotion) QueryDatabase(_ context.Context, _ string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.queries++
	size := f.pageSize
	if size <= 0 {
		size = len(f.pages)
	}
	start := 0
	if req.StartCursor != "" {
		start, _ = strconv.Atoi(string(req.StartCursor))
	}
	end := start + size
	if end > len(f.pages) {
		end = len(f.pages)
	}
	resp := &notionapi.DatabaseQueryResponse{Results: f.pages[start:end]}
	if end < len(f.pages) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(strconv.Itoa(end))
	}
	return resp, nil
}

// boardPage builds a queried review page the way the Notion API returns it:
// property values decode as pointers with PlainText populated.
func boardPage(pageID, recID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			"Recommendation ID": &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: recID}},
			},
		},
	}
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "spendsense.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedReviewRows stores user_301 (flagged, one plain recommendation),
// user_302 (one overridden and one plain recommendation). The review set is
// rec_u301_edu01 then rec_u302_offer1, newest shown first; rec_u302_edu02
// never qualifies.
func seedReviewRows(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	users := []domain.User{
		{UserID: "user_301", Name: "Uma Velez", CreatedAt: syncAt.AddDate(0, 0, -90)},
		{UserID: "user_302", Name: "Viktor Shaw", CreatedAt: syncAt.AddDate(0, 0, -90)},
	}
	if err := s.UpsertUsers(ctx, users); err != nil {
		t.Fatalf("seeding users: %v", err)
	}
	if err := s.SetUserFlagged(ctx, "user_301", true); err != nil {
		t.Fatalf("flagging user_301: %v", err)
	}

	recs := []domain.Recommendation{
		{
			RecommendationID: "rec_u301_edu01",
			UserID:           "user_301",
			Type:             domain.RecommendationEducation,
			ContentID:        "edu_emergency_fund",
			Title:            "Start an Emergency Fund",
			Rationale:        "Your savings balance covers under one month of expenses.",
			ShownAt:          syncAt.Add(-1 * time.Hour),
		},
		{
			RecommendationID: "rec_u302_offer1",
			UserID:           "user_302",
			Type:             domain.RecommendationPartnerOffer,
			ContentID:        "offer_balance_transfer",
			Title:            "Balance Transfer Card",
			Rationale:        "Your card utilization sits above half of your limit.",
			ShownAt:          syncAt.Add(-2 * time.Hour),
		},
		{
			RecommendationID: "rec_u302_edu02",
			UserID:           "user_302",
			Type:             domain.RecommendationEducation,
			ContentID:        "edu_utilization_101",
			Title:            "Understanding Credit Utilization",
			Rationale:        "Keeping balances low protects your score.",
			ShownAt:          syncAt.Add(-3 * time.Hour),
		},
	}
	if err := s.InsertRecommendations(ctx, recs); err != nil {
		t.Fatalf("seeding recommendations: %v", err)
	}
	if err := s.OverrideRecommendation(ctx, "rec_u302_offer1", "tone too promotional", "op_7", syncAt.Add(-30*time.Minute)); err != nil {
		t.Fatalf("overriding rec_u302_offer1: %v", err)
	}
}

func titleOf(t *testing.T, props notionapi.Properties) string {
	t.Helper()
	title, ok := props["Recommendation ID"].(notionapi.TitleProperty)
	if !ok || len(title.Title) == 0 || title.Title[0].Text == nil {
		t.Fatalf("properties carry no Recommendation ID title: %+v", props["Recommendation ID"])
	}
	return title.Title[0].Text.Content
}

func selectOf(t *testing.T, props notionapi.Properties, name string) string {
	t.Helper()
	sel, ok := props[name].(notionapi.SelectProperty)
	if !ok {
		t.Fatalf("property %q is not a select: %+v", name, props[name])
	}
	return sel.Select.Name
}

func TestSyncRecommendations_CreatesReviewPages(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	seedReviewRows(t, s)
	f := &fakeNotion{}

	sum, err := SyncRecommendations(context.Background(), s, f, "db_review", false)
	if err != nil {
		t.Fatalf("SyncRecommendations() error = %v", err)
	}
	if want := (Summary{Created: 2}); sum != want {
		t.Fatalf("Summary = %+v, want %+v", sum, want)
	}
	if len(f.created) != 2 {
		t.Fatalf("created %d pages, want 2", len(f.created))
	}

	flaggedProps := f.created[0]
	if got := titleOf(t, flaggedProps); got != "rec_u301_edu01" {
		t.Errorf("first created page is %q, want rec_u301_edu01", got)
	}
	if got := selectOf(t, flaggedProps, "Review Reason"); got != "flagged user" {
		t.Errorf("Review Reason = %q, want %q", got, "flagged user")
	}
	if cb, ok := flaggedProps["Overridden"].(notionapi.CheckboxProperty); !ok || cb.Checkbox {
		t.Errorf("Overridden checkbox = %+v, want unchecked", flaggedProps["Overridden"])
	}
	if name, ok := flaggedProps["User Name"].(notionapi.RichTextProperty); !ok || name.RichText[0].Text.Content != "Uma Velez" {
		t.Errorf("User Name = %+v, want Uma Velez", flaggedProps["User Name"])
	}

	overriddenProps := f.created[1]
	if got := titleOf(t, overriddenProps); got != "rec_u302_offer1" {
		t.Errorf("second created page is %q, want rec_u302_offer1", got)
	}
	if got := selectOf(t, overriddenProps, "Review Reason"); got != "override" {
		t.Errorf("Review Reason = %q, want %q", got, "override")
	}
	if by, ok := overriddenProps["Overridden By"].(notionapi.RichTextProperty); !ok || by.RichText[0].Text.Content != "op_7" {
		t.Errorf("Overridden By = %+v, want op_7", overriddenProps["Overridden By"])
	}
	if _, ok := overriddenProps["Overridden At"].(notionapi.DateProperty); !ok {
		t.Errorf("Overridden At missing from overridden page: %+v", overriddenProps["Overridden At"])
	}
}

func TestSyncRecommendations_UpsertsByRecommendationID(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	seedReviewRows(t, s)
	f := &fakeNotion{pages: []notionapi.Page{
		boardPage("page_u301_edu01", "rec_u301_edu01"),
		boardPage("page_u302_offer1", "rec_u302_offer1"),
	}}

	sum, err := SyncRecommendations(context.Background(), s, f, "db_review", false)
	if err != nil {
		t.Fatalf("SyncRecommendations() error = %v", err)
	}
	if want := (Summary{Updated: 1, Skipped: 1}); sum != want {
		t.Fatalf("Summary = %+v, want %+v", sum, want)
	}
	if len(f.created) != 0 {
		t.Errorf("created %d pages, want 0", len(f.created))
	}
	props, ok := f.updated["page_u302_offer1"]
	if !ok {
		t.Fatalf("page_u302_offer1 was not updated; updated = %v", f.updated)
	}
	if by, ok := props["Overridden By"].(notionapi.RichTextProperty); !ok || by.RichText[0].Text.Content != "op_7" {
		t.Errorf("Overridden By = %+v, want op_7", props["Overridden By"])
	}
}

func TestSyncRecommendations_DryRun(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	seedReviewRows(t, s)
	f := &fakeNotion{}

	sum, err := SyncRecommendations(context.Background(), s, f, "db_review", true)
	if err != nil {
		t.Fatalf("SyncRecommendations() error = %v", err)
	}
	if want := (Summary{Created: 2}); sum != want {
		t.Fatalf("Summary = %+v, want %+v", sum, want)
	}
	if len(f.created) != 0 || len(f.updated) != 0 {
		t.Errorf("dry run touched the board: created %d, updated %d", len(f.created), len(f.updated))
	}
}

func TestSyncRecommendations_PaginatesBoard(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	seedReviewRows(t, s)
	f := &fakeNotion{
		pages: []notionapi.Page{
			boardPage("page_u301_edu01", "rec_u301_edu01"),
			boardPage("page_foreign", "rec_someone_else"),
			boardPage("page_u302_offer1", "rec_u302_offer1"),
		},
		pageSize: 1,
	}

	sum, err := SyncRecommendations(context.Background(), s, f, "db_review", false)
	if err != nil {
		t.Fatalf("SyncRecommendations() error = %v", err)
	}
	if f.queries != 3 {
		t.Errorf("board queried %d times, want 3 single-page queries", f.queries)
	}
	if want := (Summary{Updated: 1, Skipped: 1}); sum != want {
		t.Fatalf("Summary = %+v, want %+v", sum, want)
	}
}

func TestSyncRecommendations_CreateFailureContinues(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	seedReviewRows(t, s)
	f := &fakeNotion{createErr: errors.New("notion: 502")}

	sum, err := SyncRecommendations(context.Background(), s, f, "db_review", false)
	if err != nil {
		t.Fatalf("SyncRecommendations() should not fail on per-page errors, got %v", err)
	}
	if want := (Summary{}); sum != want {
		t.Fatalf("Summary = %+v, want all zero", sum)
	}
}
