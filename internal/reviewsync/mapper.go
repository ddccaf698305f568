package reviewsync

import (
	"github.com/jomei/notionapi"

	"github.com/spendsense/spendsense/internal/domain"
)

// RecommendationProperties converts a recommendation to the Notion property
// set of the review board. The Recommendation ID title is the upsert key;
// every other column is informational for the reviewing operator.
func RecommendationProperties(rec *domain.Recommendation, userName string) notionapi.Properties {
	props := notionapi.Properties{
		"Recommendation ID": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: rec.RecommendationID,
					},
				},
			},
		},
		"User": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: rec.UserID,
					},
				},
			},
		},
		"Type": notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(rec.Type),
			},
		},
		"Title": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: rec.Title,
					},
				},
			},
		},
		"Shown At": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(&rec.ShownAt),
			},
		},
		"Overridden": notionapi.CheckboxProperty{
			Checkbox: rec.Overridden,
		},
	}

	// Overrides win over user flags when both apply.
	reason := "flagged user"
	if rec.Overridden {
		reason = "override"
	}
	props["Review Reason"] = notionapi.SelectProperty{
		Select: notionapi.Option{
			Name: reason,
		},
	}

	if userName != "" {
		props["User Name"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: userName,
					},
				},
			},
		}
	}

	if rec.ContentID != "" {
		props["Content"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: rec.ContentID,
			},
		}
	}

	if rec.Rationale != "" {
		props["Rationale"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: rec.Rationale,
					},
				},
			},
		}
	}

	if rec.OverrideReason != "" {
		props["Override Reason"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: rec.OverrideReason,
					},
				},
			},
		}
	}

	if rec.OverriddenBy != "" {
		props["Overridden By"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: rec.OverriddenBy,
					},
				},
			},
		}
	}

	if rec.OverriddenAt != nil {
		props["Overridden At"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(rec.OverriddenAt),
			},
		}
	}

	return props
}
