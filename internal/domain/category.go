package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UncategorizedCategory is the fallback taxonomy entry for transactions whose
// category field is missing or unreadable.
const UncategorizedCategory = "Uncategorized"

// NormalizeCategory decodes a raw category field from storage into an ordered
// taxonomy list. Stored values may be a JSON array, a legacy plain string, or
// empty; malformed encodings degrade to a single-element legacy category
// rather than failing the row.
func NormalizeCategory(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{UncategorizedCategory}
	}

	if strings.HasPrefix(trimmed, "[") {
		var elems []any
		if err := json.Unmarshal([]byte(trimmed), &elems); err == nil {
			out := make([]string, 0, len(elems))
			for _, e := range elems {
				s := strings.TrimSpace(fmt.Sprint(e))
				if s != "" && s != "<nil>" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
			return []string{UncategorizedCategory}
		}
	}

	return []string{trimmed}
}

// EncodeCategory serializes a taxonomy list for storage as a JSON array.
func EncodeCategory(category []string) string {
	if len(category) == 0 {
		category = []string{UncategorizedCategory}
	}
	b, err := json.Marshal(category)
	if err != nil {
		return fmt.Sprintf("[%q]", UncategorizedCategory)
	}
	return string(b)
}

// PrimaryCategory returns the first (broadest) taxonomy entry.
func PrimaryCategory(category []string) string {
	if len(category) == 0 {
		return UncategorizedCategory
	}
	return category[0]
}

// CategoryMatches reports whether any taxonomy entry equals target,
// case-insensitively.
func CategoryMatches(category []string, target string) bool {
	for _, c := range category {
		if strings.EqualFold(c, target) {
			return true
		}
	}
	return false
}

// CategoryContains reports whether the joined taxonomy contains the substring,
// case-insensitively. Used by keyword-based detectors.
func CategoryContains(category []string, substr string) bool {
	if substr == "" {
		return false
	}
	joined := strings.ToLower(strings.Join(category, " "))
	return strings.Contains(joined, strings.ToLower(substr))
}
