// Package handlers implements the HTTP endpoints over the stored records
// and the domain services. Handlers translate between HTTP and the layers
// below; everything consequential happens in those layers.
package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spendsense/spendsense/internal/domain"
)

// parseWindow reads the time_window query parameter, defaulting to 30d.
func parseWindow(r *http.Request) (domain.TimeWindow, error) {
	raw := r.URL.Query().Get("time_window")
	if raw == "" {
		return domain.Window30d, nil
	}
	return domain.ParseTimeWindow(raw)
}

// parseIntQuery reads an integer query parameter, keeping the fallback on
// absence or garbage.
func parseIntQuery(q url.Values, key string, fallback int) int {
	raw := q.Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// parseDateQuery reads a YYYY-MM-DD query parameter. A zero time means the
// parameter was absent.
func parseDateQuery(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q, want YYYY-MM-DD", key, raw)
	}
	return t, nil
}

// endOfDay widens a date-precision end bound so the named day is included.
func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(24*time.Hour - time.Second)
}

// newActionID mints an operator action identifier.
func newActionID() string {
	return "action_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
