// Package trace assembles the audit timeline. Every consequential event in
// the pipeline already lives in a storage table; this package projects those
// rows into a single trace vocabulary so operators can answer "why did this
// user see this" from one endpoint.
package trace

import (
	"time"
)

// Type labels one kind of audit event.
type Type string

const (
	TypeChat           Type = "chat_interaction"
	TypeRecommendation Type = "recommendation_generated"
	TypeOverride       Type = "recommendation_overridden"
	TypeFlag           Type = "user_flagged"
	TypePersona        Type = "persona_assigned"
	TypeFeatures       Type = "features_computed"
)

// AllTypes lists every trace type in presentation order.
var AllTypes = []Type{
	TypeChat,
	TypeRecommendation,
	TypeOverride,
	TypeFlag,
	TypePersona,
	TypeFeatures,
}

// Trace is one event on the audit timeline. TraceID is the underlying
// record's ID where the record already carries a typed prefix (chat_,
// rec_, action_) and a synthesized persona_/feature_ key otherwise.
type Trace struct {
	TraceID   string         `json:"trace_id"`
	TraceType Type           `json:"trace_type"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details"`
	Related   []string       `json:"related_traces"`
	Persona   string         `json:"persona,omitempty"`
}

// Query filters and paginates the timeline. A zero value lists everything,
// newest first, with the default page size.
type Query struct {
	UserID  string
	Types   []Type
	Start   time.Time
	End     time.Time
	Persona string
	Search  string
	Limit   int
	Offset  int
}

// Page is one window of the filtered timeline.
type Page struct {
	Traces  []Trace `json:"traces"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	HasMore bool    `json:"has_more"`
}

// Stats summarizes timeline volume.
type Stats struct {
	Total   int          `json:"total"`
	ByType  map[Type]int `json:"by_type"`
	Last24h int          `json:"last_24h"`
	Last7d  int          `json:"last_7d"`
	Last30d int          `json:"last_30d"`
}
