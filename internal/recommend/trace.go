package recommend

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// GuardrailChecks records the outcome of the safety gates applied while
// building one recommendation.
type GuardrailChecks struct {
	ToneCheck        bool `json:"tone_check"`
	EligibilityCheck bool `json:"eligibility_check"`
}

// DecisionTrace is the audit record stored with every recommendation: which
// persona matched, which content was chosen, which signal fields were
// consulted, and which guardrails passed. It makes the recommendation
// reconstructable after the fact.
type DecisionTrace struct {
	PersonaMatch domain.Persona  `json:"persona_match"`
	ContentID    string          `json:"content_id"`
	SignalsUsed  []string        `json:"signals_used"`
	Guardrails   GuardrailChecks `json:"guardrails_passed"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewDecisionTrace builds a trace with signals_used normalized to an empty
// list rather than null.
func NewDecisionTrace(persona domain.Persona, contentID string, signalsUsed []string, checks GuardrailChecks, at time.Time) DecisionTrace {
	if signalsUsed == nil {
		signalsUsed = []string{}
	}
	return DecisionTrace{
		PersonaMatch: persona,
		ContentID:    contentID,
		SignalsUsed:  signalsUsed,
		Guardrails:   checks,
		Timestamp:    at,
	}
}

// Marshal encodes the trace for storage on the recommendation row.
func (t DecisionTrace) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("Marshal: encoding decision trace for %s: %w", t.ContentID, err)
	}
	return raw, nil
}

// ParseDecisionTrace decodes a stored trace.
func ParseDecisionTrace(raw json.RawMessage) (DecisionTrace, error) {
	var t DecisionTrace
	if err := json.Unmarshal(raw, &t); err != nil {
		return DecisionTrace{}, fmt.Errorf("ParseDecisionTrace: decoding decision trace: %w", err)
	}
	return t, nil
}
