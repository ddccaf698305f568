// Package recommend turns a persona assignment and its signal bundle into a
// bounded, auditable set of recommendations: education items matched by
// persona and trigger signals, partner offers matched by declarative
// eligibility criteria, each with a templated rationale that has passed the
// tone guardrail and a decision trace recording why it exists.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/catalog"
	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/guardrail"
	"github.com/spendsense/spendsense/internal/logger"
)

// Selection bounds per (user, window). Catalog validation guarantees every
// persona can reach the education minimum.
const (
	MinEducationItems = 3
	MaxEducationItems = 5
	MaxOffers         = 3
)

// ErrContentNotFound reports a catalog lookup miss.
var ErrContentNotFound = errors.New("content not found")

// NewRecommendationID returns a fresh "rec_" prefixed identifier.
func NewRecommendationID() string {
	return "rec_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Engine matches catalog content to users. It is stateless across calls;
// the catalog is read-only injected configuration.
type Engine struct {
	catalog *catalog.Catalog

	now   func() time.Time
	newID func() string
}

// NewEngine builds an engine over the given catalogs.
func NewEngine(cat *catalog.Catalog) *Engine {
	return &Engine{
		catalog: cat,
		now:     time.Now,
		newID:   NewRecommendationID,
	}
}

type educationCandidate struct {
	item        catalog.EducationItem
	signalsUsed []string
}

type offerCandidate struct {
	offer       catalog.PartnerOffer
	signalsUsed []string
}

// Generate produces the recommendation set for one (user, window). Education
// items are selected persona-first then trigger-filtered; offers are
// selected by eligibility alone. Every rationale is rendered from its
// template and checked by the tone guardrail before the recommendation is
// kept; a guardrail hit suppresses that one item and is logged for audit.
// The suppressed count reports how many candidates were dropped that way.
func (e *Engine) Generate(ctx context.Context, assignment domain.PersonaAssignment, bundle domain.SignalBundle) (recs []domain.Recommendation, suppressed int, err error) {
	log := logger.FromContext(ctx)

	eduCandidates := e.selectEducation(assignment.Persona, bundle)
	if len(eduCandidates) == 0 {
		return nil, 0, fmt.Errorf("Generate: selecting education content for persona %s: %w", assignment.Persona, ErrContentNotFound)
	}
	offerCandidates := e.selectOffers(bundle)

	shownAt := e.now()
	recs = make([]domain.Recommendation, 0, len(eduCandidates)+len(offerCandidates))

	for _, c := range eduCandidates {
		rec, ok := e.build(log, assignment, bundle, buildInput{
			recType:     domain.RecommendationEducation,
			contentID:   c.item.ID,
			title:       c.item.Title,
			template:    c.item.RationaleTemplate,
			signalsUsed: c.signalsUsed,
			shownAt:     shownAt,
		})
		if ok {
			recs = append(recs, rec)
		} else {
			suppressed++
		}
	}
	for _, c := range offerCandidates {
		rec, ok := e.build(log, assignment, bundle, buildInput{
			recType:     domain.RecommendationPartnerOffer,
			contentID:   c.offer.ID,
			title:       c.offer.Title,
			template:    c.offer.RationaleTemplate,
			signalsUsed: c.signalsUsed,
			shownAt:     shownAt,
		})
		if ok {
			recs = append(recs, rec)
		} else {
			suppressed++
		}
	}

	log.Debug().
		Str("user_id", assignment.UserID).
		Str("time_window", string(assignment.TimeWindow)).
		Str("persona", string(assignment.Persona)).
		Int("recommendations", len(recs)).
		Int("suppressed", suppressed).
		Msg("generated recommendations")

	return recs, suppressed, nil
}

type buildInput struct {
	recType     domain.RecommendationType
	contentID   string
	title       string
	template    string
	signalsUsed []string
	shownAt     time.Time
}

func (e *Engine) build(log zerolog.Logger, assignment domain.PersonaAssignment, bundle domain.SignalBundle, in buildInput) (domain.Recommendation, bool) {
	rationale := RenderRationale(in.template, bundle)

	if phrases := guardrail.CheckProhibitedPhrases(rationale); len(phrases) > 0 {
		log.Warn().
			Str("user_id", assignment.UserID).
			Str("content_id", in.contentID).
			Strs("prohibited_phrases", phrases).
			Msg("rationale suppressed by tone guardrail")
		return domain.Recommendation{}, false
	}

	trace := NewDecisionTrace(assignment.Persona, in.contentID, in.signalsUsed, GuardrailChecks{
		ToneCheck:        true,
		EligibilityCheck: true,
	}, in.shownAt)
	raw, err := trace.Marshal()
	if err != nil {
		log.Error().Err(err).Str("content_id", in.contentID).Msg("dropping recommendation with unencodable trace")
		return domain.Recommendation{}, false
	}

	return domain.Recommendation{
		RecommendationID: e.newID(),
		UserID:           assignment.UserID,
		Type:             in.recType,
		ContentID:        in.contentID,
		Title:            in.title,
		Rationale:        rationale,
		DecisionTrace:    raw,
		ShownAt:          in.shownAt,
	}, true
}

// selectEducation filters the persona's items by trigger signals. Zero
// trigger matches falls back to the persona's leading items; one or two
// matches are topped up from the remaining items so the selection reaches
// the lower bound whenever the catalog allows it.
func (e *Engine) selectEducation(p domain.Persona, bundle domain.SignalBundle) []educationCandidate {
	personaItems := e.catalog.EducationForPersona(p)

	var matched []educationCandidate
	var unmatched []catalog.EducationItem
	for _, item := range personaItems {
		if len(item.TriggerSignals) == 0 {
			matched = append(matched, educationCandidate{item: item})
			continue
		}
		if fired := MatchingTriggers(bundle, item.TriggerSignals); len(fired) > 0 {
			matched = append(matched, educationCandidate{item: item, signalsUsed: fired})
		} else {
			unmatched = append(unmatched, item)
		}
	}

	if len(matched) == 0 {
		for _, item := range personaItems {
			matched = append(matched, educationCandidate{item: item})
			if len(matched) == MaxEducationItems {
				break
			}
		}
		return matched
	}

	for _, item := range unmatched {
		if len(matched) >= MinEducationItems {
			break
		}
		matched = append(matched, educationCandidate{item: item})
	}
	if len(matched) > MaxEducationItems {
		matched = matched[:MaxEducationItems]
	}
	return matched
}

// selectOffers keeps the first eligible offers in catalog order.
func (e *Engine) selectOffers(bundle domain.SignalBundle) []offerCandidate {
	facts := EligibilityFacts(bundle)

	var out []offerCandidate
	for _, offer := range e.catalog.Offers {
		eligible, consulted := facts.Check(offer.Eligibility)
		if !eligible {
			continue
		}
		out = append(out, offerCandidate{offer: offer, signalsUsed: consulted})
		if len(out) == MaxOffers {
			break
		}
	}
	return out
}
