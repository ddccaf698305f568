// Package chat answers users' financial questions through a generative
// model, fenced on both sides: PII is scrubbed from the message and the
// financial context before anything reaches the model, and the response must
// clear the tone guardrail (with one revision round, then a phrase strip)
// before it is returned and logged.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/guardrail"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/signals"
	"github.com/spendsense/spendsense/internal/store"
)

// Conversation roles understood by every Generator.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// maxRevisions bounds how many times a response failing the tone check is
// sent back for revision before the prohibited phrases are stripped instead.
const maxRevisions = 1

// recentTransactionLimit caps the transaction summary in the prompt.
const recentTransactionLimit = 30

// ErrEmptyMessage rejects blank questions before any model call.
var ErrEmptyMessage = errors.New("chat: empty message")

// Turn is one utterance in the conversation sent to the model.
type Turn struct {
	Role Role
	Text string
}

// Generator produces a model response for a system prompt and conversation.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
}

// Citation ties a statement in the response back to a stored data point.
type Citation struct {
	DataPoint string `json:"data_point"`
	Value     string `json:"value"`
}

// Answer is one completed exchange. Message carries the sanitized form of
// the user's question, never the original.
type Answer struct {
	ChatID           string     `json:"chat_id"`
	UserID           string     `json:"user_id"`
	Message          string     `json:"message"`
	Response         string     `json:"response"`
	Citations        []Citation `json:"citations"`
	GuardrailsPassed bool       `json:"guardrails_passed"`
	CreatedAt        time.Time  `json:"created_at"`
}

// NewChatID returns a fresh "chat_" prefixed identifier.
func NewChatID() string {
	return "chat_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Service runs the guarded question-answer loop over stored signals.
type Service struct {
	repo store.Repository
	gen  Generator

	now   func() time.Time
	newID func() string
}

// NewService builds a chat service over the given repository and generator.
func NewService(repo store.Repository, gen Generator) *Service {
	return &Service{
		repo:  repo,
		gen:   gen,
		now:   time.Now,
		newID: NewChatID,
	}
}

// Respond answers one user question. The message is sanitized, grounded in
// the user's 30d signals and recent transactions, generated, tone-checked
// (with one revision round, then a phrase strip as last resort), stamped
// with the educational disclaimer, and persisted as a chat log.
func (s *Service) Respond(ctx context.Context, userID, message string) (*Answer, error) {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("Respond: loading user %s: %w", userID, err)
	}

	sanitized, detected := guardrail.SanitizeMessage(message)
	if len(detected) > 0 {
		log.Warn().
			Str("user_id", userID).
			Strs("pii_types", detected).
			Msg("redacted PII from chat message")
	}

	persona, bundle, income, recent, err := s.loadContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Respond: %w", err)
	}
	userContext := BuildUserContext(persona, bundle, income, recent)

	turns := []Turn{{Role: RoleUser, Text: questionTurn(userContext, sanitized)}}

	var text string
	passed := false
	for attempt := 0; ; attempt++ {
		text, err = s.gen.Generate(ctx, SystemPrompt, turns)
		if err != nil {
			if attempt < maxRevisions {
				log.Warn().Err(err).
					Str("user_id", userID).
					Int("attempt", attempt).
					Msg("chat generation failed, retrying")
				continue
			}
			return nil, fmt.Errorf("Respond: generating response: %w", err)
		}
		text = strings.TrimSpace(text)

		phrases := guardrail.CheckProhibitedPhrases(text)
		if len(phrases) == 0 {
			passed = true
			break
		}
		if attempt < maxRevisions {
			log.Warn().
				Str("user_id", userID).
				Strs("prohibited_phrases", phrases).
				Msg("chat response failed tone check, requesting revision")
			turns = append(turns,
				Turn{Role: RoleModel, Text: text},
				Turn{Role: RoleUser, Text: revisionRequest(phrases)},
			)
			continue
		}
		log.Warn().
			Str("user_id", userID).
			Strs("prohibited_phrases", phrases).
			Msg("revision still failed tone check, stripping phrases")
		text = guardrail.StripProhibitedPhrases(text)
		break
	}

	if !strings.Contains(strings.ToLower(text), strings.ToLower(Disclaimer)) {
		text += "\n\n" + Disclaimer
	}

	citations := ExtractCitations(text, bundle, income)
	rawCitations, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("Respond: encoding citations: %w", err)
	}

	createdAt := s.now()
	entry := &domain.ChatLog{
		ChatID:           s.newID(),
		UserID:           userID,
		Message:          sanitized,
		Response:         text,
		Citations:        rawCitations,
		GuardrailsPassed: passed,
		CreatedAt:        createdAt,
	}
	if err := s.repo.InsertChatLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("Respond: persisting chat log: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("chat_id", entry.ChatID).
		Bool("guardrails_passed", passed).
		Int("citations", len(citations)).
		Msg("chat response generated")

	return &Answer{
		ChatID:           entry.ChatID,
		UserID:           userID,
		Message:          sanitized,
		Response:         text,
		Citations:        citations,
		GuardrailsPassed: passed,
		CreatedAt:        createdAt,
	}, nil
}

// loadContext gathers the prompt inputs: the user's 30d persona and signal
// bundle (sanitized for the model), monthly payroll income, and the most
// recent transactions. A user with no computed signals gets zero-valued
// structures, the same degradation the detectors apply.
func (s *Service) loadContext(ctx context.Context, userID string) (domain.Persona, domain.SignalBundle, float64, []domain.Transaction, error) {
	var persona domain.Persona
	assignment, err := s.repo.GetAssignment(ctx, userID, domain.Window30d)
	switch {
	case err == nil:
		persona = assignment.Persona
	case !errors.Is(err, store.ErrNotFound):
		return "", domain.SignalBundle{}, 0, nil, fmt.Errorf("loading assignment for %s: %w", userID, err)
	}

	records, err := s.repo.ListSignals(ctx, store.Filter{UserID: userID, Window: domain.Window30d})
	if err != nil {
		return "", domain.SignalBundle{}, 0, nil, fmt.Errorf("loading signals for %s: %w", userID, err)
	}
	bundle, err := signals.Bundle(userID, domain.Window30d, records)
	if err != nil {
		return "", domain.SignalBundle{}, 0, nil, err
	}
	bundle = sanitizeBundle(bundle)

	txns, err := s.repo.ListTransactions(ctx, store.Filter{UserID: userID})
	if err != nil {
		return "", domain.SignalBundle{}, 0, nil, fmt.Errorf("loading transactions for %s: %w", userID, err)
	}
	income := signals.MonthlyIncome(txns, domain.Window30d, s.now())

	// ListTransactions returns chronological order, so the tail is the
	// most recent slice.
	if len(txns) > recentTransactionLimit {
		txns = txns[len(txns)-recentTransactionLimit:]
	}

	return persona, bundle, income, txns, nil
}

// sanitizeBundle applies the outbound PII rules to the parts of the bundle
// the prompt renders: account masks trimmed to their last four characters
// and merchant names cleared of embedded identifiers. The stored bundle is
// never mutated.
func sanitizeBundle(b domain.SignalBundle) domain.SignalBundle {
	if len(b.CreditUtilization.Accounts) > 0 {
		accounts := make([]domain.UtilizationAccount, len(b.CreditUtilization.Accounts))
		for i, acc := range b.CreditUtilization.Accounts {
			acc.Mask = guardrail.MaskAccountMask(acc.Mask)
			accounts[i] = acc
		}
		b.CreditUtilization.Accounts = accounts
	}
	if len(b.Subscriptions.MerchantDetails) > 0 {
		details := make([]domain.MerchantDetail, len(b.Subscriptions.MerchantDetails))
		for i, d := range b.Subscriptions.MerchantDetails {
			d.Merchant = guardrail.SanitizeMerchantName(d.Merchant)
			details[i] = d
		}
		b.Subscriptions.MerchantDetails = details
	}
	return b
}
