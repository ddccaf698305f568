package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/recommend"
)

// SystemPrompt frames every model call. The guidelines mirror the tone
// guardrail so a compliant model never trips it.
const SystemPrompt = `You are a helpful financial education assistant for SpendSense. Your role is to provide educational information about users' financial data, NOT financial advice.

CRITICAL GUIDELINES:
1. EDUCATIONAL ONLY: Provide information and insights about financial data. Never give specific financial advice (e.g., "you should invest in X" or "you should pay off Y debt first").
2. NO SHAMING: Use neutral, supportive language. Never use judgmental phrases like "overspending", "bad habits", "poor choices", "irresponsible", or "wasteful".
3. DATA CITATIONS: Always cite specific data points from the user's financial information when making statements. Use exact numbers, percentages, and account details.
4. POSITIVE TONE: Frame insights constructively. Focus on patterns and opportunities rather than problems.
5. DISCLAIMER: Always end responses with: "This is educational content, not financial advice. Consult a licensed advisor for personalized guidance."

RESPONSE FORMAT:
- Be concise and clear
- Use bullet points for multiple insights
- Highlight specific data points (e.g., "Your Visa ending in 4523 shows 65% utilization")
- Include relevant context from their financial profile

EXAMPLE RESPONSES:
Good: "Based on your recent transactions, you have 3 recurring subscriptions totaling $47/month: Netflix ($15), Spotify ($10), and Adobe ($22). This represents about 3% of your monthly income."
Bad: "You're overspending on subscriptions. You should cancel some of these wasteful services."

Remember: Your goal is education and awareness, not judgment or advice.`

// Disclaimer is appended to any response that does not already carry it.
const Disclaimer = "This is educational content, not financial advice. Consult a licensed advisor for personalized guidance."

// contextMerchantLimit caps how many recurring merchants the prompt lists.
const contextMerchantLimit = 5

// contextCategoryLimit caps how many spending categories the prompt lists.
const contextCategoryLimit = 3

// usd shares the recommendation rationale formatter so the prompt shows the
// model the same display form the citation extractor matches.
func usd(amount float64) string {
	return recommend.FormatCurrency(amount)
}

// BuildUserContext renders the financial context block of the prompt from
// already-sanitized inputs. An empty persona omits the persona line;
// monthlyIncome of zero omits the savings behavior line.
func BuildUserContext(persona domain.Persona, bundle domain.SignalBundle, monthlyIncome float64, recent []domain.Transaction) string {
	var parts []string

	if persona != "" {
		parts = append(parts, "User Persona: "+string(persona))
	}

	if accounts := bundle.CreditUtilization.Accounts; len(accounts) > 0 {
		parts = append(parts, "\nCredit Utilization:")
		for _, acc := range accounts {
			mask := acc.Mask
			if mask == "" {
				mask = "Account"
			}
			parts = append(parts, fmt.Sprintf("  - %s: %.1f%% (%s of %s)",
				mask, acc.Utilization, usd(acc.Balance), usd(acc.Limit)))
		}
	}

	if subs := bundle.Subscriptions; subs.MonthlyRecurring > 0 {
		parts = append(parts, fmt.Sprintf("\nRecurring Subscriptions: %s/month", usd(subs.MonthlyRecurring)))
		for i, m := range subs.MerchantDetails {
			if i == contextMerchantLimit {
				break
			}
			parts = append(parts, fmt.Sprintf("  - %s: %s/month", m.Merchant, usd(m.MonthlyEquivalent)))
		}
	}

	if monthlyIncome > 0 {
		expenses := bundle.IncomeStability.AvgMonthlyExpenses
		rate := (monthlyIncome - expenses) / monthlyIncome * 100
		parts = append(parts, fmt.Sprintf("\nSavings Behavior: Average monthly income %s, expenses %s (savings rate: %.1f%%)",
			usd(monthlyIncome), usd(expenses), rate))
	}

	if len(recent) > 0 {
		parts = append(parts, fmt.Sprintf("\nRecent Transactions (last %d):", len(recent)))

		var expenseTotal float64
		byCategory := make(map[string]float64)
		for _, t := range recent {
			if t.Amount < 0 {
				expenseTotal += -t.Amount
				byCategory[domain.PrimaryCategory(t.Category)] += -t.Amount
			}
		}
		if expenseTotal > 0 {
			parts = append(parts, fmt.Sprintf("  - Total expenses: %s", usd(expenseTotal)))
		}
		if len(byCategory) > 0 {
			parts = append(parts, "  - Top spending categories:")
			for _, c := range topCategories(byCategory, contextCategoryLimit) {
				parts = append(parts, fmt.Sprintf("    - %s: %s", c.category, usd(c.amount)))
			}
		}
	}

	if len(parts) == 0 {
		return "No financial data available."
	}
	return strings.Join(parts, "\n")
}

type categoryTotal struct {
	category string
	amount   float64
}

func topCategories(totals map[string]float64, limit int) []categoryTotal {
	out := make([]categoryTotal, 0, len(totals))
	for category, amount := range totals {
		out = append(out, categoryTotal{category: category, amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].amount != out[j].amount {
			return out[i].amount > out[j].amount
		}
		return out[i].category < out[j].category
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// questionTurn assembles the first user turn: financial context, the
// sanitized question, and the citation instruction.
func questionTurn(userContext, question string) string {
	return "User's Financial Context:\n" + userContext +
		"\n\nUser Question: " + question +
		"\n\nPlease provide an educational response that cites specific data points from the user's financial information above."
}

// revisionRequest asks the model to rewrite a response that failed the tone
// check, naming the phrases it must drop.
func revisionRequest(phrases []string) string {
	return "Please revise your response. Avoid these phrases: " + strings.Join(phrases, ", ") +
		". Use more neutral, educational language."
}
