// Package ingest generates the synthetic ledger used for demos and local
// development: user profiles, accounts, and transaction history with the
// recurring patterns the signal detectors look for. Generation is
// deterministic: the same Config produces the same Dataset.
package ingest

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spendsense/spendsense/internal/domain"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultUsers = 75
	DefaultDays  = 180
	DefaultSeed  = 42
)

// Annual income bands in dollars, assigned 30% / 50% / 20%.
const (
	incomeLowMin  = 30000
	incomeLowMax  = 49999
	incomeMedMin  = 50000
	incomeMedMax  = 99999
	incomeHighMin = 100000
	incomeHighMax = 150000
)

// Config controls generation. Now anchors the end of the transaction history;
// the same Seed and Now always yield the same dataset.
type Config struct {
	Users int
	Days  int
	Seed  uint64
	Now   time.Time
}

func (c Config) withDefaults() Config {
	if c.Users <= 0 {
		c.Users = DefaultUsers
	}
	if c.Days <= 0 {
		c.Days = DefaultDays
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	c.Now = day(c.Now.UTC())
	return c
}

// Dataset is a complete synthetic ledger, ready to persist.
type Dataset struct {
	Users        []domain.User
	Accounts     []domain.Account
	Transactions []domain.Transaction
}

// merchantPool maps one spending category to its merchants, Plaid-style
// category hierarchy, and usual payment channel.
type merchantPool struct {
	category  []string
	channel   string
	merchants []string
}

var (
	groceriesPool = merchantPool{
		category:  []string{"Food and Drink", "Groceries"},
		channel:   domain.ChannelInStore,
		merchants: []string{"Whole Foods", "Kroger", "Safeway", "Trader Joe's", "Walmart"},
	}
	restaurantsPool = merchantPool{
		category:  []string{"Food and Drink", "Restaurants"},
		channel:   domain.ChannelInStore,
		merchants: []string{"Starbucks", "McDonald's", "Chipotle", "Olive Garden", "Pizza Hut"},
	}
	billsPool = merchantPool{
		category:  []string{"Service", "Utilities"},
		channel:   domain.ChannelOnline,
		merchants: []string{"Electric Company", "Water Utility", "Internet Provider", "Phone Company"},
	}
	shoppingPool = merchantPool{
		category:  []string{"Shops", "Retail"},
		channel:   domain.ChannelOnline,
		merchants: []string{"Amazon", "Target", "Best Buy", "Macy's", "Home Depot"},
	}
	gasPool = merchantPool{
		category:  []string{"Travel", "Gas Stations"},
		channel:   domain.ChannelInStore,
		merchants: []string{"Shell", "Exxon", "Chevron", "BP"},
	}
	entertainmentPool = merchantPool{
		category:  []string{"Entertainment", "Streaming"},
		channel:   domain.ChannelOnline,
		merchants: []string{"Netflix", "Spotify", "Disney+", "Hulu", "YouTube Premium"},
	}
)

// checkingPools are the categories drawn for checking-account spend;
// creditPools for card spend.
var (
	checkingPools = []merchantPool{groceriesPool, restaurantsPool, billsPool, shoppingPool, gasPool}
	creditPools   = []merchantPool{groceriesPool, restaurantsPool, shoppingPool, entertainmentPool, gasPool}
)

// subscriptionMerchants is the recurring-charge pool. A user gets 0-8 of
// these billed monthly through the online channel.
var subscriptionMerchants = []string{
	"Netflix", "Spotify", "Disney+", "Hulu", "YouTube Premium",
	"Adobe Creative Cloud", "Microsoft 365", "Gym Membership",
}

var (
	checkingNames = []string{"Everyday Checking", "Essential Checking", "Direct Checking", "Total Checking"}
	savingsNames  = []string{"Rainy Day Savings", "High Yield Savings", "Goal Savings", "Premier Savings"}
	cardNames     = []string{"Sapphire Card", "Cash Rewards Card", "Travel Points Card", "Platinum Card", "Everyday Card"}
)

type subscription struct {
	merchant string
	amount   float64
	offset   int
}

// profile carries the draws that shape one user's ledger. Income and the
// behavior groups never leave the generator; only their transaction and
// balance consequences do.
type profile struct {
	user          domain.User
	income        int
	payFrequency  string
	payAmount     float64
	utilization   string
	savingsGroup  string
	overdue       bool
	subscriptions []subscription
	txnTarget     int
}

type generator struct {
	f     *gofakeit.Faker
	cfg   Config
	start time.Time
}

// Generate builds a synthetic ledger. User count, income bands, account
// probabilities, and transaction volumes follow fixed proportions so the
// persona mix of the resulting dataset is stable across seeds.
func Generate(cfg Config) Dataset {
	cfg = cfg.withDefaults()
	g := &generator{
		f:     gofakeit.New(cfg.Seed),
		cfg:   cfg,
		start: cfg.Now.AddDate(0, 0, -cfg.Days),
	}

	profiles := g.profiles()

	var ds Dataset
	userAccounts := make([][]domain.Account, len(profiles))
	for i := range profiles {
		userAccounts[i] = g.accounts(&profiles[i])
		ds.Users = append(ds.Users, profiles[i].user)
		ds.Accounts = append(ds.Accounts, userAccounts[i]...)
	}

	g.markOverdue(profiles, userAccounts)

	for i := range profiles {
		ds.Transactions = append(ds.Transactions, g.transactions(&profiles[i], userAccounts[i])...)
	}
	return ds
}

// profiles draws every user-level attribute up front, in a fixed phase
// order, so later per-account draws cannot disturb earlier ones.
func (g *generator) profiles() []profile {
	n := g.cfg.Users
	out := make([]profile, n)

	for i := range out {
		out[i].user = domain.User{
			UserID:    fmt.Sprintf("user_%03d", i+1),
			Name:      g.f.Name(),
			CreatedAt: g.start.AddDate(0, 0, -g.f.Number(0, 30)),
		}
	}

	bands := g.splitGroups(n, []string{"low", "medium", "high"}, []float64{0.30, 0.50, 0.20})
	for i := range out {
		switch bands[i] {
		case "low":
			out[i].income = g.f.Number(incomeLowMin, incomeLowMax)
		case "medium":
			out[i].income = g.f.Number(incomeMedMin, incomeMedMax)
		default:
			out[i].income = g.f.Number(incomeHighMin, incomeHighMax)
		}
	}

	utilization := g.splitGroups(n, []string{"low", "medium", "high"}, []float64{0.30, 0.30, 0.40})
	savings := g.splitGroups(n, []string{"active", "minimal", "none"}, []float64{0.25, 0.50, 0.25})
	for i := range out {
		out[i].utilization = utilization[i]
		out[i].savingsGroup = savings[i]
	}

	for i := range out {
		p := &out[i]
		p.payFrequency = g.f.RandomString([]string{"biweekly", "monthly"})
		if p.payFrequency == "biweekly" {
			p.payAmount = cents(float64(p.income) / 26)
		} else {
			p.payAmount = cents(float64(p.income) / 12)
		}

		count := g.f.Number(0, 8)
		pool := append([]string(nil), subscriptionMerchants...)
		g.f.ShuffleStrings(pool)
		for s := 0; s < count; s++ {
			p.subscriptions = append(p.subscriptions, subscription{
				merchant: pool[s],
				amount:   cents(g.f.Float64Range(5.99, 29.99)),
				offset:   g.f.Number(0, 29),
			})
		}

		p.txnTarget = g.f.Number(150, 250)
	}

	return out
}

// splitGroups shuffles user indexes and cuts them into labeled groups of
// fixed proportion. Counts are exact; the last label absorbs the remainder.
func (g *generator) splitGroups(n int, labels []string, weights []float64) []string {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	g.f.ShuffleInts(idx)

	out := make([]string, n)
	cursor := 0
	for li, label := range labels {
		count := int(float64(n) * weights[li])
		if li == len(labels)-1 {
			count = n - cursor
		}
		for k := 0; k < count && cursor < n; k++ {
			out[idx[cursor]] = label
			cursor++
		}
	}
	return out
}

// accounts builds one user's accounts: checking always, savings with 70%
// probability, credit with 60% probability (one card 70% of the time, two
// otherwise). Credit balances realize the user's utilization group and
// savings balances the savings group.
func (g *generator) accounts(p *profile) []domain.Account {
	userID := p.user.UserID
	monthlyIncome := float64(p.income) / 12
	counter := 1

	newID := func() string {
		id := fmt.Sprintf("acc_%s_%02d", userID, counter)
		counter++
		return id
	}

	accounts := []domain.Account{{
		AccountID: newID(),
		UserID:    userID,
		Type:      domain.AccountTypeDepository,
		Subtype:   "checking",
		Name:      g.f.RandomString(checkingNames),
		Mask:      fmt.Sprintf("%04d", g.f.Number(1000, 9999)),
		Balance:   cents(monthlyIncome * g.f.Float64Range(0.5, 2.0)),
	}}

	if g.f.Float64Range(0, 1) < 0.7 {
		monthlyExpenses := monthlyIncome * 0.7
		var balance float64
		switch p.savingsGroup {
		case "active":
			balance = monthlyExpenses * g.f.Float64Range(3.0, 12.0)
		case "minimal":
			balance = monthlyExpenses * g.f.Float64Range(0.5, 3.0)
		default:
			balance = g.f.Float64Range(0, 100)
		}
		accounts = append(accounts, domain.Account{
			AccountID: newID(),
			UserID:    userID,
			Type:      domain.AccountTypeDepository,
			Subtype:   "savings",
			Name:      g.f.RandomString(savingsNames),
			Mask:      fmt.Sprintf("%04d", g.f.Number(1000, 9999)),
			Balance:   cents(balance),
		})
	}

	if g.f.Float64Range(0, 1) < 0.6 {
		cards := 1
		if g.f.Float64Range(0, 1) < 0.3 {
			cards = 2
		}
		for c := 0; c < cards; c++ {
			limit := cents(float64(p.income) * g.f.Float64Range(0.10, 0.30))
			var pct float64
			switch p.utilization {
			case "low":
				pct = g.f.Float64Range(5, 29)
			case "medium":
				pct = g.f.Float64Range(30, 49)
			default:
				pct = g.f.Float64Range(50, 95)
			}
			accounts = append(accounts, domain.Account{
				AccountID: newID(),
				UserID:    userID,
				Type:      domain.AccountTypeCredit,
				Subtype:   "credit card",
				Name:      g.f.RandomString(cardNames),
				Mask:      fmt.Sprintf("%04d", g.f.Number(1000, 9999)),
				Balance:   cents(limit * pct / 100),
				Limit:     limit,
			})
		}
	}

	return accounts
}

// markOverdue flags 10% of card-holding users (at least one) for recent
// interest charges, which is what makes the credit signal report them
// overdue.
func (g *generator) markOverdue(profiles []profile, accounts [][]domain.Account) {
	var holders []int
	for i := range profiles {
		for _, a := range accounts[i] {
			if a.Type == domain.AccountTypeCredit {
				holders = append(holders, i)
				break
			}
		}
	}
	if len(holders) == 0 {
		return
	}

	g.f.ShuffleInts(holders)
	count := len(holders) / 10
	if count < 1 {
		count = 1
	}
	for _, i := range holders[:count] {
		profiles[i].overdue = true
	}
}

// transactions builds one user's history: payroll on a fixed cadence,
// monthly subscriptions, card payments sized against the estimated minimum,
// interest charges for overdue users, sporadic savings activity, and enough
// everyday spend to land the user's total inside the 150-250 target.
func (g *generator) transactions(p *profile, accounts []domain.Account) []domain.Transaction {
	var checking domain.Account
	var savings *domain.Account
	var cards []domain.Account
	for i, a := range accounts {
		switch {
		case a.Type == domain.AccountTypeCredit:
			cards = append(cards, a)
		case a.Subtype == "savings":
			savings = &accounts[i]
		default:
			checking = a
		}
	}

	seq := 0
	newTxn := func(acct domain.Account, dayOffset int, amount float64, merchant string, category []string, channel string, pending bool) domain.Transaction {
		seq++
		return domain.Transaction{
			TransactionID:  fmt.Sprintf("txn_%s_%04d", p.user.UserID, seq),
			AccountID:      acct.AccountID,
			UserID:         p.user.UserID,
			Date:           g.start.AddDate(0, 0, dayOffset),
			Amount:         amount,
			MerchantName:   merchant,
			Category:       category,
			PaymentChannel: channel,
			Pending:        pending,
		}
	}

	var out []domain.Transaction

	period, offsetMax := 14, 13
	if p.payFrequency == "monthly" {
		period, offsetMax = 30, 29
	}
	for d := g.f.Number(0, offsetMax); d <= g.cfg.Days; d += period {
		out = append(out, newTxn(checking, d, p.payAmount, "Payroll Deposit", []string{"Income", "Payroll"}, domain.ChannelOther, false))
	}

	for _, sub := range p.subscriptions {
		for d := sub.offset; d <= g.cfg.Days; d += 30 {
			out = append(out, newTxn(checking, d, -sub.amount, sub.merchant, []string{"Entertainment", "Subscription"}, domain.ChannelOnline, false))
		}
	}

	for _, card := range cards {
		estMin := math.Max(card.Balance*0.02, 25)
		var payment float64
		if g.f.Float64Range(0, 1) < 0.3 {
			// Minimum-only payer: close enough for the credit signal to flag.
			payment = cents(estMin + g.f.Float64Range(-2, 2))
		} else {
			payment = cents(estMin * g.f.Float64Range(1.5, 5.0))
		}
		for d := g.f.Number(0, 29); d <= g.cfg.Days; d += 30 {
			out = append(out, newTxn(card, d, payment, "Card Payment", []string{"Payment", "Credit Card"}, domain.ChannelOnline, false))
		}
	}

	if p.overdue {
		for _, card := range cards {
			apr := g.f.Float64Range(15, 25)
			charge := cents(card.Balance * apr / 100 / 12)
			for _, back := range []int{40, 10} {
				d := g.cfg.Days - back
				if d < 0 {
					d = 0
				}
				out = append(out, newTxn(card, d, -charge, "Purchase Interest Charge", []string{"Fees", "Interest"}, domain.ChannelOther, false))
			}
		}
	}

	if savings != nil {
		total := g.f.Number(5, 20)
		// At most three withdrawals; sporadic transfers must not read as a
		// recurring merchant.
		withdrawals := g.f.Number(0, 3)
		for i := 0; i < total; i++ {
			d := g.f.Number(0, g.cfg.Days)
			if i < withdrawals {
				out = append(out, newTxn(*savings, d, -cents(g.f.Float64Range(50, 500)), "Savings Withdrawal", []string{"Transfer", "Withdrawal"}, domain.ChannelOther, false))
			} else {
				out = append(out, newTxn(*savings, d, cents(g.f.Float64Range(100, 1000)), "Savings Deposit", []string{"Transfer", "Deposit"}, domain.ChannelOther, false))
			}
		}
	}

	for len(out) < p.txnTarget {
		acct := checking
		pools := checkingPools
		lo, hi := 10.0, 300.0
		if len(cards) > 0 && g.f.Float64Range(0, 1) < 0.3 {
			acct = cards[g.f.Number(0, len(cards)-1)]
			pools = creditPools
			lo, hi = 5.0, 500.0
		}
		pool := pools[g.f.Number(0, len(pools)-1)]
		d := g.f.Number(0, g.cfg.Days)
		pending := false
		if d >= g.cfg.Days-2 {
			pending = g.f.Float64Range(0, 1) < 0.5
		}
		out = append(out, newTxn(acct, d, -cents(g.f.Float64Range(lo, hi)), g.f.RandomString(pool.merchants), pool.category, pool.channel, pending))
	}

	return out
}

// day truncates to UTC midnight so generated dates carry no time component.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cents rounds to whole cents.
func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
