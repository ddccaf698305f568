package signals

import (
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Fixed anchor so every test sees the same lookback windows.
var testAsOf = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var txnSeq int

// spend builds a negative-amount transaction posted on the given date.
func spend(userID, accountID string, date time.Time, amount float64, merchant, channel string, category ...string) domain.Transaction {
	txnSeq++
	return domain.Transaction{
		TransactionID:  fmt.Sprintf("txn_%04d", txnSeq),
		AccountID:      accountID,
		UserID:         userID,
		Date:           date,
		Amount:         -amount,
		MerchantName:   merchant,
		Category:       category,
		PaymentChannel: channel,
	}
}

// deposit builds a positive-amount transaction.
func deposit(userID, accountID string, date time.Time, amount float64, merchant string, category ...string) domain.Transaction {
	txnSeq++
	return domain.Transaction{
		TransactionID:  fmt.Sprintf("txn_%04d", txnSeq),
		AccountID:      accountID,
		UserID:         userID,
		Date:           date,
		Amount:         amount,
		MerchantName:   merchant,
		Category:       category,
		PaymentChannel: domain.ChannelOther,
	}
}

func checkingAccount(userID, id string, balance float64) domain.Account {
	return domain.Account{AccountID: id, UserID: userID, Type: domain.AccountTypeDepository, Subtype: "checking", Name: "Everyday Checking", Balance: balance}
}

func savingsAccount(userID, id string, balance float64) domain.Account {
	return domain.Account{AccountID: id, UserID: userID, Type: domain.AccountTypeDepository, Subtype: "savings", Name: "High Yield Savings", Balance: balance}
}

func creditAccount(userID, id string, balance, limit float64) domain.Account {
	return domain.Account{AccountID: id, UserID: userID, Type: domain.AccountTypeCredit, Subtype: "credit card", Name: "Rewards Card", Mask: "4523", Balance: balance, Limit: limit}
}
