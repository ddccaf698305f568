package ingest

import (
	"context"
	"fmt"

	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/store"
)

// Persist writes the dataset through the repository in referential order:
// users, then accounts, then transactions. Transactions are append-only, so
// persisting the same dataset twice requires a fresh database.
func (d Dataset) Persist(ctx context.Context, repo store.Repository) error {
	if err := repo.UpsertUsers(ctx, d.Users); err != nil {
		return fmt.Errorf("Persist: upserting users: %w", err)
	}
	if err := repo.UpsertAccounts(ctx, d.Accounts); err != nil {
		return fmt.Errorf("Persist: upserting accounts: %w", err)
	}
	if err := repo.InsertTransactions(ctx, d.Transactions); err != nil {
		return fmt.Errorf("Persist: inserting transactions: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("users", len(d.Users)).
		Int("accounts", len(d.Accounts)).
		Int("transactions", len(d.Transactions)).
		Msg("synthetic ledger persisted")
	return nil
}
