// Package helpers seeds the database for integration tests.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/go-petr/pet-wallet/internal/accountrepo"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/historyrepo"
	"github.com/go-petr/pet-wallet/internal/transferrepo"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/randompkg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedAccount creates an account with the given balance.
func SeedAccount(t *testing.T, db dbpkg.SQLInterface, balance string) domain.Account {
	t.Helper()

	ctx := context.Background()
	repo := accountrepo.NewRepoPGS(db)

	account, err := repo.Create(ctx, randompkg.UserID(), randompkg.Name())
	if err != nil {
		t.Fatalf("accountrepo.Create() returned error: %v", err)
	}

	if balance == "" || balance == "0" {
		return account
	}

	account, err = repo.AddBalance(ctx, account.ID, decimal.RequireFromString(balance))
	if err != nil {
		t.Fatalf("accountrepo.AddBalance(%v) returned error: %v", balance, err)
	}

	return account
}

// SeedTransfer writes a transfer of amount between the accounts with both history records,
// bypassing balance updates.
func SeedTransfer(t *testing.T, db dbpkg.SQLInterface, sender, recipient domain.Account, amount string, at time.Time) domain.Transfer {
	t.Helper()

	ctx := context.Background()

	transfer := domain.Transfer{
		ID:          uuid.NewString(),
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      decimal.RequireFromString(amount),
		Fingerprint: randompkg.String(64),
		CreatedAt:   at.UTC().Truncate(time.Microsecond),
	}

	if err := transferrepo.NewTxRepoPGS(db).Create(ctx, transfer); err != nil {
		t.Fatalf("transferrepo.Create() returned error: %v", err)
	}

	history := historyrepo.NewRepoPGS(db)

	records := []domain.TransactionRecord{
		{
			TransactionID:    transfer.ID,
			AccountID:        sender.ID,
			Amount:           transfer.Amount.Neg(),
			Direction:        domain.DirectionDebit,
			CounterpartyID:   recipient.ID,
			CounterpartyName: recipient.Name,
			CreatedAt:        transfer.CreatedAt,
		},
		{
			TransactionID:    transfer.ID,
			AccountID:        recipient.ID,
			Amount:           transfer.Amount,
			Direction:        domain.DirectionCredit,
			CounterpartyID:   sender.ID,
			CounterpartyName: sender.Name,
			CreatedAt:        transfer.CreatedAt,
		},
	}

	for _, r := range records {
		if _, err := history.Create(ctx, r); err != nil {
			t.Fatalf("historyrepo.Create() returned error: %v", err)
		}
	}

	return transfer
}
