// Package transferrepo manages repository layer of transfers.
package transferrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-wallet/internal/accountrepo"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/historyrepo"
	"github.com/go-petr/pet-wallet/internal/outboxrepo"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/rs/zerolog"
)

const idempotencyKeyConstraint = "transfers_sender_idempotency_key"

// RepoPGS facilitates transfer repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns transfer RepoPGS that works inside the given transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns transfer RepoPGS wiht connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

func storeErr(err error) error {
	return dbpkg.Classify(err, domain.ErrConcurrentConflict, domain.ErrStoreUnavailable, errorspkg.ErrInternal)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const createQuery = `
INSERT INTO
    transfers (id, sender_id, recipient_id, amount, idempotency_key, fingerprint, created_at)
VALUES
    ($1, $2, $3, $4, $5, $6, $7)
`

// Create stores the transfer.
//
// A second transfer with the same sender and idempotency key fails with ErrConcurrentConflict.
func (r *RepoPGS) Create(ctx context.Context, t domain.Transfer) error {
	l := zerolog.Ctx(ctx)

	_, err := r.db.ExecContext(ctx, createQuery,
		t.ID,
		t.SenderID,
		t.RecipientID,
		t.Amount,
		nullString(t.IdempotencyKey),
		t.Fingerprint,
		t.CreatedAt,
	)
	if err != nil {
		l.Error().Err(err).Str("transaction_id", t.ID).Send()

		if dbpkg.Constraint(err) == idempotencyKeyConstraint {
			return domain.ErrConcurrentConflict
		}

		return storeErr(err)
	}

	return nil
}

const getByIdempotencyKeyQuery = `
SELECT
	id, sender_id, recipient_id, amount, idempotency_key, fingerprint, created_at
FROM transfers
WHERE sender_id = $1 AND idempotency_key = $2
`

// GetByIdempotencyKey returns the committed transfer of the sender with the given key
// together with the current state of both accounts and both history records.
func (r *RepoPGS) GetByIdempotencyKey(ctx context.Context, senderID, key string) (domain.TransferTxResult, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getByIdempotencyKeyQuery, senderID, key)

	var (
		t      domain.Transfer
		stored sql.NullString
	)

	err := row.Scan(
		&t.ID,
		&t.SenderID,
		&t.RecipientID,
		&t.Amount,
		&stored,
		&t.Fingerprint,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransferTxResult{}, domain.ErrTransferNotFound
		}

		l.Error().Err(err).Send()

		return domain.TransferTxResult{}, storeErr(err)
	}

	t.IdempotencyKey = stored.String

	accountRepo := accountrepo.NewRepoPGS(r.db)
	historyRepo := historyrepo.NewRepoPGS(r.db)

	result := domain.TransferTxResult{Transfer: t}

	if result.Sender, err = accountRepo.Get(ctx, t.SenderID); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Recipient, err = accountRepo.Get(ctx, t.RecipientID); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Debit, err = historyRepo.Get(ctx, t.SenderID, t.ID); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Credit, err = historyRepo.Get(ctx, t.RecipientID, t.ID); err != nil {
		return domain.TransferTxResult{}, err
	}

	return result, nil
}

// Transfer performs a money transfer between two accounts.
//
// It locks both account rows, lets apply validate the transfer against the locked state,
// then updates balances and writes the transfer, both history records and the outbox event
// within a single db transaction.
func (r *RepoPGS) Transfer(ctx context.Context, senderID, recipientID string, apply domain.TransferFunc) (domain.TransferTxResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.TransferTxResult

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return result, storeErr(err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	accountRepo := accountrepo.NewRepoPGS(tx)

	sender, recipient, err := lockAccounts(ctx, accountRepo, senderID, recipientID)
	if err != nil {
		return result, err
	}

	data, err := apply(sender, recipient)
	if err != nil {
		return result, err
	}

	if err := NewTxRepoPGS(tx).Create(ctx, data.Transfer); err != nil {
		return result, err
	}

	amount := data.Transfer.Amount

	// To avoid deadlocks execute statements in consistent id order
	if senderID < recipientID {
		result.Sender, err = accountRepo.AddBalance(ctx, senderID, amount.Neg())
		if err == nil {
			result.Recipient, err = accountRepo.AddBalance(ctx, recipientID, amount)
		}
	} else {
		result.Recipient, err = accountRepo.AddBalance(ctx, recipientID, amount)
		if err == nil {
			result.Sender, err = accountRepo.AddBalance(ctx, senderID, amount.Neg())
		}
	}

	if err != nil {
		return domain.TransferTxResult{}, err
	}

	historyRepo := historyrepo.NewRepoPGS(tx)

	if result.Debit, err = historyRepo.Create(ctx, data.Debit); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Credit, err = historyRepo.Create(ctx, data.Credit); err != nil {
		return domain.TransferTxResult{}, err
	}

	if _, err := outboxrepo.NewTxRepoPGS(tx).Create(ctx, data.Event); err != nil {
		return domain.TransferTxResult{}, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Str("transaction_id", data.Transfer.ID).Msg("commit failed")

		if dbpkg.IsConflict(err) {
			return domain.TransferTxResult{}, domain.ErrConcurrentConflict
		}

		return domain.TransferTxResult{}, domain.ErrOutcomeUnknown
	}

	result.Transfer = data.Transfer

	return result, nil
}

// lockAccounts locks both rows in ascending id order.
func lockAccounts(ctx context.Context, r *accountrepo.RepoPGS, senderID, recipientID string) (domain.Account, domain.Account, error) {
	lock := func(id string, notFound error) (domain.Account, error) {
		a, err := r.GetForUpdate(ctx, id)
		if errors.Is(err, domain.ErrUserNotFound) {
			return a, notFound
		}

		return a, err
	}

	var (
		sender, recipient domain.Account
		err               error
	)

	if senderID < recipientID {
		if sender, err = lock(senderID, domain.ErrSenderNotFound); err != nil {
			return sender, recipient, err
		}

		recipient, err = lock(recipientID, domain.ErrRecipientNotFound)
	} else {
		if recipient, err = lock(recipientID, domain.ErrRecipientNotFound); err != nil {
			return sender, recipient, err
		}

		sender, err = lock(senderID, domain.ErrSenderNotFound)
	}

	return sender, recipient, err
}
