package memrepo

import (
	"context"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/rs/zerolog"
)

// TransferRepo is the memory transfer repository.
type TransferRepo struct {
	s *Store
}

// Transfer locks both accounts in ascending id order, lets apply build the transfer and
// applies the debit leg, then the credit leg. If anything fails both accounts are restored,
// so readers never see one leg without the other.
func (r *TransferRepo) Transfer(ctx context.Context, senderID, recipientID string, apply domain.TransferFunc) (domain.TransferTxResult, error) {
	l := zerolog.Ctx(ctx)

	if err := ctx.Err(); err != nil {
		return domain.TransferTxResult{}, err
	}

	if senderID == recipientID {
		return domain.TransferTxResult{}, domain.ErrSelfTransfer
	}

	sender, ok := r.s.entry(senderID)
	if !ok {
		return domain.TransferTxResult{}, domain.ErrSenderNotFound
	}

	recipient, ok := r.s.entry(recipientID)
	if !ok {
		return domain.TransferTxResult{}, domain.ErrRecipientNotFound
	}

	first, second := sender, recipient
	if recipientID < senderID {
		first, second = recipient, sender
	}

	first.mu.Lock()
	defer first.mu.Unlock()

	second.mu.Lock()
	defer second.mu.Unlock()

	tx, err := apply(sender.account, recipient.account)
	if err != nil {
		return domain.TransferTxResult{}, err
	}

	id := tx.Transfer.ID

	// Keys are scoped to the sender, whose lock is held, so the check cannot race.
	if key := tx.Transfer.IdempotencyKey; key != "" {
		r.s.mu.RLock()
		_, dup := r.s.keys[idempotencyKey(senderID, key)]
		r.s.mu.RUnlock()

		if dup {
			return domain.TransferTxResult{}, domain.ErrConcurrentConflict
		}
	}

	senderBefore, recipientBefore := sender.account, recipient.account

	rollback := func() {
		sender.account, recipient.account = senderBefore, recipientBefore
		delete(sender.history, id)
		delete(recipient.history, id)
	}

	balance := sender.account.Balance.Sub(tx.Transfer.Amount)
	if balance.IsNegative() {
		return domain.TransferTxResult{}, domain.ErrInsufficientBalance
	}

	sender.account.Balance = balance
	sender.history[id] = tx.Debit

	if err := r.s.runFault(StageDebit); err != nil {
		l.Info().Err(err).Str("stage", StageDebit).Msg("transfer aborted")
		rollback()

		return domain.TransferTxResult{}, err
	}

	recipient.account.Balance = recipient.account.Balance.Add(tx.Transfer.Amount)
	recipient.history[id] = tx.Credit

	if err := r.s.runFault(StageCredit); err != nil {
		l.Info().Err(err).Str("stage", StageCredit).Msg("transfer aborted")
		rollback()

		return domain.TransferTxResult{}, err
	}

	r.s.mu.Lock()
	r.s.transfers[id] = tx.Transfer
	if tx.Transfer.IdempotencyKey != "" {
		r.s.keys[idempotencyKey(senderID, tx.Transfer.IdempotencyKey)] = id
	}

	r.s.nextEvent++
	event := tx.Event
	event.ID = r.s.nextEvent
	r.s.outbox = append(r.s.outbox, event)
	r.s.mu.Unlock()

	result := domain.TransferTxResult{
		Transfer:  tx.Transfer,
		Sender:    sender.account,
		Recipient: recipient.account,
		Debit:     tx.Debit,
		Credit:    tx.Credit,
	}

	return result, nil
}

func (s *Store) runFault(stage string) error {
	if s.fault == nil {
		return nil
	}

	return s.fault(stage)
}

// GetByIdempotencyKey returns the committed transfer of the sender with the given key.
func (r *TransferRepo) GetByIdempotencyKey(ctx context.Context, senderID, key string) (domain.TransferTxResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransferTxResult{}, err
	}

	r.s.mu.RLock()
	t, ok := r.s.transfers[r.s.keys[idempotencyKey(senderID, key)]]
	r.s.mu.RUnlock()

	if !ok {
		return domain.TransferTxResult{}, domain.ErrTransferNotFound
	}

	accounts := r.s.Accounts()
	history := r.s.History()

	var (
		result = domain.TransferTxResult{Transfer: t}
		err    error
	)

	if result.Sender, err = accounts.Get(ctx, t.SenderID); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Recipient, err = accounts.Get(ctx, t.RecipientID); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Debit, err = history.Get(ctx, t.SenderID, t.ID); err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Credit, err = history.Get(ctx, t.RecipientID, t.ID); err != nil {
		return domain.TransferTxResult{}, err
	}

	return result, nil
}
