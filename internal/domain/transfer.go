package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates that the amount is not positive or has more than two decimals.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSelfTransfer indicates that the sender and the recipient are the same user.
	ErrSelfTransfer = errors.New("self transfer not allowed")
	// ErrSenderNotFound indicates that the sender account is not found.
	ErrSenderNotFound = errors.New("sender not found")
	// ErrRecipientNotFound indicates that the recipient account is not found.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrInsufficientBalance indicates that the sender does not have sufficient balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrConcurrentConflict indicates that a concurrent update interfered; nothing was applied.
	ErrConcurrentConflict = errors.New("concurrent conflict")
	// ErrStoreUnavailable indicates that the store could not be reached; nothing was applied.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrOutcomeUnknown indicates that the commit was sent but its result is not confirmed.
	ErrOutcomeUnknown = errors.New("transfer outcome unknown, check transaction history")
	// ErrInvalidIdempotencyKey indicates malformed idempotency key.
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	// ErrIdempotencyKeyReused indicates that the key was already used for a different transfer.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different parameters")
	// ErrTransferNotFound indicates that the transfer is not found.
	ErrTransferNotFound = errors.New("transfer not found")
)

// IsRetryable reports whether the failed call may be retried as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentConflict) || errors.Is(err, ErrStoreUnavailable)
}

// CreateTransferParams is the input data for the transfer transaction.
type CreateTransferParams struct {
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Transfer holds a committed money movement between two accounts.
type Transfer struct {
	ID             string          `json:"id"`
	SenderID       string          `json:"sender_id"`
	RecipientID    string          `json:"recipient_id"`
	Amount         decimal.Decimal `json:"amount"` // always positive
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Fingerprint    string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransferTx is everything a store writes for one transfer.
type TransferTx struct {
	Transfer Transfer
	Debit    TransactionRecord
	Credit   TransactionRecord
	Event    OutboxEvent
}

// TransferFunc validates a transfer against the locked sender and recipient
// and returns what has to be written. The store calls it inside its atomic section.
type TransferFunc func(sender, recipient Account) (TransferTx, error)

// TransferTxResult is the result of the transfer transaction.
type TransferTxResult struct {
	Transfer  Transfer          `json:"transfer"`
	Sender    Account           `json:"sender"`
	Recipient Account           `json:"recipient"`
	Debit     TransactionRecord `json:"debit"`
	Credit    TransactionRecord `json:"credit"`
	Replayed  bool              `json:"replayed"`
}
