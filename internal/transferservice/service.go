// Package transferservice manages business logic layer of transfers.
package transferservice

import (
	"context"
	"encoding/hex"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/moneypkg"
)

// Repo provides data access layer interface needed by transfer service layer.
//
// Transfer locks both accounts, calls apply with their current state and writes the
// returned TransferTx as a single atomic unit.
//
//go:generate mockgen -source service.go -destination service_mock.go -package transferservice
type Repo interface {
	Transfer(ctx context.Context, senderID, recipientID string, apply domain.TransferFunc) (domain.TransferTxResult, error)
	GetByIdempotencyKey(ctx context.Context, senderID, key string) (domain.TransferTxResult, error)
}

// AccountService provides account lookups needed by transfer service layer.
type AccountService interface {
	Get(ctx context.Context, id string) (domain.Account, error)
}

// Namespace of transaction ids derived from idempotency keys.
var idempotencyNamespace = uuid.MustParse("8f0f8f4e-2a4c-4c1b-9d55-5d2f1f0c6a11")

var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Service facilitates transfer service layer logic.
type Service struct {
	repo           Repo
	accountService AccountService
	topic          string
	attempts       int
	backoff        time.Duration
	now            func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithRetry makes Transfer retry conflicts and store outages up to attempts times,
// doubling the pause after each try starting from backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}

		s.backoff = backoff
	}
}

// WithTopic sets the topic of transfer events.
func WithTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithClock replaces the clock used to timestamp transfers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New return transfer service struct to manage transfer bussines logic.
func New(tr Repo, as AccountService, opts ...Option) *Service {
	s := &Service{
		repo:           tr,
		accountService: as,
		topic:          domain.TopicTransferCompleted,
		attempts:       1,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) validRequest(ctx context.Context, arg domain.CreateTransferParams) (decimal.Decimal, error) {
	l := zerolog.Ctx(ctx)

	amount, err := moneypkg.Parse(arg.Amount)
	if err != nil {
		l.Info().Err(err).Str("amount", arg.Amount).Send()
		return decimal.Zero, domain.ErrInvalidAmount
	}

	if arg.SenderID == arg.RecipientID {
		l.Info().Err(domain.ErrSelfTransfer).Send()
		return decimal.Zero, domain.ErrSelfTransfer
	}

	if arg.IdempotencyKey != "" && !idempotencyKeyPattern.MatchString(arg.IdempotencyKey) {
		l.Info().Err(domain.ErrInvalidIdempotencyKey).Send()
		return decimal.Zero, domain.ErrInvalidIdempotencyKey
	}

	return amount, nil
}

func (s *Service) validParties(ctx context.Context, arg domain.CreateTransferParams, amount decimal.Decimal) error {
	l := zerolog.Ctx(ctx)

	sender, err := s.accountService.Get(ctx, arg.SenderID)
	if err != nil {
		l.Info().Err(err).Str("sender_id", arg.SenderID).Send()

		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrSenderNotFound
		}

		return err
	}

	_, err = s.accountService.Get(ctx, arg.RecipientID)
	if err != nil {
		l.Info().Err(err).Str("recipient_id", arg.RecipientID).Send()

		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrRecipientNotFound
		}

		return err
	}

	if sender.Balance.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}

	return nil
}

// Transfer checks if transfer request is valid and then executes transfer.
//
// A request that repeats the idempotency key of a committed transfer returns that
// transfer with Replayed set instead of moving money again.
func (s *Service) Transfer(ctx context.Context, arg domain.CreateTransferParams) (domain.TransferTxResult, error) {
	amount, err := s.validRequest(ctx, arg)
	if err != nil {
		return domain.TransferTxResult{}, err
	}

	fp := fingerprint(arg.SenderID, arg.RecipientID, amount)

	if arg.IdempotencyKey != "" {
		result, err := s.replay(ctx, arg, fp)
		if !errors.Is(err, domain.ErrTransferNotFound) {
			return result, err
		}
	}

	if err := s.validParties(ctx, arg, amount); err != nil {
		return domain.TransferTxResult{}, err
	}

	apply := s.applyFunc(arg, amount, fp)

	l := zerolog.Ctx(ctx).With().
		Str("sender_id", arg.SenderID).
		Str("recipient_id", arg.RecipientID).
		Str("amount", amount.String()).
		Logger()

	for attempt := 1; ; attempt++ {
		l.Debug().Int("attempt", attempt).Msg("transfer applying")

		result, err := s.repo.Transfer(ctx, arg.SenderID, arg.RecipientID, apply)
		if err == nil {
			l.Info().Str("transaction_id", result.Transfer.ID).Msg("transfer committed")
			return result, nil
		}

		l.Info().Err(err).Int("attempt", attempt).Msg("transfer rolled back")

		if !domain.IsRetryable(err) {
			return domain.TransferTxResult{}, err
		}

		// A conflict on the idempotency key means a duplicate request won the race.
		if arg.IdempotencyKey != "" {
			result, rerr := s.replay(ctx, arg, fp)
			if !errors.Is(rerr, domain.ErrTransferNotFound) {
				return result, rerr
			}
		}

		if attempt >= s.attempts {
			return domain.TransferTxResult{}, err
		}

		if err := sleep(ctx, s.backoff<<(attempt-1)); err != nil {
			return domain.TransferTxResult{}, domain.ErrStoreUnavailable
		}
	}
}

// applyFunc returns the part of the transfer that runs inside the store's atomic section.
func (s *Service) applyFunc(arg domain.CreateTransferParams, amount decimal.Decimal, fp string) domain.TransferFunc {
	return func(sender, recipient domain.Account) (domain.TransferTx, error) {
		// The balance read before the store locked the accounts may be stale.
		if sender.Balance.LessThan(amount) {
			return domain.TransferTx{}, domain.ErrInsufficientBalance
		}

		t := domain.Transfer{
			ID:             transactionID(arg.SenderID, arg.IdempotencyKey),
			SenderID:       sender.ID,
			RecipientID:    recipient.ID,
			Amount:         amount,
			IdempotencyKey: arg.IdempotencyKey,
			Fingerprint:    fp,
			CreatedAt:      s.now().UTC().Truncate(time.Microsecond),
		}

		event, err := domain.NewTransferCompletedEvent(s.topic, t)
		if err != nil {
			return domain.TransferTx{}, err
		}

		tx := domain.TransferTx{
			Transfer: t,
			Debit:    record(t, sender, recipient, domain.DirectionDebit),
			Credit:   record(t, recipient, sender, domain.DirectionCredit),
			Event:    event,
		}

		return tx, nil
	}
}

func (s *Service) replay(ctx context.Context, arg domain.CreateTransferParams, fp string) (domain.TransferTxResult, error) {
	l := zerolog.Ctx(ctx)

	result, err := s.repo.GetByIdempotencyKey(ctx, arg.SenderID, arg.IdempotencyKey)
	if err != nil {
		return domain.TransferTxResult{}, err
	}

	if result.Transfer.Fingerprint != fp {
		l.Info().Str("idempotency_key", arg.IdempotencyKey).Msg("idempotency key reused")
		return domain.TransferTxResult{}, domain.ErrIdempotencyKeyReused
	}

	l.Info().Str("transaction_id", result.Transfer.ID).Msg("transfer replayed")
	result.Replayed = true

	return result, nil
}

func record(t domain.Transfer, owner, counterparty domain.Account, dir domain.Direction) domain.TransactionRecord {
	amount := t.Amount
	if dir == domain.DirectionDebit {
		amount = amount.Neg()
	}

	return domain.TransactionRecord{
		TransactionID:    t.ID,
		AccountID:        owner.ID,
		Amount:           amount,
		Direction:        dir,
		CounterpartyID:   counterparty.ID,
		CounterpartyName: counterparty.Name,
		CreatedAt:        t.CreatedAt,
	}
}

// transactionID derives the id from the idempotency key so that a caller in doubt can find
// the transfer in history, and is random otherwise.
func transactionID(senderID, key string) string {
	if key == "" {
		return uuid.NewString()
	}

	return uuid.NewSHA1(idempotencyNamespace, []byte(senderID+"/"+key)).String()
}

func fingerprint(senderID, recipientID string, amount decimal.Decimal) string {
	sum := blake2b.Sum256([]byte(senderID + "\x00" + recipientID + "\x00" + amount.StringFixed(moneypkg.Scale)))
	return hex.EncodeToString(sum[:])
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
