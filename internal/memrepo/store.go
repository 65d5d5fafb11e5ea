// Package memrepo keeps accounts, history, transfers and outbox events in process memory.
//
// It implements the same contracts as the postgres repositories and is selected with
// DB_DRIVER=memory. State is lost on restart.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/shopspring/decimal"
)

// Points of a transfer where a fault hook runs.
const (
	StageDebit  = "debit"
	StageCredit = "credit"
)

type entry struct {
	mu      sync.Mutex
	account domain.Account
	history map[string]domain.TransactionRecord
}

// Store is the shared state behind the memory repositories.
//
// mu guards the maps. Every entry has its own mutex that serializes balance and history
// changes of that account, so unrelated transfers never wait on each other.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	transfers map[string]domain.Transfer
	keys      map[string]string
	outbox    []domain.OutboxEvent
	nextEvent int64

	dispatchMu sync.Mutex

	fault func(stage string) error
	now   func() time.Time
}

// Option configures Store.
type Option func(*Store)

// WithFault installs a hook that runs after each transfer leg is applied. A non-nil
// error aborts the transfer and the store restores both accounts.
func WithFault(fault func(stage string) error) Option {
	return func(s *Store) {
		s.fault = fault
	}
}

// WithClock replaces the clock used for account creation time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]*entry),
		transfers: make(map[string]domain.Transfer),
		keys:      make(map[string]string),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Accounts returns account repository backed by s.
func (s *Store) Accounts() *AccountRepo {
	return &AccountRepo{s: s}
}

// History returns history repository backed by s.
func (s *Store) History() *HistoryRepo {
	return &HistoryRepo{s: s}
}

// Transfers returns transfer repository backed by s.
func (s *Store) Transfers() *TransferRepo {
	return &TransferRepo{s: s}
}

// Outbox returns outbox repository backed by s.
func (s *Store) Outbox() *OutboxRepo {
	return &OutboxRepo{s: s}
}

func (s *Store) entry(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]

	return e, ok
}

func idempotencyKey(senderID, key string) string {
	return senderID + "/" + key
}

// AccountRepo is the memory account repository.
type AccountRepo struct {
	s *Store
}

// Create creates the account with zero balance and then returns it.
func (r *AccountRepo) Create(ctx context.Context, id, name string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.entries[id]; ok {
		return domain.Account{}, domain.ErrAccountAlreadyExists
	}

	a := domain.Account{
		ID:        id,
		Name:      name,
		Balance:   decimal.Zero,
		CreatedAt: r.s.now().UTC(),
	}

	r.s.entries[id] = &entry{
		account: a,
		history: make(map[string]domain.TransactionRecord),
	}

	return a, nil
}

// Get returns the account with the given id.
func (r *AccountRepo) Get(ctx context.Context, id string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	e, ok := r.s.entry(id)
	if !ok {
		return domain.Account{}, domain.ErrUserNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.account, nil
}

// AddBalance changes the account's balance and returns the changed account.
// It is used to fund accounts and never records history.
func (r *AccountRepo) AddBalance(ctx context.Context, id string, amount decimal.Decimal) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	e, ok := r.s.entry(id)
	if !ok {
		return domain.Account{}, domain.ErrUserNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	balance := e.account.Balance.Add(amount)
	if balance.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientBalance
	}

	e.account.Balance = balance

	return e.account, nil
}

// HistoryRepo is the memory history repository.
type HistoryRepo struct {
	s *Store
}

// List returns records of the account in history order that come after arg.Cursor.
func (r *HistoryRepo) List(ctx context.Context, accountID string, arg domain.ListHistoryParams) ([]domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := r.s.entry(accountID)
	if !ok {
		return []domain.TransactionRecord{}, nil
	}

	e.mu.Lock()
	items := make([]domain.TransactionRecord, 0, len(e.history))

	for _, rec := range e.history {
		if arg.Cursor == nil || arg.Cursor.After(rec) {
			items = append(items, rec)
		}
	}
	e.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Before(items[j]) })

	if arg.Limit > 0 && int(arg.Limit) < len(items) {
		items = items[:arg.Limit]
	}

	return items, nil
}

// Get returns the account's record of the given transaction.
func (r *HistoryRepo) Get(ctx context.Context, accountID, transactionID string) (domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransactionRecord{}, err
	}

	e, ok := r.s.entry(accountID)
	if !ok {
		return domain.TransactionRecord{}, domain.ErrTransactionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.history[transactionID]
	if !ok {
		return domain.TransactionRecord{}, domain.ErrTransactionNotFound
	}

	return rec, nil
}
