// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	pkeyConstraint         = "accounts_pkey"
	balanceCheckConstraint = "accounts_balance_check"
)

// RepoPGS facilitates account repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns account RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Balance,
		&a.CreatedAt,
	)

	return a, err
}

func storeErr(err error) error {
	return dbpkg.Classify(err, domain.ErrConcurrentConflict, domain.ErrStoreUnavailable, errorspkg.ErrInternal)
}

const createQuery = `
INSERT INTO
    accounts (id, name)
VALUES
    ($1, $2)
RETURNING id, name, balance, created_at
`

// Create creates the account with zero balance and then returns it.
func (r *RepoPGS) Create(ctx context.Context, id, name string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, createQuery, id, name))
	if err != nil {
		l.Error().Err(err).Str("account_id", id).Send()

		if dbpkg.Constraint(err) == pkeyConstraint {
			return domain.Account{}, domain.ErrAccountAlreadyExists
		}

		return domain.Account{}, storeErr(err)
	}

	return a, nil
}

const getQuery = `
SELECT
	id, name, balance, created_at
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrUserNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, storeErr(err)
	}

	return a, nil
}

const getForUpdateQuery = getQuery + `FOR UPDATE
`

// GetForUpdate returns the account with the given id and locks its row until the end
// of the transaction.
func (r *RepoPGS) GetForUpdate(ctx context.Context, id string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getForUpdateQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrUserNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, storeErr(err)
	}

	return a, nil
}

const addBalanceQuery = `
UPDATE accounts
SET balance = balance + $1
WHERE id = $2
RETURNING id, name, balance, created_at
`

// AddBalance changes the account's balance and returns the changed account.
func (r *RepoPGS) AddBalance(ctx context.Context, id string, amount decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, addBalanceQuery, amount, id))
	if err != nil {
		l.Error().Err(err).Send()

		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrUserNotFound
		}

		if dbpkg.Constraint(err) == balanceCheckConstraint {
			return domain.Account{}, domain.ErrInsufficientBalance
		}

		return domain.Account{}, storeErr(err)
	}

	return a, nil
}
