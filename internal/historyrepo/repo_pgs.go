// Package historyrepo manages repository layer of transaction history.
package historyrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates history repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns history RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.TransactionRecord, error) {
	var r domain.TransactionRecord

	err := row.Scan(
		&r.TransactionID,
		&r.AccountID,
		&r.Amount,
		&r.Direction,
		&r.CounterpartyID,
		&r.CounterpartyName,
		&r.CreatedAt,
	)

	return r, err
}

func storeErr(err error) error {
	return dbpkg.Classify(err, domain.ErrConcurrentConflict, domain.ErrStoreUnavailable, errorspkg.ErrInternal)
}

const createQuery = `
INSERT INTO
    history (transaction_id, account_id, amount, direction, counterparty_id, counterparty_name, created_at)
VALUES
    ($1, $2, $3, $4, $5, $6, $7)
RETURNING transaction_id, account_id, amount, direction, counterparty_id, counterparty_name, created_at
`

// Create appends the record to the account history and then returns it.
func (r *RepoPGS) Create(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery,
		rec.TransactionID,
		rec.AccountID,
		rec.Amount,
		rec.Direction,
		rec.CounterpartyID,
		rec.CounterpartyName,
		rec.CreatedAt,
	)

	created, err := scanRecord(row)
	if err != nil {
		l.Error().Err(err).Str("transaction_id", rec.TransactionID).Send()
		return domain.TransactionRecord{}, storeErr(err)
	}

	return created, nil
}

const getQuery = `
SELECT
	transaction_id, account_id, amount, direction, counterparty_id, counterparty_name, created_at
FROM history
WHERE account_id = $1 AND transaction_id = $2
`

// Get returns the account's record of the given transaction.
func (r *RepoPGS) Get(ctx context.Context, accountID, transactionID string) (domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	if _, err := uuid.Parse(transactionID); err != nil {
		return domain.TransactionRecord{}, domain.ErrTransactionNotFound
	}

	rec, err := scanRecord(r.db.QueryRowContext(ctx, getQuery, accountID, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransactionRecord{}, domain.ErrTransactionNotFound
		}

		l.Error().Err(err).Send()

		return domain.TransactionRecord{}, storeErr(err)
	}

	return rec, nil
}

// Keyset pagination over history_account_order_idx.
const listQuery = `
SELECT
	transaction_id, account_id, amount, direction, counterparty_id, counterparty_name, created_at
FROM history
WHERE account_id = $1
	AND ($2::timestamptz IS NULL OR (created_at, transaction_id) < ($2::timestamptz, $3::uuid))
ORDER BY created_at DESC, transaction_id DESC
LIMIT $4
`

// List returns records of the account in history order that come after arg.Cursor.
// A zero limit returns all of them.
func (r *RepoPGS) List(ctx context.Context, accountID string, arg domain.ListHistoryParams) ([]domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	var (
		after   sql.NullTime
		afterID sql.NullString
		limit   sql.NullInt32
	)

	if arg.Cursor != nil {
		if _, err := uuid.Parse(arg.Cursor.TransactionID); err != nil {
			return nil, domain.ErrInvalidCursor
		}

		after = sql.NullTime{Time: arg.Cursor.CreatedAt, Valid: true}
		afterID = sql.NullString{String: arg.Cursor.TransactionID, Valid: true}
	}

	if arg.Limit > 0 {
		limit = sql.NullInt32{Int32: arg.Limit, Valid: true}
	}

	rows, err := r.db.QueryContext(ctx, listQuery, accountID, after, afterID, limit)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, storeErr(err)
	}
	defer rows.Close()

	items := []domain.TransactionRecord{}

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, rec)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, storeErr(err)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, storeErr(err)
	}

	return items, nil
}
