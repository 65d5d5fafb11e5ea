// Package outboxrepo manages repository layer of outbox events.
package outboxrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates outbox repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns outbox RepoPGS that works inside the given transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns outbox RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

func storeErr(err error) error {
	return dbpkg.Classify(err, domain.ErrConcurrentConflict, domain.ErrStoreUnavailable, errorspkg.ErrInternal)
}

const createQuery = `
INSERT INTO
    outbox (topic, key, payload, created_at)
VALUES
    ($1, $2, $3, $4)
RETURNING id
`

// Create stores the event for later publishing and returns it with the assigned id.
func (r *RepoPGS) Create(ctx context.Context, e domain.OutboxEvent) (domain.OutboxEvent, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, e.Topic, e.Key, string(e.Payload), e.CreatedAt)

	if err := row.Scan(&e.ID); err != nil {
		l.Error().Err(err).Str("key", e.Key).Send()
		return domain.OutboxEvent{}, storeErr(err)
	}

	return e, nil
}

const claimQuery = `
SELECT
	id, topic, key, payload, attempts, last_error, created_at
FROM outbox
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED
`

const markPublishedQuery = `
UPDATE outbox
SET published_at = now()
WHERE id = $1
`

const markFailedQuery = `
UPDATE outbox
SET attempts = attempts + 1, last_error = $2
WHERE id = $1
`

// Dispatch hands up to limit pending events to publish in id order and records the outcome
// of each. Rows are claimed with SKIP LOCKED so several relays can run side by side.
// It returns the number of events published.
func (r *RepoPGS) Dispatch(ctx context.Context, limit int, publish func(context.Context, domain.OutboxEvent) error) (int, error) {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return 0, storeErr(err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	events, err := claim(ctx, tx, limit)
	if err != nil {
		l.Error().Err(err).Send()
		return 0, storeErr(err)
	}

	published := 0

	for _, e := range events {
		if perr := publish(ctx, e); perr != nil {
			l.Warn().Err(perr).Int64("event_id", e.ID).Msg("publish failed")

			if _, err := tx.ExecContext(ctx, markFailedQuery, e.ID, perr.Error()); err != nil {
				l.Error().Err(err).Send()
				return 0, storeErr(err)
			}

			continue
		}

		if _, err := tx.ExecContext(ctx, markPublishedQuery, e.ID); err != nil {
			l.Error().Err(err).Send()
			return 0, storeErr(err)
		}

		published++
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return 0, storeErr(err)
	}

	return published, nil
}

func claim(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxEvent, error) {
	rows, err := tx.QueryContext(ctx, claimQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.OutboxEvent{}

	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(
			&e.ID,
			&e.Topic,
			&e.Key,
			&e.Payload,
			&e.Attempts,
			&e.LastError,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}

		items = append(items, e)
	}

	if err := rows.Close(); err != nil {
		return nil, err
	}

	return items, rows.Err()
}
