package historyservice

import (
	"context"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// Iterator walks the history of one user page by page, fetching pages on demand.
//
//	it := service.Iterate(ctx, userID, 50)
//	for it.Next() {
//		r := it.Record()
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
//
// Records committed after iteration started show up only if they sort after the
// current position, so every walk is finite. Reset starts the walk over.
type Iterator struct {
	ctx      context.Context
	service  *Service
	userID   string
	pageSize int32

	started bool
	buf     []domain.TransactionRecord
	cursor  *domain.HistoryCursor
	last    bool
	current domain.TransactionRecord
	err     error
}

// Next advances to the next record. It returns false when the history is exhausted or on error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	if len(it.buf) == 0 {
		if it.last {
			return false
		}

		if !it.fetch() {
			return false
		}
	}

	it.current, it.buf = it.buf[0], it.buf[1:]
	it.cursor = domain.CursorOf(it.current)

	return true
}

func (it *Iterator) fetch() bool {
	if !it.started {
		if _, err := it.service.accountService.Get(it.ctx, it.userID); err != nil {
			it.err = err
			return false
		}

		it.started = true
	}

	arg := domain.ListHistoryParams{Limit: it.pageSize, Cursor: it.cursor}

	records, err := it.service.repo.List(it.ctx, it.userID, arg)
	if err != nil {
		it.err = err
		return false
	}

	it.buf = records
	it.last = int32(len(records)) < it.pageSize

	return len(records) > 0
}

// Record returns the current record.
func (it *Iterator) Record() domain.TransactionRecord {
	return it.current
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Reset rewinds the iterator to the most recent record.
func (it *Iterator) Reset() {
	*it = Iterator{
		ctx:      it.ctx,
		service:  it.service,
		userID:   it.userID,
		pageSize: it.pageSize,
	}
}
