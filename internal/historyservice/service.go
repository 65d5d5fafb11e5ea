// Package historyservice manages business logic layer of transaction history.
package historyservice

import (
	"context"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/rs/zerolog"
)

// Page size limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Repo provides data access layer interface needed by history service layer.
//
// List returns records of the account in history order that come after arg.Cursor.
//
//go:generate mockgen -source service.go -destination service_mock.go -package historyservice
type Repo interface {
	List(ctx context.Context, accountID string, arg domain.ListHistoryParams) ([]domain.TransactionRecord, error)
	Get(ctx context.Context, accountID, transactionID string) (domain.TransactionRecord, error)
}

// AccountService provides account lookups needed by history service layer.
type AccountService interface {
	Get(ctx context.Context, id string) (domain.Account, error)
}

// Service facilitates history service layer logic.
type Service struct {
	repo           Repo
	accountService AccountService
}

// New returns history service struct to manage history bussines logic.
func New(hr Repo, as AccountService) *Service {
	return &Service{
		repo:           hr,
		accountService: as,
	}
}

// List returns a page of the user's history, most recent first.
//
// An empty cursor requests the first page. The returned NextCursor is empty on the last page.
func (s *Service) List(ctx context.Context, userID string, limit int32, cursor string) (domain.HistoryPage, error) {
	l := zerolog.Ctx(ctx)

	if limit <= 0 {
		limit = DefaultLimit
	}

	if limit > MaxLimit {
		limit = MaxLimit
	}

	arg := domain.ListHistoryParams{Limit: limit + 1}

	if cursor != "" {
		c, err := domain.DecodeCursor(cursor)
		if err != nil {
			l.Info().Err(err).Str("cursor", cursor).Send()
			return domain.HistoryPage{}, err
		}

		arg.Cursor = c
	}

	if _, err := s.accountService.Get(ctx, userID); err != nil {
		return domain.HistoryPage{}, err
	}

	records, err := s.repo.List(ctx, userID, arg)
	if err != nil {
		return domain.HistoryPage{}, err
	}

	page := domain.HistoryPage{Records: records}

	if int32(len(records)) > limit {
		page.Records = records[:limit]
		page.NextCursor = domain.CursorOf(page.Records[limit-1]).Encode()
	}

	return page, nil
}

// Get returns the user's history record of the given transaction.
func (s *Service) Get(ctx context.Context, userID, transactionID string) (domain.TransactionRecord, error) {
	if _, err := s.accountService.Get(ctx, userID); err != nil {
		return domain.TransactionRecord{}, err
	}

	return s.repo.Get(ctx, userID, transactionID)
}

// Iterate returns a lazy iterator over the whole history of the user.
func (s *Service) Iterate(ctx context.Context, userID string, pageSize int32) *Iterator {
	if pageSize <= 0 || pageSize > MaxLimit {
		pageSize = DefaultLimit
	}

	return &Iterator{
		ctx:      ctx,
		service:  s,
		userID:   userID,
		pageSize: pageSize,
	}
}
