// Package accountservice manages business logic layer of accounts.
package accountservice

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/shopspring/decimal"
)

const maxNameLength = 255

// Repo provides data access layer interface needed by account service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package accountservice
type Repo interface {
	Create(ctx context.Context, id, name string) (domain.Account, error)
	Get(ctx context.Context, id string) (domain.Account, error)
}

// Service facilitates account service layer logic.
type Service struct {
	repo Repo
}

// New returns account service struct to manage account bussines logic.
func New(ar Repo) *Service {
	return &Service{repo: ar}
}

// Create registers the account of the given user with zero balance.
func (s *Service) Create(ctx context.Context, id, name string) (domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return domain.Account{}, domain.ErrInvalidName
	}

	return s.repo.Create(ctx, id, name)
}

// Get returns account for the given user id.
func (s *Service) Get(ctx context.Context, id string) (domain.Account, error) {
	return s.repo.Get(ctx, id)
}

// Balance returns the current committed balance of the given user.
func (s *Service) Balance(ctx context.Context, id string) (decimal.Decimal, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	return account.Balance, nil
}
