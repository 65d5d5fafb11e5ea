// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUserNotFound indicates that the user account is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountAlreadyExists indicates that the user already has an account.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// ErrInvalidName indicates empty or too long display name.
	ErrInvalidName = errors.New("invalid name")
)

// Account holds user balance and display data.
//
// ID is assigned by the identity provider.
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}
