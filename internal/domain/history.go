package domain

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound indicates that the history has no record with the given transaction id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidCursor indicates malformed history page cursor.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Direction tells which leg of a transfer a record is.
type Direction string

// Transfer legs.
const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// TransactionRecord is one leg of a transfer stored in an account's history. It is never changed.
type TransactionRecord struct {
	TransactionID    string          `json:"transaction_id"`
	AccountID        string          `json:"account_id"`
	Amount           decimal.Decimal `json:"amount"` // negative for debit, positive for credit
	Direction        Direction       `json:"direction"`
	CounterpartyID   string          `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Before reports whether r goes before o in history order:
// most recent first, ties broken by transaction id descending.
func (r TransactionRecord) Before(o TransactionRecord) bool {
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.After(o.CreatedAt)
	}

	return r.TransactionID > o.TransactionID
}

// HistoryCursor is the position right after the last returned history record.
type HistoryCursor struct {
	CreatedAt     time.Time
	TransactionID string
}

// After reports whether r comes after the cursor position in history order.
func (c HistoryCursor) After(r TransactionRecord) bool {
	return TransactionRecord{CreatedAt: c.CreatedAt, TransactionID: c.TransactionID}.Before(r)
}

// CursorOf returns the cursor pointing right after r.
func CursorOf(r TransactionRecord) *HistoryCursor {
	return &HistoryCursor{CreatedAt: r.CreatedAt, TransactionID: r.TransactionID}
}

// Encode returns opaque string representation of the cursor.
func (c HistoryCursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.TransactionID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses the string produced by HistoryCursor.Encode.
func DecodeCursor(s string) (*HistoryCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &HistoryCursor{CreatedAt: createdAt, TransactionID: id}, nil
}

// ListHistoryParams is the input data to get a page of account history.
type ListHistoryParams struct {
	Limit  int32
	Cursor *HistoryCursor // nil for the first page
}

// HistoryPage is a page of account history.
type HistoryPage struct {
	Records    []TransactionRecord `json:"records"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
