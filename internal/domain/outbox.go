package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TopicTransferCompleted is the default topic of transfer events.
const TopicTransferCompleted = "transfer.completed"

// OutboxEvent is a message written together with the state change it reports
// and published to the broker afterwards.
type OutboxEvent struct {
	ID          int64
	Topic       string
	Key         string
	Payload     []byte
	Attempts    int32
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// TransferCompleted is the payload of the transfer event.
type TransferCompleted struct {
	TransactionID string          `json:"transaction_id"`
	SenderID      string          `json:"sender_id"`
	RecipientID   string          `json:"recipient_id"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewTransferCompletedEvent builds outbox event for the committed transfer.
func NewTransferCompletedEvent(topic string, t Transfer) (OutboxEvent, error) {
	payload, err := json.Marshal(TransferCompleted{
		TransactionID: t.ID,
		SenderID:      t.SenderID,
		RecipientID:   t.RecipientID,
		Amount:        t.Amount,
		CreatedAt:     t.CreatedAt,
	})
	if err != nil {
		return OutboxEvent{}, err
	}

	return OutboxEvent{
		Topic:     topic,
		Key:       t.ID,
		Payload:   payload,
		CreatedAt: t.CreatedAt,
	}, nil
}
