package amqp

import (
	"encoding/json"
	"time"
)

// Message types, carried in the AMQP type property.
const (
	TypeTransactionSync   = "transaction.created"
	TypeTransactionDelete = "transaction.deleted"
	TypeOccurrenceDue     = "occurrence.due"
)

// TransactionSyncMessage represents a lightweight message for syncing a transaction to Google Sheets
// Contains only the ID and version, the worker will fetch the full transaction from database
type TransactionSyncMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransactionSyncMessage creates a new sync message with just ID and version
func NewTransactionSyncMessage(id, version int64) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// TransactionDeleteMessage announces a soft deleted transaction. The title
// is carried so consumers can log it after the row is gone.
type TransactionDeleteMessage struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionDeleteMessage(id int64, title string) *TransactionDeleteMessage {
	return &TransactionDeleteMessage{ID: id, Title: title, Timestamp: time.Now()}
}

// OccurrenceDueMessage announces an upcoming occurrence of a transaction.
type OccurrenceDueMessage struct {
	TransactionID int64     `json:"transactionId"`
	Date          string    `json:"date"` // YYYY-MM-DD
	Title         string    `json:"title"`
	AmountCents   int64     `json:"amountCents"`
	Category      string    `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionSyncMessageFromJSON creates a message from JSON bytes
func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func TransactionDeleteMessageFromJSON(data []byte) (*TransactionDeleteMessage, error) {
	var msg TransactionDeleteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func OccurrenceDueMessageFromJSON(data []byte) (*OccurrenceDueMessage, error) {
	var msg OccurrenceDueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
