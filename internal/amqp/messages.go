package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
)

// TransactionEvent announces a committed ledger write. It carries ids only;
// consumers read the current row from the database.
type TransactionEvent struct {
	Kind          EventKind `json:"kind"`
	UserID        int64     `json:"user_id"`
	TransactionID int64     `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionEvent(kind EventKind, userID, transactionID int64) *TransactionEvent {
	return &TransactionEvent{
		Kind:          kind,
		UserID:        userID,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and checks a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case EventCreated, EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.UserID <= 0 || msg.TransactionID <= 0 {
		return nil, fmt.Errorf("event is missing user or transaction id")
	}
	return &msg, nil
}
