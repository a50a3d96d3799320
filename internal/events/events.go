// Package events publishes account activity to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	LoanPaymentApplied  = "loan.payment_applied"
	LoanDeactivated     = "loan.deactivated"
	CardPurchaseCreated = "card.purchase_created"
	CardStatementPaid   = "card.statement_paid"
)

// Message is the envelope sent for every event.
type Message struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	AccountID  uuid.UUID       `json:"accountId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps data in an envelope for the given account.
func NewMessage(eventType string, accountID uuid.UUID, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Message{
		ID:         uuid.New(),
		Type:       eventType,
		AccountID:  accountID,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// ToJSON encodes the message.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}


// Publisher delivers messages. Publishing happens after state is persisted,
// so a failure never undoes the operation.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }
func (Nop) Close() error                           { return nil }

// Recorder keeps published messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OfType returns the published messages of one type.
func (r *Recorder) OfType(eventType string) []Message {
	var out []Message
	for _, msg := range r.Messages() {
		if msg.Type == eventType {
			out = append(out, msg)
		}
	}
	return out
}
