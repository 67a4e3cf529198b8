// Package notify carries circulation events from the ledger to the
// notification sink through a transactional outbox.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type EventType string

const (
	TypeLoanConfirmed EventType = "loan_confirmed"
	TypeItemsReturned EventType = "items_returned"
	TypeDueSoon       EventType = "due_soon"
	TypeOverdue       EventType = "overdue"
)

type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PatronID   string    `json:"patron_id"`
	LoanID     string    `json:"loan_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	ItemIDs    []string  `json:"item_ids,omitempty"`
	DaysLeft   *int      `json:"days_left,omitempty"`
}

func newEvent(t EventType, patronID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
		PatronID:   patronID,
	}
}

func LoanConfirmed(loanID, patronID string, itemIDs []string, at time.Time) Event {
	e := newEvent(TypeLoanConfirmed, patronID, at)
	e.LoanID = loanID
	e.ItemIDs = append([]string(nil), itemIDs...)
	return e
}

func ItemsReturned(loanID, patronID string, itemIDs []string, at time.Time) Event {
	e := newEvent(TypeItemsReturned, patronID, at)
	e.LoanID = loanID
	e.ItemIDs = append([]string(nil), itemIDs...)
	return e
}

func DueSoon(itemID, patronID string, daysLeft int, at time.Time) Event {
	e := newEvent(TypeDueSoon, patronID, at)
	e.ItemID = itemID
	e.DaysLeft = &daysLeft
	return e
}

func Overdue(itemID, patronID string, at time.Time) Event {
	e := newEvent(TypeOverdue, patronID, at)
	e.ItemID = itemID
	return e
}

// Payload はアウトボックスに保存する JSON
func (e Event) Payload() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return b, nil
}

func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
