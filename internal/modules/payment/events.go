// README: Inbound gateway event envelope and parsing.
package payment

import (
	"encoding/json"
	"errors"
	"time"
)

// Event kinds the reconciler understands. Anything else is acknowledged and
// ignored so the gateway can add kinds without breaking us.
const (
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentFailed    = "payment.failed"
	EventTransferCreated  = "transfer.created"
	EventPayoutPaid       = "payout.paid"
	EventDisputeOpened    = "dispute.opened"
	EventAccountActivated = "account.activated"
)

var ErrBadEvent = errors.New("malformed gateway event")

// Event is one webhook delivery. Which data fields are set depends on Kind.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Data      EventData `json:"data"`
}

type EventData struct {
	IntentID   string `json:"intent_id,omitempty"`
	ChargeRef  string `json:"charge_ref,omitempty"`
	TransferID string `json:"transfer_id,omitempty"`
	DisputeID  string `json:"dispute_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, ErrBadEvent
	}
	if ev.ID == "" || ev.Kind == "" {
		return Event{}, ErrBadEvent
	}
	return ev, nil
}
