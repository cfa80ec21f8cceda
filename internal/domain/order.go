package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the order lifecycle state as reported by the service.
// The set is closed on the client side; anything the service reports
// outside of it maps to StateUnknown so that new server-side states
// degrade to "keep polling" instead of crashing or stopping silently.
type OrderState string

const (
	StateToBeCreated     OrderState = "TO_BE_CREATED"
	StateUnpaid          OrderState = "UNPAID"
	StateUnderpaid       OrderState = "UNDERPAID"
	StatePaidUnconfirmed OrderState = "PAID_UNCONFIRMED"
	StateBTCSent         OrderState = "BTC_SENT"
	StateTimedOut        OrderState = "TIMED_OUT"
	StatePurged          OrderState = "PURGED"
	StateFlagged         OrderState = "FLAGGED_DESTINATION_ADDRESS"
	StateUnknown         OrderState = "UNKNOWN"
)

var knownStates = map[OrderState]struct{}{
	StateToBeCreated:     {},
	StateUnpaid:          {},
	StateUnderpaid:       {},
	StatePaidUnconfirmed: {},
	StateBTCSent:         {},
	StateTimedOut:        {},
	StatePurged:          {},
	StateFlagged:         {},
}

// ParseOrderState maps a service-reported state string to the closed set.
func ParseOrderState(raw string) OrderState {
	if _, ok := knownStates[OrderState(raw)]; ok {
		return OrderState(raw)
	}
	return StateUnknown
}

// Decision is the client-side classification of an order snapshot.
type Decision int

const (
	// DecisionPoll means the order is still in flight, keep polling.
	DecisionPoll Decision = iota
	// DecisionTerminal means the order reached a final state.
	DecisionTerminal
	// DecisionAwaitConfirm means polling pauses until the caller
	// explicitly confirms the partial payment.
	DecisionAwaitConfirm
)

// Classify decides how the tracking loop should react to a state.
// It depends only on the given state, never on history.
func (s OrderState) Classify() Decision {
	switch s {
	case StateBTCSent, StateTimedOut, StatePurged, StateFlagged:
		return DecisionTerminal
	case StateUnderpaid:
		return DecisionAwaitConfirm
	default:
		// Includes StateUnknown: an unrecognized state is never terminal.
		return DecisionPoll
	}
}

// IsTerminal reports whether the state ends order tracking.
func (s OrderState) IsTerminal() bool {
	return s.Classify() == DecisionTerminal
}

// Order is a single conversion transaction, keyed by its secret key.
// It mirrors the v3 status schema; business fields change only by
// re-fetching from the service.
type Order struct {
	SecretKey          string     `json:"uuid,omitempty"`
	State              OrderState `json:"state"`
	RawState           string     `json:"-"`
	DestinationAddress string     `json:"btc_dest_address,omitempty"`

	BTCAmount        decimal.Decimal `json:"btc_amount"`
	BTCAmountPartial decimal.Decimal `json:"btc_amount_partial"`

	ReceivingSubaddress     string          `json:"receiving_subaddress,omitempty"`
	IncomingAmountTotal     decimal.Decimal `json:"incoming_amount_total"`
	RemainingAmountIncoming decimal.Decimal `json:"remaining_amount_incoming"`
	IncomingPriceBTC        decimal.Decimal `json:"incoming_price_btc"`

	IncomingConfirmationsRemaining int  `json:"incoming_num_confirmations_remaining,omitempty"`
	SecondsTillTimeout             *int `json:"seconds_till_timeout,omitempty"`

	CreatedAt     string `json:"created_at,omitempty"`
	UsesLightning bool   `json:"uses_lightning,omitempty"`

	// FetchedAt is when this snapshot was taken, local clock.
	FetchedAt time.Time `json:"-"`
}

// IsUnderpaid reports whether the order waits on a partial payment
// decision.
func (o *Order) IsUnderpaid() bool {
	return o.State == StateUnderpaid
}

// CountdownExpired reports whether the service-side payment window ran
// out, based on the countdown of this snapshot. False when the snapshot
// carries no countdown (e.g. a create response).
func (o *Order) CountdownExpired() bool {
	return o.SecondsTillTimeout != nil && *o.SecondsTillTimeout <= 0
}
