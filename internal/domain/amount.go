package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Leg identifies which currency an amount refers to.
type Leg string

const (
	LegBTC Leg = "BTC"
	LegXMR Leg = "XMR"
)

// Amount is a positive amount in exactly one currency leg.
type Amount struct {
	Leg   Leg             `json:"currency"`
	Value decimal.Decimal `json:"amount"`
}

// NormalizeAmount resolves the two optional CLI/env amount inputs into a
// single Amount. Exactly one of btcAmount and xmrAmount must be set.
func NormalizeAmount(btcAmount, xmrAmount string) (Amount, error) {
	if btcAmount != "" && xmrAmount != "" {
		return Amount{}, fmt.Errorf("%w: both BTC and XMR amounts given", ErrAmbiguousAmount)
	}
	if btcAmount == "" && xmrAmount == "" {
		return Amount{}, fmt.Errorf("%w: expected a BTC or an XMR amount", ErrMissingAmount)
	}

	leg := LegBTC
	raw := btcAmount
	if xmrAmount != "" {
		leg = LegXMR
		raw = xmrAmount
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, raw)
	}
	if !value.IsPositive() {
		return Amount{}, fmt.Errorf("%w: %q must be positive", ErrInvalidAmount, raw)
	}

	return Amount{Leg: leg, Value: value}, nil
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.Leg)
}
