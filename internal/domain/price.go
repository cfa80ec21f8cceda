package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is an ephemeral conversion quote. It is never persisted.
type PriceQuote struct {
	Requested Amount `json:"requested"`

	BTCAmount           decimal.Decimal `json:"btc_amount"`
	IncomingAmountTotal decimal.Decimal `json:"incoming_amount_total"`
	IncomingPriceBTC    decimal.Decimal `json:"incoming_price_btc"`

	IncomingConfirmationsRemaining int `json:"incoming_num_confirmations_remaining"`

	FetchedAt time.Time `json:"-"`
}

// Parameters are the current service-side order limits.
type Parameters struct {
	Price             decimal.Decimal `json:"price"`
	UpperLimit        decimal.Decimal `json:"upper_limit"`
	LowerLimit        decimal.Decimal `json:"lower_limit"`
	LNUpperLimit      decimal.Decimal `json:"ln_upper_limit,omitempty"`
	LNLowerLimit      decimal.Decimal `json:"ln_lower_limit,omitempty"`
	ZeroConfEnabled   bool            `json:"zero_conf_enabled"`
	ZeroConfMaxAmount decimal.Decimal `json:"zero_conf_max_amount"`
}

// LightningRoutes is the route probe result for a lightning invoice.
type LightningRoutes struct {
	NumRoutes          int     `json:"num_routes"`
	SuccessProbability float64 `json:"success_probability"`
}
