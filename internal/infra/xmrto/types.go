package xmrto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/normoes/xmrto-wrapper/internal/domain"
)

// apiError is the error envelope the service returns alongside 4xx
// status codes, e.g. {"error": "XMRTO-ERROR-6", "error_msg": "..."}.
type apiError struct {
	Error    string `json:"error"`
	ErrorMsg string `json:"error_msg"`
}

// orderCreatedResponse is the create endpoint response. The amount is a
// JSON number on v2 and a string on v3; decimal decodes both.
type orderCreatedResponse struct {
	UUID           string          `json:"uuid"`
	State          string          `json:"state"`
	BTCAmount      decimal.Decimal `json:"btc_amount"`
	BTCDestAddress string          `json:"btc_dest_address"`
	UsesLightning  bool            `json:"uses_lightning"` // v3 only
}

func (r orderCreatedResponse) toDomain() domain.Order {
	return domain.Order{
		SecretKey:          r.UUID,
		State:              domain.ParseOrderState(r.State),
		RawState:           r.State,
		DestinationAddress: r.BTCDestAddress,
		BTCAmount:          r.BTCAmount,
		UsesLightning:      r.UsesLightning,
		FetchedAt:          time.Now(),
	}
}

// orderStatusV3 uses the incoming_*/receiving_* field names of API v3.
type orderStatusV3 struct {
	State                             string          `json:"state"`
	BTCAmount                         decimal.Decimal `json:"btc_amount"`
	BTCAmountPartial                  decimal.Decimal `json:"btc_amount_partial"`
	BTCDestAddress                    string          `json:"btc_dest_address"`
	SecondsTillTimeout                *int            `json:"seconds_till_timeout"`
	CreatedAt                         string          `json:"created_at"`
	IncomingPriceBTC                  decimal.Decimal `json:"incoming_price_btc"`
	ReceivingSubaddress               string          `json:"receiving_subaddress"`
	IncomingAmountTotal               decimal.Decimal `json:"incoming_amount_total"`
	RemainingAmountIncoming           decimal.Decimal `json:"remaining_amount_incoming"`
	IncomingNumConfirmationsRemaining int             `json:"incoming_num_confirmations_remaining"`
	UsesLightning                     bool            `json:"uses_lightning"`
}

func (r orderStatusV3) toDomain(secretKey string) domain.Order {
	return domain.Order{
		SecretKey:                      secretKey,
		State:                          domain.ParseOrderState(r.State),
		RawState:                       r.State,
		DestinationAddress:             r.BTCDestAddress,
		BTCAmount:                      r.BTCAmount,
		BTCAmountPartial:               r.BTCAmountPartial,
		ReceivingSubaddress:            r.ReceivingSubaddress,
		IncomingAmountTotal:            r.IncomingAmountTotal,
		RemainingAmountIncoming:        r.RemainingAmountIncoming,
		IncomingPriceBTC:               r.IncomingPriceBTC,
		IncomingConfirmationsRemaining: r.IncomingNumConfirmationsRemaining,
		SecondsTillTimeout:             r.SecondsTillTimeout,
		CreatedAt:                      r.CreatedAt,
		UsesLightning:                  r.UsesLightning,
		FetchedAt:                      time.Now(),
	}
}

// orderStatusV2 uses the older xmr_* field names.
type orderStatusV2 struct {
	State                        string          `json:"state"`
	BTCAmount                    decimal.Decimal `json:"btc_amount"`
	BTCAmountPartial             decimal.Decimal `json:"btc_amount_partial"`
	BTCDestAddress               string          `json:"btc_dest_address"`
	SecondsTillTimeout           *int            `json:"seconds_till_timeout"`
	CreatedAt                    string          `json:"created_at"`
	XMRPriceBTC                  decimal.Decimal `json:"xmr_price_btc"`
	XMRReceivingSubaddress       string          `json:"xmr_receiving_subaddress"`
	XMRReceivingAddress          string          `json:"xmr_receiving_address"`
	XMRAmountTotal               decimal.Decimal `json:"xmr_amount_total"`
	XMRAmountRemaining           decimal.Decimal `json:"xmr_amount_remaining"`
	XMRNumConfirmationsRemaining int             `json:"xmr_num_confirmations_remaining"`
}

func (r orderStatusV2) toDomain(secretKey string) domain.Order {
	subaddress := r.XMRReceivingSubaddress
	if subaddress == "" {
		subaddress = r.XMRReceivingAddress
	}
	return domain.Order{
		SecretKey:                      secretKey,
		State:                          domain.ParseOrderState(r.State),
		RawState:                       r.State,
		DestinationAddress:             r.BTCDestAddress,
		BTCAmount:                      r.BTCAmount,
		BTCAmountPartial:               r.BTCAmountPartial,
		ReceivingSubaddress:            subaddress,
		IncomingAmountTotal:            r.XMRAmountTotal,
		RemainingAmountIncoming:        r.XMRAmountRemaining,
		IncomingPriceBTC:               r.XMRPriceBTC,
		IncomingConfirmationsRemaining: r.XMRNumConfirmationsRemaining,
		SecondsTillTimeout:             r.SecondsTillTimeout,
		CreatedAt:                      r.CreatedAt,
		FetchedAt:                      time.Now(),
	}
}

type priceV3 struct {
	BTCAmount                         decimal.Decimal `json:"btc_amount"`
	IncomingAmountTotal               decimal.Decimal `json:"incoming_amount_total"`
	IncomingPriceBTC                  decimal.Decimal `json:"incoming_price_btc"`
	IncomingNumConfirmationsRemaining int             `json:"incoming_num_confirmations_remaining"`
}

func (r priceV3) toDomain(requested domain.Amount) domain.PriceQuote {
	return domain.PriceQuote{
		Requested:                      requested,
		BTCAmount:                      r.BTCAmount,
		IncomingAmountTotal:            r.IncomingAmountTotal,
		IncomingPriceBTC:               r.IncomingPriceBTC,
		IncomingConfirmationsRemaining: r.IncomingNumConfirmationsRemaining,
		FetchedAt:                      time.Now(),
	}
}

type priceV2 struct {
	BTCAmount                    decimal.Decimal `json:"btc_amount"`
	XMRAmountTotal               decimal.Decimal `json:"xmr_amount_total"`
	XMRPriceBTC                  decimal.Decimal `json:"xmr_price_btc"`
	XMRNumConfirmationsRemaining int             `json:"xmr_num_confirmations_remaining"`
}

func (r priceV2) toDomain(requested domain.Amount) domain.PriceQuote {
	return domain.PriceQuote{
		Requested:                      requested,
		BTCAmount:                      r.BTCAmount,
		IncomingAmountTotal:            r.XMRAmountTotal,
		IncomingPriceBTC:               r.XMRPriceBTC,
		IncomingConfirmationsRemaining: r.XMRNumConfirmationsRemaining,
		FetchedAt:                      time.Now(),
	}
}

// parametersResponse covers v2 and v3; the ln_* limits only exist on v3
// and decode to zero otherwise.
type parametersResponse struct {
	Price             decimal.Decimal `json:"price"`
	UpperLimit        decimal.Decimal `json:"upper_limit"`
	LowerLimit        decimal.Decimal `json:"lower_limit"`
	LNUpperLimit      decimal.Decimal `json:"ln_upper_limit"`
	LNLowerLimit      decimal.Decimal `json:"ln_lower_limit"`
	ZeroConfEnabled   bool            `json:"zero_conf_enabled"`
	ZeroConfMaxAmount decimal.Decimal `json:"zero_conf_max_amount"`
}

func (r parametersResponse) toDomain() domain.Parameters {
	return domain.Parameters{
		Price:             r.Price,
		UpperLimit:        r.UpperLimit,
		LowerLimit:        r.LowerLimit,
		LNUpperLimit:      r.LNUpperLimit,
		LNLowerLimit:      r.LNLowerLimit,
		ZeroConfEnabled:   r.ZeroConfEnabled,
		ZeroConfMaxAmount: r.ZeroConfMaxAmount,
	}
}

type routesResponse struct {
	NumRoutes          int     `json:"num_routes"`
	SuccessProbability float64 `json:"success_probability"`
}
