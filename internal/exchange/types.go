package exchange

import "time"

// MarketData is a point-in-time quote for a symbol.
type MarketData struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// OHLCV is a single historical bar.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Account is the read-only account snapshot.
type Account struct {
	Equity         float64 `json:"equity"`
	FreeCollateral float64 `json:"free_collateral"`
	Leverage       float64 `json:"leverage"`
}

// Position is a read-only view sourced from the account boundary. It is never
// mutated locally, only read and acted upon.
type Position struct {
	Market           string  `json:"market"`
	Size             float64 `json:"size"` // signed: negative for shorts
	EntryPrice       float64 `json:"entry_price"`
	Leverage         float64 `json:"leverage"`
	LiquidationPrice float64 `json:"liquidation_price"`
}

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes resting and immediate orders.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// OrderParams describes an order to submit.
type OrderParams struct {
	Market     string    `json:"market"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Price      float64   `json:"price"` // ignored for market orders
	Size       float64   `json:"size"`
	StopLoss   float64   `json:"stop_loss,omitempty"` // attached stop trigger, 0 for none
	ReduceOnly bool      `json:"reduce_only"`
}

// OrderRef identifies a submitted order.
type OrderRef struct {
	ID        string    `json:"id"`
	Market    string    `json:"market"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
