package exchange

import (
	"context"
	"time"
)

// MarketDataProvider supplies live quotes and historical bars.
type MarketDataProvider interface {
	GetMarketData(ctx context.Context, symbol string) (MarketData, error)
	GetHistoricalData(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]OHLCV, error)
}

// AccountProvider exposes the funded account. SubscribeAccountUpdates returns
// an unsubscribe handle; callbacks may fire from any goroutine.
type AccountProvider interface {
	GetAccount(ctx context.Context) (Account, error)
	SubscribeAccountUpdates(cb func(Account)) (unsubscribe func())
	GetOpenPositions(ctx context.Context) ([]Position, error)
}

// OrderExecutionProvider submits and cancels orders on the venue.
type OrderExecutionProvider interface {
	PlaceOrder(ctx context.Context, params OrderParams) (OrderRef, error)
	CancelOrder(ctx context.Context, id string) error
	SetLeverage(ctx context.Context, market string, value float64) error
}

// FillListener receives fill notifications. Implementations must tolerate
// callbacks from the exchange goroutine.
type FillListener interface {
	SubscribeFills(cb func(Fill)) (unsubscribe func())
}

// Fill reports an executed order. PnL is the realized profit when the fill
// reduced a position, zero otherwise.
type Fill struct {
	OrderID string
	Market  string
	Side    Side
	Price   float64
	Size    float64
	PnL     float64
}
