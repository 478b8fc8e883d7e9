package exchange

import (
	"context"
	"time"
)

// PaperMarket quotes from the paper venue while serving real historical bars
// from the REST endpoint. Live feed ticks are pushed into the venue via
// SetPrice so quotes and fills track the real market.
type PaperMarket struct {
	venue   *Mock
	history *HistoryClient
}

// NewPaperMarket joins a paper venue with a historical bar source.
func NewPaperMarket(venue *Mock, history *HistoryClient) *PaperMarket {
	return &PaperMarket{venue: venue, history: history}
}

func (p *PaperMarket) GetMarketData(ctx context.Context, symbol string) (MarketData, error) {
	return p.venue.GetMarketData(ctx, symbol)
}

func (p *PaperMarket) GetHistoricalData(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]OHLCV, error) {
	return p.history.GetBars(ctx, symbol, timeframe, start, end)
}
