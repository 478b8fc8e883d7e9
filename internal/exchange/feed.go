package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamClient consumes a websocket tick stream from the venue.
type StreamClient struct {
	url    string
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewStreamClient builds a websocket client for the given stream URL.
func NewStreamClient(url string, log *zap.Logger) *StreamClient {
	return &StreamClient{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    log.Named("feed"),
	}
}

type tickMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// SubscribeTicks streams quotes for the given symbols into a channel.
// It returns the channel and a stop function.
func (c *StreamClient) SubscribeTicks(ctx context.Context, symbols []string) (<-chan MarketData, func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial tick stream: %w", err)
	}

	sub := map[string]any{"op": "subscribe", "channel": "ticker", "symbols": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("subscribe ticks: %w", err)
	}

	out := make(chan MarketData, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				c.log.Warn("tick stream read error", zap.Error(err))
				return
			}

			var tick tickMessage
			if err := json.Unmarshal(msg, &tick); err != nil {
				c.log.Warn("tick stream parse error", zap.Error(err))
				continue
			}
			if tick.Symbol == "" || tick.Price <= 0 {
				continue
			}
			out <- MarketData{
				Symbol: tick.Symbol,
				Price:  tick.Price,
				Volume: tick.Volume,
				Bid:    tick.Bid,
				Ask:    tick.Ask,
			}
		}
	}()

	return out, stop, nil
}
