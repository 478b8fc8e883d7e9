package events

// Event enumerates the topics inside the growth controller.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventAccountUpdate Event = "account_update"
	EventOrderFilled   Event = "order.filled"
	EventOrderCanceled Event = "order.canceled"
	EventPhaseChange   Event = "phase_change"
	EventEmergencyStop Event = "emergency_stop"
)

// Tick is the payload for EventPriceTick.
type Tick struct {
	Symbol string
	Price  float64
	Volume float64
	Bid    float64
	Ask    float64
}

// AccountUpdate is the payload for EventAccountUpdate.
type AccountUpdate struct {
	Equity         float64
	FreeCollateral float64
	Leverage       float64
}

// Fill is the payload for EventOrderFilled.
type Fill struct {
	OrderID string
	Symbol  string
	Side    string // BUY or SELL
	Price   float64
	Size    float64
	PnL     float64
}
