package domain

const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

// OrderRequest carries the caller-supplied parameters of a new order.
// Price is only meaningful for limit orders, Label is optional.
type OrderRequest struct {
	Instrument string
	Amount     float64
	Type       string
	Price      float64
	Label      string
}

// Order is a decoded order record as the exchange reports it.
type Order struct {
	OrderID             string  `json:"order_id"`
	InstrumentName      string  `json:"instrument_name"`
	Amount              float64 `json:"amount"`
	FilledAmount        float64 `json:"filled_amount"`
	Price               float64 `json:"price"`
	AveragePrice        float64 `json:"average_price"`
	OrderType           string  `json:"order_type"`
	OrderState          string  `json:"order_state"`
	Direction           string  `json:"direction"`
	Label               string  `json:"label"`
	CreationTimestamp   int64   `json:"creation_timestamp"`
	LastUpdateTimestamp int64   `json:"last_update_timestamp"`
}

func (o *Order) IsBuy() bool  { return o.Direction == DirectionBuy }
func (o *Order) IsSell() bool { return o.Direction == DirectionSell }

func (o *Order) IsOpen() bool   { return o.OrderState == "open" }
func (o *Order) IsFilled() bool { return o.OrderState == "filled" }
