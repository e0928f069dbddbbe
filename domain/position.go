package domain

// Position is a decoded position record as the exchange reports it.
type Position struct {
	InstrumentName    string  `json:"instrument_name"`
	Size              float64 `json:"size"`
	AveragePrice      float64 `json:"average_price"`
	LiquidationPrice  float64 `json:"estimated_liquidation_price"`
	MarkPrice         float64 `json:"mark_price"`
	IndexPrice        float64 `json:"index_price"`
	InitialMargin     float64 `json:"initial_margin"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
	UnrealizedPnl     float64 `json:"floating_profit_loss"`
	RealizedPnl       float64 `json:"realized_profit_loss"`
	Direction         string  `json:"direction"`
}

func (p *Position) IsLong() bool  { return p.Size > 0 }
func (p *Position) IsShort() bool { return p.Size < 0 }
