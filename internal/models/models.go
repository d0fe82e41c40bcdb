package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that would cross with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Action is what the signal fusion asks the reconciler to do.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
)

// Order represents an order as reported by the broker.
type Order struct {
	ID             string          `json:"id"`
	ClientOrderID  string          `json:"client_order_id"`
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	Type           string          `json:"type"` // market, limit, stop, etc.
	Side           Side            `json:"side"`
	Status         string          `json:"status"` // new, accepted, filled, canceled, expired, rejected
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	FilledAt       *time.Time      `json:"filled_at,omitempty"`
}

// Account is a read-only snapshot of the brokerage account.
type Account struct {
	ID             string          `json:"id"`
	Currency       string          `json:"currency"`
	Equity         decimal.Decimal `json:"equity"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	Cash           decimal.Decimal `json:"cash"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// Position represents a position held at the broker. Qty is signed.
type Position struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}

// WholeShares converts the signed broker quantity into an order quantity:
// absolute value, truncated towards zero. A nil position is flat.
func (p *Position) WholeShares() int64 {
	if p == nil {
		return 0
	}
	return p.Qty.Abs().Truncate(0).IntPart()
}

// Signals holds the three fetched inputs of a trading cycle.
type Signals struct {
	Temperature float64 `json:"temperature_signal"`
	Inventory   float64 `json:"inventory_signal"`
	Storm       float64 `json:"storm_signal"`
}

// Decision is the output of the signal fusion. Symbol is empty for HOLD.
// Confidence is informational and never affects sizing.
type Decision struct {
	Timestamp  time.Time `json:"timestamp"`
	Signals    Signals   `json:"signals"`
	Total      float64   `json:"total_signal"`
	Action     Action    `json:"action"`
	Symbol     string    `json:"symbol"`
	Confidence float64   `json:"confidence"`
}

// TradeResult describes the buy submitted by a reconciliation. FilledQty and
// FilledAvgPrice are only set once the broker reports a fill.
type TradeResult struct {
	OrderID        string           `json:"order_id"`
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	Qty            int64            `json:"qty"`
	Status         string           `json:"status"`
	FilledQty      *decimal.Decimal `json:"filled_qty,omitempty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price,omitempty"`
	SubmittedAt    time.Time        `json:"submitted_at"`
}

// PortfolioPosition is one line of the post-cycle portfolio report.
type PortfolioPosition struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}

// Portfolio is the account-wide summary recorded after each cycle.
type Portfolio struct {
	TotalValue  decimal.Decimal     `json:"total_value"`
	Equity      decimal.Decimal     `json:"equity"`
	Cash        decimal.Decimal     `json:"cash"`
	BuyingPower decimal.Decimal     `json:"buying_power"`
	Positions   []PortfolioPosition `json:"positions"`
}
