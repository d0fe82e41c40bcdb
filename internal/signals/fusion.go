package signals

import (
	"math"
	"time"

	"natgas_trading/internal/models"

	"github.com/rs/zerolog/log"
)

// maxConfidence caps the informational confidence score.
const maxConfidence = 2.0

// Weights are the linear coefficients applied to each signal.
type Weights struct {
	Temperature float64
	Inventory   float64
	Storm       float64
}

// Thresholds split the total signal into BUY target, BUY inverse and HOLD.
type Thresholds struct {
	Buy  float64 // total > Buy => buy the long symbol
	Sell float64 // total < Sell => buy the inverse symbol
}

// Fusion turns three signals into a Decision.
type Fusion struct {
	Symbol        string
	InverseSymbol string
	Weights       Weights
	Thresholds    Thresholds

	now func() time.Time
}

func NewFusion(symbol, inverseSymbol string, w Weights, th Thresholds) *Fusion {
	return &Fusion{
		Symbol:        symbol,
		InverseSymbol: inverseSymbol,
		Weights:       w,
		Thresholds:    th,
		now:           time.Now,
	}
}

// Total is the weighted sum of the signals.
func (f *Fusion) Total(s models.Signals) float64 {
	return s.Temperature*f.Weights.Temperature +
		s.Inventory*f.Weights.Inventory +
		s.Storm*f.Weights.Storm
}

// Decide fuses s into a Decision. Both threshold comparisons are strict.
func (f *Fusion) Decide(s models.Signals) models.Decision {
	total := f.Total(s)
	d := models.Decision{
		Timestamp: f.now().UTC(),
		Signals:   s,
		Total:     total,
		Action:    models.ActionHold,
	}

	switch {
	case total > f.Thresholds.Buy:
		d.Action = models.ActionBuy
		d.Symbol = f.Symbol
		d.Confidence = ratio(total, f.Thresholds.Buy)
	case total < f.Thresholds.Sell:
		d.Action = models.ActionBuy
		d.Symbol = f.InverseSymbol
		d.Confidence = ratio(total, f.Thresholds.Sell)
	}

	log.Info().
		Float64("temperature", s.Temperature).
		Float64("inventory", s.Inventory).
		Float64("storm", s.Storm).
		Float64("total", total).
		Float64("buy_threshold", f.Thresholds.Buy).
		Float64("sell_threshold", f.Thresholds.Sell).
		Str("action", string(d.Action)).
		Str("symbol", d.Symbol).
		Float64("confidence", d.Confidence).
		Msg("Trading decision")
	return d
}

func ratio(total, threshold float64) float64 {
	if threshold == 0 {
		return maxConfidence
	}
	return math.Min(math.Abs(total)/math.Abs(threshold), maxConfidence)
}
