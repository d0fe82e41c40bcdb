package signals

import (
	"math"
	"testing"
	"time"

	"natgas_trading/internal/models"
)

func newTestFusion() *Fusion {
	f := NewFusion("BOIL", "KOLD",
		Weights{Temperature: 0.5, Inventory: 0.4, Storm: 0.1},
		Thresholds{Buy: 0.3, Sell: -0.3},
	)
	f.now = func() time.Time { return time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC) }
	return f
}

func TestTotalIsWeightedSum(t *testing.T) {
	f := newTestFusion()
	inputs := []models.Signals{
		{Temperature: 0.8, Inventory: 0.2, Storm: 0.3},
		{Temperature: -1, Inventory: -0.5, Storm: 0},
		{Temperature: 0, Inventory: 0, Storm: 1},
	}
	for _, s := range inputs {
		want := s.Temperature*0.5 + s.Inventory*0.4 + s.Storm*0.1
		if got := f.Total(s); math.Abs(got-want) > 1e-12 {
			t.Errorf("Total(%+v) = %v, want %v", s, got, want)
		}
	}
}

func TestDecide(t *testing.T) {
	f := newTestFusion()
	tests := []struct {
		name       string
		signals    models.Signals
		wantAction models.Action
		wantSymbol string
		wantConf   float64
	}{
		{"bullish", models.Signals{Temperature: 0.8, Inventory: 0.2, Storm: 0.3}, models.ActionBuy, "BOIL", 0.51 / 0.3},
		{"bearish", models.Signals{Temperature: -1, Inventory: -0.5}, models.ActionBuy, "KOLD", 0.7 / 0.3},
		{"neutral", models.Signals{Temperature: 0.2, Inventory: 0.1}, models.ActionHold, "", 0},
		{"confidence capped", models.Signals{Temperature: 1, Inventory: 1, Storm: 1}, models.ActionBuy, "BOIL", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.Decide(tt.signals)
			if d.Action != tt.wantAction || d.Symbol != tt.wantSymbol {
				t.Fatalf("got %s %q, want %s %q", d.Action, d.Symbol, tt.wantAction, tt.wantSymbol)
			}
			wantConf := math.Min(tt.wantConf, 2)
			if math.Abs(d.Confidence-wantConf) > 1e-9 {
				t.Errorf("confidence = %v, want %v", d.Confidence, wantConf)
			}
			if d.Signals != tt.signals {
				t.Errorf("signals not carried through: %+v", d.Signals)
			}
		})
	}
}

func TestDecide_ThresholdsAreStrict(t *testing.T) {
	f := newTestFusion()
	f.Weights = Weights{Temperature: 1}

	if d := f.Decide(models.Signals{Temperature: 0.3}); d.Action != models.ActionHold {
		t.Errorf("total == buy threshold should HOLD, got %s", d.Action)
	}
	if d := f.Decide(models.Signals{Temperature: -0.3}); d.Action != models.ActionHold {
		t.Errorf("total == sell threshold should HOLD, got %s", d.Action)
	}
}

func TestDecide_ThresholdsAreConfiguration(t *testing.T) {
	f := newTestFusion()
	f.Thresholds = Thresholds{Buy: 0.05, Sell: -0.05}

	d := f.Decide(models.Signals{Temperature: 0.2})
	if d.Action != models.ActionBuy || d.Symbol != "BOIL" {
		t.Errorf("expected BUY BOIL with lowered threshold, got %s %q", d.Action, d.Symbol)
	}
}
