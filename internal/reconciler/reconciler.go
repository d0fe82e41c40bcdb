package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"natgas_trading/internal/market"
	"natgas_trading/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// State is a step of a BUY reconciliation.
type State int

const (
	StateIdle State = iota
	StateCancelConflicts
	StateLiquidateOpposite
	StateLiquidateStale
	StateSubmit
	StateRetrySubmit
	StateResolved
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateCancelConflicts:   "cancel_conflicts",
	StateLiquidateOpposite: "liquidate_opposite",
	StateLiquidateStale:    "liquidate_stale",
	StateSubmit:            "submit",
	StateRetrySubmit:       "retry_submit",
	StateResolved:          "resolved",
	StateFailed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Delays are the fixed settle pauses between dependent broker calls.
type Delays struct {
	CancelSettle time.Duration // after cancelling at least one order
	RetrySettle  time.Duration // before retrying a wash-trade rejected buy
	FillSettle   time.Duration // between a successful buy and its status poll
}

// DefaultDelays returns the production settle delays.
func DefaultDelays() Delays {
	return Delays{
		CancelSettle: 1 * time.Second,
		RetrySettle:  2 * time.Second,
		FillSettle:   2 * time.Second,
	}
}

// Config is the immutable input of a Reconciler.
type Config struct {
	Symbol        string          // long instrument, e.g. BOIL
	InverseSymbol string          // inverse instrument, e.g. KOLD
	PositionSize  decimal.Decimal // dollars per buy
	Delays        Delays
}

// ErrUnsupportedSymbol is returned when a decision targets neither tracked symbol.
var ErrUnsupportedSymbol = errors.New("unsupported symbol")

// Reconciler moves the account into the state implied by a Decision: at most
// one position, in the decision's target symbol.
type Reconciler struct {
	broker market.Broker
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(broker market.Broker, cfg Config) *Reconciler {
	return &Reconciler{
		broker: broker,
		cfg:    cfg,
		sleep:  sleepCtx,
	}
}

// run is the working memory of one Execute call.
type run struct {
	target   string
	opposite string
	qty      int64
	order    *models.Order
	err      error
}

type handler func(ctx context.Context, r *run) State

// Execute reconciles the account against d. HOLD touches nothing and returns
// (nil, nil). A BUY returns the submitted order, or a nil result and the
// error of the final buy (or of sizing it) when no order could be placed.
// Failures of the cancel and sell legs are logged and never abort the run.
func (rc *Reconciler) Execute(ctx context.Context, d models.Decision) (*models.TradeResult, error) {
	if d.Action != models.ActionBuy {
		log.Info().Str("action", string(d.Action)).Msg("No trade executed")
		return nil, nil
	}

	log.Info().
		Str("symbol", d.Symbol).
		Float64("confidence", d.Confidence).
		Float64("total_signal", d.Total).
		Msg(">>> Executing trade")

	handlers := map[State]handler{
		StateIdle:              rc.start,
		StateCancelConflicts:   rc.cancelConflicts,
		StateLiquidateOpposite: rc.liquidateOpposite,
		StateLiquidateStale:    rc.liquidateStale,
		StateSubmit:            rc.submit,
		StateRetrySubmit:       rc.retrySubmit,
	}

	r := &run{target: d.Symbol}
	state := StateIdle
	for state != StateResolved && state != StateFailed {
		if err := ctx.Err(); err != nil {
			r.err = err
			state = StateFailed
			break
		}
		next := handlers[state](ctx, r)
		log.Debug().Str("from", state.String()).Str("to", next.String()).Msg("Reconciler transition")
		state = next
	}

	if state == StateFailed {
		log.Error().Err(r.err).Str("symbol", r.target).Msg(">>> Trade execution failed")
		return nil, r.err
	}

	res := rc.resolve(ctx, r)
	log.Info().
		Str("order_id", res.OrderID).
		Str("symbol", res.Symbol).
		Int64("qty", res.Qty).
		Str("status", res.Status).
		Msg(">>> Trade execution complete")
	return res, nil
}

func (rc *Reconciler) start(_ context.Context, r *run) State {
	switch r.target {
	case rc.cfg.Symbol:
		r.opposite = rc.cfg.InverseSymbol
	case rc.cfg.InverseSymbol:
		r.opposite = rc.cfg.Symbol
	default:
		r.err = fmt.Errorf("%w: %q (expected %s or %s)", ErrUnsupportedSymbol, r.target, rc.cfg.Symbol, rc.cfg.InverseSymbol)
		return StateFailed
	}
	return StateCancelConflicts
}

// cancelConflicts clears resting sells on the target so the buy cannot cross them.
func (rc *Reconciler) cancelConflicts(ctx context.Context, r *run) State {
	if err := rc.cancelOpposite(ctx, r.target, models.SideBuy); err != nil {
		r.err = err
		return StateFailed
	}
	return StateLiquidateOpposite
}

func (rc *Reconciler) liquidateOpposite(ctx context.Context, r *run) State {
	qty := rc.positionQty(r.opposite)
	if qty == 0 {
		log.Info().Str("symbol", r.opposite).Msg("No opposite position to close")
		return StateLiquidateStale
	}

	log.Info().Str("symbol", r.opposite).Int64("qty", qty).Msg("Mutual exclusivity: selling opposite position")
	if _, err := rc.sell(ctx, r.opposite, qty); err != nil {
		if ctx.Err() != nil {
			r.err = ctx.Err()
			return StateFailed
		}
		log.Error().Err(err).Str("symbol", r.opposite).Int64("qty", qty).Msg("Failed to sell opposite position")
	}
	return StateLiquidateStale
}

func (rc *Reconciler) liquidateStale(ctx context.Context, r *run) State {
	qty := rc.positionQty(r.target)
	if qty == 0 {
		return StateSubmit
	}

	log.Info().Str("symbol", r.target).Int64("qty", qty).Msg("Closing existing position before new purchase")
	_, err := rc.sell(ctx, r.target, qty)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		r.err = ctx.Err()
		return StateFailed
	case market.IsInsufficientQty(err):
		log.Warn().Str("symbol", r.target).Msg("Position already held for orders, skipping close")
	default:
		log.Error().Err(err).Str("symbol", r.target).Int64("qty", qty).Msg("Failed to close existing position")
	}
	return StateSubmit
}

func (rc *Reconciler) submit(_ context.Context, r *run) State {
	price, err := rc.broker.GetCurrentPrice(r.target)
	if err != nil {
		r.err = fmt.Errorf("price lookup for %s: %w", r.target, err)
		log.Warn().Str("symbol", r.target).Msg("Skipping purchase due to price lookup failure")
		return StateFailed
	}

	r.qty = Quantity(rc.cfg.PositionSize, price)
	log.Info().
		Str("symbol", r.target).
		Str("price", price.StringFixed(2)).
		Str("position_size", rc.cfg.PositionSize.StringFixed(2)).
		Int64("qty", r.qty).
		Msg("Placing market buy")

	order, err := rc.broker.SubmitMarketOrder(models.SideBuy, r.qty, r.target)
	if err == nil {
		r.order = order
		return StateResolved
	}
	if market.IsWashTrade(err) {
		log.Warn().Err(err).Str("symbol", r.target).Msg("Wash trade detected, cancelling opposite orders and retrying")
		return StateRetrySubmit
	}
	r.err = fmt.Errorf("buy %d %s: %w", r.qty, r.target, err)
	return StateFailed
}

// retrySubmit makes the one and only second attempt.
func (rc *Reconciler) retrySubmit(ctx context.Context, r *run) State {
	if err := rc.cancelOpposite(ctx, r.target, models.SideBuy); err != nil {
		r.err = err
		return StateFailed
	}
	if err := rc.sleep(ctx, rc.cfg.Delays.RetrySettle); err != nil {
		r.err = err
		return StateFailed
	}

	log.Info().Str("symbol", r.target).Int64("qty", r.qty).Msg("Retrying market buy")
	order, err := rc.broker.SubmitMarketOrder(models.SideBuy, r.qty, r.target)
	if err != nil {
		r.err = fmt.Errorf("buy %d %s after wash-trade retry: %w", r.qty, r.target, err)
		return StateFailed
	}
	r.order = order
	return StateResolved
}

// resolve takes one snapshot of the submitted order after the fill settle
// delay. A failed poll keeps the submission response: the order exists.
// Without an order ID there is nothing to poll.
func (rc *Reconciler) resolve(ctx context.Context, r *run) *models.TradeResult {
	latest := r.order
	if r.order.ID == "" {
		log.Warn().Str("symbol", r.target).Msg("Submission response has no order ID, skipping status poll")
		return toTradeResult(latest, r)
	}
	if err := rc.sleep(ctx, rc.cfg.Delays.FillSettle); err != nil {
		log.Warn().Err(err).Str("order_id", r.order.ID).Msg("Fill settle wait interrupted, using submission response")
	} else if polled, err := rc.broker.GetOrder(r.order.ID); err != nil {
		log.Warn().Err(err).Str("order_id", r.order.ID).Msg("Order status poll failed, using submission response")
	} else if polled != nil {
		latest = polled
	}
	return toTradeResult(latest, r)
}

// cancelOpposite cancels every open order on symbol whose side would cross an
// order of the given side, then waits for the cancellations to settle.
// Listing or cancel failures are logged; only a cancelled wait is returned.
func (rc *Reconciler) cancelOpposite(ctx context.Context, symbol string, side models.Side) error {
	orders, err := rc.broker.ListOpenOrders(symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Could not list open orders")
		return nil
	}
	if len(orders) == 0 {
		log.Debug().Str("symbol", symbol).Msg("No open orders")
		return nil
	}

	opposite := side.Opposite()
	cancelled := 0
	for _, o := range orders {
		if o.Side != opposite {
			log.Info().Str("symbol", symbol).Str("order_id", o.ID).Str("side", string(o.Side)).Msg("Keeping existing order")
			continue
		}
		if err := rc.broker.CancelOrder(o.ID); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Str("order_id", o.ID).Msg("Failed to cancel order")
			continue
		}
		log.Info().Str("symbol", symbol).Str("order_id", o.ID).Str("side", string(o.Side)).Msg("Cancelled opposite order")
		cancelled++
	}

	if cancelled == 0 {
		return nil
	}
	log.Info().Int("cancelled", cancelled).Dur("settle", rc.cfg.Delays.CancelSettle).Msg("Waiting for cancellations to process")
	return rc.sleep(ctx, rc.cfg.Delays.CancelSettle)
}

// sell liquidates qty shares of symbol after clearing resting buys on it.
func (rc *Reconciler) sell(ctx context.Context, symbol string, qty int64) (*models.Order, error) {
	if err := rc.cancelOpposite(ctx, symbol, models.SideSell); err != nil {
		return nil, err
	}
	order, err := rc.broker.SubmitMarketOrder(models.SideSell, qty, symbol)
	if err != nil {
		return nil, err
	}
	log.Info().Str("symbol", symbol).Int64("qty", qty).Str("order_id", order.ID).Msg("Sell submitted")
	return order, nil
}

// positionQty is a read-only lookup: any failure counts as flat.
func (rc *Reconciler) positionQty(symbol string) int64 {
	pos, err := rc.broker.GetPosition(symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Position lookup failed, assuming no position")
		return 0
	}
	if pos == nil || !pos.Qty.IsPositive() {
		return 0
	}
	return pos.WholeShares()
}

// Quantity sizes a buy: floor(positionSize / price), never below one share.
func Quantity(positionSize, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 1
	}
	qty := positionSize.Div(price).Floor().IntPart()
	if qty < 1 {
		return 1
	}
	return qty
}

func toTradeResult(o *models.Order, r *run) *models.TradeResult {
	res := &models.TradeResult{
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Qty:         o.Qty.IntPart(),
		Status:      o.Status,
		SubmittedAt: o.SubmittedAt,
	}
	if res.Symbol == "" {
		res.Symbol = r.target
	}
	if res.Side == "" {
		res.Side = models.SideBuy
	}
	if res.Qty == 0 {
		res.Qty = r.qty
	}
	if o.FilledQty.IsPositive() {
		filled := o.FilledQty
		res.FilledQty = &filled
	}
	if o.FilledAvgPrice != nil {
		price := *o.FilledAvgPrice
		res.FilledAvgPrice = &price
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
