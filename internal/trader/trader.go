package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"natgas_trading/internal/datasources"
	"natgas_trading/internal/market"
	"natgas_trading/internal/models"
	"natgas_trading/internal/notifications"
	"natgas_trading/internal/signals"
	"natgas_trading/internal/storage"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultInterval is the pause between two cycles in continuous mode.
	DefaultInterval = 24 * time.Hour
	// DefaultFailureBackoff replaces a non-positive failure backoff so a
	// failing cycle is never rerun back to back.
	DefaultFailureBackoff = 5 * time.Minute
)

// Executor turns a decision into broker calls.
type Executor interface {
	Execute(ctx context.Context, d models.Decision) (*models.TradeResult, error)
}

// Notifier delivers a human readable cycle summary.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Sources are the three signal inputs. Each may fail independently.
type Sources struct {
	Temperature datasources.Source
	Inventory   datasources.Source
	Storm       datasources.Source
}

// Trader drives trading cycles: fetch signals, fuse, reconcile, record.
type Trader struct {
	broker         market.Broker
	sources        Sources
	fusion         *signals.Fusion
	executor       Executor
	journal        storage.Journal
	notifier       Notifier
	failureBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// New wires a Trader. notifier may be nil.
func New(broker market.Broker, sources Sources, fusion *signals.Fusion, executor Executor, journal storage.Journal, notifier Notifier, failureBackoff time.Duration) *Trader {
	if failureBackoff <= 0 {
		failureBackoff = DefaultFailureBackoff
	}
	return &Trader{
		broker:         broker,
		sources:        sources,
		fusion:         fusion,
		executor:       executor,
		journal:        journal,
		notifier:       notifier,
		failureBackoff: failureBackoff,
		sleep:          sleepCtx,
	}
}

// CheckConnectivity logs the account snapshot. Failure is only a warning;
// every cycle re-reads the account anyway.
func (t *Trader) CheckConnectivity() {
	acct, err := t.broker.GetAccount()
	if err != nil {
		log.Warn().Err(err).Msg("Could not connect to Alpaca API")
		return
	}
	log.Info().
		Str("equity", acct.Equity.StringFixed(2)).
		Str("buying_power", acct.BuyingPower.StringFixed(2)).
		Msg("Connected to Alpaca API")
}

// RunCycle runs one full cycle. It returns an error when the trade failed or
// the portfolio could not be read; signal failures only degrade the signal.
func (t *Trader) RunCycle(ctx context.Context) error {
	start := time.Now()
	log.Info().Msg("=== Starting trading cycle ===")

	sig := t.fetchSignals(ctx)
	decision := t.fusion.Decide(sig)
	t.record("signal", t.journal.RecordSignal(decision))

	trade, tradeErr := t.executor.Execute(ctx, decision)
	t.record("trade", t.journal.RecordTrade(trade))
	if tradeErr != nil {
		t.record("error", t.journal.RecordError("trade execution", tradeErr))
	}

	portfolio, portfolioErr := t.PortfolioSummary()
	if portfolioErr != nil {
		log.Error().Err(portfolioErr).Msg("Error getting portfolio summary")
		t.record("error", t.journal.RecordError("portfolio summary", portfolioErr))
	} else {
		t.record("portfolio", t.journal.RecordPortfolio(portfolio))
	}

	if t.notifier != nil {
		t.notifier.Notify(ctx, notifications.CycleSummary(decision, trade, tradeErr, portfolio))
	}

	err := errors.Join(tradeErr, portfolioErr)
	log.Info().Dur("elapsed", time.Since(start)).Bool("ok", err == nil).Msg("=== Trading cycle finished ===")
	if err != nil {
		return fmt.Errorf("trading cycle: %w", err)
	}
	return nil
}

// RunContinuous repeats cycles every interval, or after the failure backoff
// when a cycle fails. It only returns once ctx is done.
func (t *Trader) RunContinuous(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	log.Info().Dur("interval", interval).Msg("Starting continuous trading")

	for {
		wait := interval
		if err := t.RunCycle(ctx); err != nil {
			log.Error().Err(err).Dur("retry_in", t.failureBackoff).Msg("Trading cycle failed")
			wait = t.failureBackoff
		} else {
			log.Info().Time("next_cycle", time.Now().Add(wait)).Msg("Waiting for next cycle")
		}

		if err := t.sleep(ctx, wait); err != nil {
			log.Info().Msg("Continuous trading stopped")
			return nil
		}
	}
}

// PortfolioSummary reports every position and the account totals. The price of
// a position is its market value over its quantity.
func (t *Trader) PortfolioSummary() (*models.Portfolio, error) {
	acct, err := t.broker.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("portfolio summary: %w", err)
	}
	positions, err := t.broker.ListPositions()
	if err != nil {
		return nil, fmt.Errorf("portfolio summary: %w", err)
	}

	p := &models.Portfolio{
		TotalValue:  acct.PortfolioValue,
		Equity:      acct.Equity,
		Cash:        acct.Cash,
		BuyingPower: acct.BuyingPower,
		Positions:   make([]models.PortfolioPosition, 0, len(positions)),
	}
	for _, pos := range positions {
		line := models.PortfolioPosition{
			Symbol:         pos.Symbol,
			Qty:            pos.Qty,
			MarketValue:    pos.MarketValue,
			UnrealizedPL:   pos.UnrealizedPL,
			UnrealizedPLPC: pos.UnrealizedPLPC,
		}
		if !pos.Qty.IsZero() {
			line.CurrentPrice = pos.MarketValue.Div(pos.Qty)
		}
		p.Positions = append(p.Positions, line)
	}
	return p, nil
}

func (t *Trader) fetchSignals(ctx context.Context) models.Signals {
	return models.Signals{
		Temperature: t.fetch(ctx, t.sources.Temperature),
		Inventory:   t.fetch(ctx, t.sources.Inventory),
		Storm:       t.fetch(ctx, t.sources.Storm),
	}
}

// fetch degrades a missing or failing source to the neutral value 0.
func (t *Trader) fetch(ctx context.Context, src datasources.Source) float64 {
	if src == nil {
		return 0
	}
	v, err := src.Signal(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", src.Name()).Msg("Signal fetch failed, using 0.0")
		t.record("error", t.journal.RecordError("fetch "+src.Name()+" signal", err))
		return 0
	}
	return v
}

func (t *Trader) record(kind string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Failed to write journal record")
	}
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
