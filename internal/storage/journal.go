package storage

import (
	"errors"

	"natgas_trading/internal/models"
)

// Journal durably records the events of each trading cycle, append-only.
type Journal interface {
	RecordSignal(d models.Decision) error
	// RecordTrade records t, or the explicit absence of a trade when t is nil.
	RecordTrade(t *models.TradeResult) error
	RecordPortfolio(p *models.Portfolio) error
	RecordError(context string, err error) error
	Close() error
}

// Multi fans every record out to all journals.
type Multi []Journal

var _ Journal = Multi(nil)

func (m Multi) RecordSignal(d models.Decision) error {
	return m.each(func(j Journal) error { return j.RecordSignal(d) })
}

func (m Multi) RecordTrade(t *models.TradeResult) error {
	return m.each(func(j Journal) error { return j.RecordTrade(t) })
}

func (m Multi) RecordPortfolio(p *models.Portfolio) error {
	return m.each(func(j Journal) error { return j.RecordPortfolio(p) })
}

func (m Multi) RecordError(context string, err error) error {
	return m.each(func(j Journal) error { return j.RecordError(context, err) })
}

func (m Multi) Close() error {
	return m.each(func(j Journal) error { return j.Close() })
}

func (m Multi) each(fn func(Journal) error) error {
	var errs []error
	for _, j := range m {
		if err := fn(j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
