package alpaca

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"natgas_trading/internal/market"
	"natgas_trading/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// tradingAPI is the subset of *alpaca.Client the provider uses.
type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPosition(symbol string) (*alpaca.Position, error)
	GetPositions() ([]alpaca.Position, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	GetOrder(orderID string) (*alpaca.Order, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

// marketDataAPI is the subset of *marketdata.Client the provider uses.
type marketDataAPI interface {
	GetLatestBar(symbol string, req marketdata.GetLatestBarRequest) (*marketdata.Bar, error)
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// Options carries the credentials and endpoints for both Alpaca clients.
type Options struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API
	DataURL   string // market data API, "" = SDK default
	Feed      string // iex or sip
}

// Provider implements market.Broker on top of the Alpaca SDK.
type Provider struct {
	mdClient    marketDataAPI
	tradeClient tradingAPI
	feed        marketdata.Feed
}

// Ensure Provider implements the interface
var _ market.Broker = (*Provider)(nil)

// NewProvider returns a new Alpaca provider. Credentials are passed explicitly
// rather than picked up from the environment by the SDK.
func NewProvider(opts Options) *Provider {
	return &Provider{
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.DataURL,
		}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		feed: marketdata.Feed(opts.Feed),
	}
}

// --- Account & Positions ---

func (p *Provider) GetAccount() (*models.Account, error) {
	a, err := p.tradeClient.GetAccount()
	if err != nil {
		return nil, classify("get account", err)
	}
	return &models.Account{
		ID:             a.ID,
		Currency:       a.Currency,
		Equity:         a.Equity,
		BuyingPower:    a.BuyingPower,
		Cash:           a.Cash,
		PortfolioValue: a.PortfolioValue,
	}, nil
}

// GetPosition maps the broker's 404 to (nil, nil): being flat is not an error.
func (p *Provider) GetPosition(symbol string) (*models.Position, error) {
	pos, err := p.tradeClient.GetPosition(symbol)
	if err != nil {
		err = classify("get position "+symbol, err)
		if errors.Is(err, market.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}
	mapped := mapPosition(*pos)
	return &mapped, nil
}

func (p *Provider) ListPositions() ([]models.Position, error) {
	alpacaPositions, err := p.tradeClient.GetPositions()
	if err != nil {
		return nil, classify("list positions", err)
	}

	result := make([]models.Position, 0, len(alpacaPositions))
	for _, x := range alpacaPositions {
		result = append(result, mapPosition(x))
	}
	return result, nil
}

// --- Market Data ---

// GetCurrentPrice resolves a price in three tiers so that a gap in one
// endpoint never stops the cycle:
//  1. close of the latest bar
//  2. latest quote: bid, then ask, then the latest trade price
//  3. market value / qty of an existing position
func (p *Provider) GetCurrentPrice(symbol string) (decimal.Decimal, error) {
	// 1. Latest bar
	bar, err := p.mdClient.GetLatestBar(symbol, marketdata.GetLatestBarRequest{Feed: p.feed})
	switch {
	case err != nil:
		log.Warn().Str("symbol", symbol).Err(classify("latest bar", err)).Msg("Latest bar unavailable, trying quote")
	case bar == nil || bar.Close <= 0:
		log.Warn().Str("symbol", symbol).Msg("No latest bar, trying quote")
	default:
		return decimal.NewFromFloat(bar.Close), nil
	}

	// 2. Latest quote
	if price, ok := p.quotePrice(symbol); ok {
		return price, nil
	}

	// 3. Position-derived price
	pos, err := p.GetPosition(symbol)
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(err).Msg("Position lookup for price fallback failed")
	}
	if pos != nil && !pos.Qty.IsZero() {
		price := pos.MarketValue.Div(pos.Qty)
		log.Info().Str("symbol", symbol).Str("price", price.StringFixed(2)).Msg("Using position-based price")
		return price, nil
	}

	return decimal.Zero, fmt.Errorf("price for %s: bar, quote and position lookups all failed: %w", symbol, market.ErrNotFound)
}

func (p *Provider) quotePrice(symbol string) (decimal.Decimal, bool) {
	q, err := p.mdClient.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{Feed: p.feed})
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(classify("latest quote", err)).Msg("Latest quote unavailable")
	} else if q != nil {
		if q.BidPrice > 0 {
			return decimal.NewFromFloat(q.BidPrice), true
		}
		if q.AskPrice > 0 {
			return decimal.NewFromFloat(q.AskPrice), true
		}
	}

	// The quote carries no last-price field; the latest trade is the closest equivalent.
	trade, err := p.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: p.feed})
	if err != nil {
		log.Warn().Str("symbol", symbol).Err(classify("latest trade", err)).Msg("Latest trade unavailable")
		return decimal.Zero, false
	}
	if trade == nil || trade.Price <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(trade.Price), true
}

// --- Execution ---

func (p *Provider) ListOpenOrders(symbol string) ([]models.Order, error) {
	req := alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  100,
	}
	if symbol != "" {
		req.Symbols = []string{symbol}
	}
	orders, err := p.tradeClient.GetOrders(req)
	if err != nil {
		return nil, classify("list open orders", err)
	}

	result := make([]models.Order, 0, len(orders))
	for i := range orders {
		if symbol != "" && orders[i].Symbol != symbol {
			continue
		}
		result = append(result, *mapOrder(&orders[i]))
	}
	return result, nil
}

func (p *Provider) CancelOrder(orderID string) error {
	if err := p.tradeClient.CancelOrder(orderID); err != nil {
		return classify("cancel order "+orderID, err)
	}
	return nil
}

func (p *Provider) SubmitMarketOrder(side models.Side, qty int64, symbol string) (*models.Order, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("submit %s %s: quantity must be positive, got %d", side, symbol, qty)
	}
	q := decimal.NewFromInt(qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &q,
		Side:        alpaca.Side(side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}

	o, err := p.tradeClient.PlaceOrder(req)
	if err != nil {
		return nil, classify(fmt.Sprintf("submit %s %d %s", side, qty, symbol), err)
	}
	if o == nil {
		return nil, fmt.Errorf("submit %s %s: %w: empty order response", side, symbol, market.ErrParse)
	}
	return mapOrder(o), nil
}

func (p *Provider) GetOrder(orderID string) (*models.Order, error) {
	o, err := p.tradeClient.GetOrder(orderID)
	if err != nil {
		return nil, classify("get order "+orderID, err)
	}
	if o == nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, market.ErrNotFound)
	}
	return mapOrder(o), nil
}

// Helpers

// classify maps SDK errors onto the market error taxonomy.
func classify(op string, err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return &market.APIRejection{
			Op:      op,
			Status:  apiErr.StatusCode,
			Message: apiErr.Message,
			Body:    apiErr.Body,
		}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, market.ErrNetwork, err)
	}

	// The SDK falls back to a plain "<body> (HTTP <code>)" error for non-JSON payloads.
	if msg := err.Error(); strings.Contains(msg, "(HTTP 404)") {
		return &market.APIRejection{Op: op, Status: 404, Body: msg}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func mapPosition(x alpaca.Position) models.Position {
	// Helper to safely dereference decimal pointers from Alpaca SDK
	deref := func(d *decimal.Decimal) decimal.Decimal {
		if d == nil {
			return decimal.Zero
		}
		return *d
	}
	return models.Position{
		Symbol:         x.Symbol,
		Qty:            x.Qty,
		AvgEntryPrice:  x.AvgEntryPrice,
		MarketValue:    deref(x.MarketValue),
		UnrealizedPL:   deref(x.UnrealizedPL),
		UnrealizedPLPC: deref(x.UnrealizedPLPC),
	}
}

func mapOrder(o *alpaca.Order) *models.Order {
	if o == nil {
		return nil
	}

	res := &models.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		FilledQty:     o.FilledQty,
		Type:          string(o.Type),
		Side:          models.Side(o.Side),
		Status:        o.Status,
		SubmittedAt:   o.SubmittedAt,
		FilledAt:      o.FilledAt,
	}
	if o.Qty != nil {
		res.Qty = *o.Qty
	}
	if o.FilledAvgPrice != nil {
		price := *o.FilledAvgPrice
		res.FilledAvgPrice = &price
	}
	return res
}
