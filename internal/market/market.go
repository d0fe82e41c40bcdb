package market

import (
	"natgas_trading/internal/models"

	"github.com/shopspring/decimal"
)

// Broker is the set of brokerage calls the reconciler and the orchestrator need.
// Every method is a network round trip and may fail with ErrNetwork, ErrAuth or
// an *APIRejection.
//
// The reconciler only depends on this interface, so tests can swap in a
// simulated broker without touching the network.
type Broker interface {
	GetAccount() (*models.Account, error)

	// GetPosition returns nil (and no error) when the account is flat in symbol.
	GetPosition(symbol string) (*models.Position, error)
	ListPositions() ([]models.Position, error)

	// GetCurrentPrice walks latest bar, latest quote and finally the
	// position's market value before giving up.
	GetCurrentPrice(symbol string) (decimal.Decimal, error)

	// ListOpenOrders lists open orders, optionally filtered by symbol ("" = all).
	ListOpenOrders(symbol string) ([]models.Order, error)
	CancelOrder(orderID string) error

	// SubmitMarketOrder places a market, day order. qty must be positive.
	SubmitMarketOrder(side models.Side, qty int64, symbol string) (*models.Order, error)

	// GetOrder is a single snapshot read of an order, not a wait.
	GetOrder(orderID string) (*models.Order, error)
}
