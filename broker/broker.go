// Package broker defines the gateway capability interface the trade logic
// consumes. Core logic never branches on which implementation it holds:
// live trading and historical replay satisfy the same interface.
package broker

import (
	"context"
	"time"

	"github.com/pipguard/pipguard/market"
)

// Gateway is the full brokerage surface used by the orchestrator. All calls
// take a context; live implementations bound every call with a timeout.
type Gateway interface {
	GetTick(ctx context.Context, instrument string) (market.Tick, error)
	GetCandles(ctx context.Context, instrument, timeframe string, count int) ([]market.Candle, error)

	PlaceMarketOrder(ctx context.Context, req OrderRequest) (Fill, error)
	PlaceLimitOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error

	// ClosePosition closes volume lots of the ticket (0 closes all) and
	// returns the fill price.
	ClosePosition(ctx context.Context, ticket string, volume float64) (float64, error)
	ModifyStop(ctx context.Context, ticket string, newStop float64) error

	GetOpenPositions(ctx context.Context) ([]PositionInfo, error)
	GetPendingOrders(ctx context.Context) ([]OrderInfo, error)
	GetAccount(ctx context.Context) (Account, error)
}

// OrderRequest describes a new market or limit order.
type OrderRequest struct {
	Instrument string
	Side       market.Side
	Lots       float64
	Price      float64 // limit price; ignored for market orders
	Stop       float64
	TakeProfit float64 // optional, 0 means none
}

// Fill is the broker's acknowledgement of an executed market order.
type Fill struct {
	Ticket     string
	Instrument string
	Side       market.Side
	Lots       float64
	Price      float64
	Time       time.Time
}

// PositionInfo is the broker's view of an open position, used for startup
// reconciliation against locally persisted state.
type PositionInfo struct {
	Ticket     string
	Instrument string
	Side       market.Side
	Lots       float64
	OpenPrice  float64
	Stop       float64
	OpenTime   time.Time
}

// OrderInfo is the broker's view of a pending order.
type OrderInfo struct {
	OrderID    string
	Instrument string
	Side       market.Side
	Lots       float64
	Price      float64
	Stop       float64
	CreatedAt  time.Time
}

// Account is the broker-reported account state.
type Account struct {
	ID       string
	Currency string
	Balance  float64
	Equity   float64
}
