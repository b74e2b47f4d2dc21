// Package position owns the lifecycle of open trades: staged partial exits,
// stop relocation, and the R accounting that credits banked profit to the
// balance. The manager is the only writer of position state.
package position

import (
	"time"

	"github.com/pipguard/pipguard/market"
)

// Exit level labels used in partial records and close reasons.
const (
	LevelTP1    = "TP1"
	LevelTP2    = "TP2"
	LevelTP3    = "TP3"
	LevelStop   = "STOP"
	LevelReduce = "REDUCE"
	LevelForced = "FORCED"
)

// Position is one open trade. Profit and loss are tracked in R: RiskUSD is
// one R in account currency, RiskDist one R in price. Partial exits bank
// profit at the theoretical level price, so the accounting is identical in
// live trading and replay.
type Position struct {
	ID         string `json:"id"`
	Ticket     string `json:"ticket"`
	Instrument string `json:"instrument"`

	Side market.Side `json:"side"`
	Spec market.Spec `json:"-"`

	Entry       float64 `json:"entry"`
	Stop        float64 `json:"stop"`
	InitialStop float64 `json:"initial_stop"`
	RiskDist    float64 `json:"risk_dist"`
	RiskUSD     float64 `json:"risk_usd"`

	InitialLots float64 `json:"initial_lots"`
	Lots        float64 `json:"lots"`

	Confluence int       `json:"confluence"`
	OpenTime   time.Time `json:"open_time"`

	TP1Done bool `json:"tp1_done"`
	TP2Done bool `json:"tp2_done"`
	Trailed bool `json:"trailed"`

	// ClosedFraction is the fraction of the original size already banked,
	// in theoretical close percentages. Lots tracks the broker-side size,
	// which can differ slightly after lot-step rounding; all R accounting
	// uses the fraction.
	ClosedFraction float64 `json:"closed_fraction"`
	BankedPnL      float64 `json:"banked_pnl"`
}

// TPPrice returns the price at the given R multiple from entry.
func (p *Position) TPPrice(r float64) float64 {
	return p.Entry + float64(p.Side)*r*p.RiskDist
}

// RAt converts a price into a signed R multiple relative to entry.
func (p *Position) RAt(price float64) float64 {
	if p.RiskDist == 0 {
		return 0
	}
	return (price - p.Entry) * float64(p.Side) / p.RiskDist
}

// RemainingFraction is the open fraction of the original size.
func (p *Position) RemainingFraction() float64 {
	rem := 1.0 - p.ClosedFraction
	if rem < 0 {
		return 0
	}
	return rem
}

// FloatingPnL values the remaining size at the given price, in account
// currency, ignoring commission.
func (p *Position) FloatingPnL(price float64) float64 {
	return p.RAt(price) * p.RiskUSD * p.RemainingFraction()
}

// StopHit reports whether the bar's adverse extreme reached the stop.
func (p *Position) StopHit(high, low float64) bool {
	if p.Side == market.Long {
		return low <= p.Stop
	}
	return high >= p.Stop
}

// Reached reports whether the bar's favorable extreme touched the price.
func (p *Position) Reached(price, high, low float64) bool {
	if p.Side == market.Long {
		return high >= price
	}
	return low <= price
}

// FavorableExtreme is the bar price farthest in the profit direction.
func (p *Position) FavorableExtreme(high, low float64) float64 {
	if p.Side == market.Long {
		return high
	}
	return low
}
