// journal/journal.go
package journal

import (
	"time"

	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/risk"
)

// TradeRecord is the terminal row for one position: written once, when the
// position is fully closed. Partial exits along the way get PartialRecords.
type TradeRecord struct {
	ID          string
	Ticket      string
	Instrument  string
	Side        market.Side
	Lots        float64
	EntryPrice  float64
	ExitPrice   float64
	OpenTime    time.Time
	CloseTime   time.Time
	RealizedPnL float64 // partials + remainder - commission
	RealizedR   float64
	Commission  float64
	Reason      string
}

// PartialRecord captures one staged exit (TP1/TP2/progressive trail bank).
type PartialRecord struct {
	PositionID string
	Instrument string
	Level      string // TP1, TP2, REDUCE
	Time       time.Time
	Price      float64
	Fraction   float64 // fraction of the original size closed
	BankedPnL  float64
}

type EquitySnapshot struct {
	Time       time.Time
	Balance    float64
	Equity     float64
	DailyDDPct float64
	TotalDDPct float64
}

// Journal persists the audit trail. Implementations: CSV and SQLite.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordPartial(PartialRecord) error
	RecordEquity(EquitySnapshot) error
	RecordDrawdown(risk.DrawdownEvent) error
	Close() error
}

// Nop discards everything. Tests and dry runs use it.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error           { return nil }
func (Nop) RecordPartial(PartialRecord) error       { return nil }
func (Nop) RecordEquity(EquitySnapshot) error       { return nil }
func (Nop) RecordDrawdown(risk.DrawdownEvent) error { return nil }
func (Nop) Close() error                            { return nil }
