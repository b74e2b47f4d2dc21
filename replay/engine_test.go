package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/internal/logging"
	"github.com/pipguard/pipguard/journal"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/position"
	"github.com/pipguard/pipguard/risk"
	"github.com/pipguard/pipguard/signal"
)

// ledger captures the journal rows a run produces, for run-to-run comparison.
type ledger struct {
	trades   []journal.TradeRecord
	partials []journal.PartialRecord
}

func (l *ledger) RecordTrade(t journal.TradeRecord) error {
	l.trades = append(l.trades, t)
	return nil
}
func (l *ledger) RecordPartial(p journal.PartialRecord) error {
	l.partials = append(l.partials, p)
	return nil
}
func (l *ledger) RecordEquity(journal.EquitySnapshot) error  { return nil }
func (l *ledger) RecordDrawdown(risk.DrawdownEvent) error    { return nil }
func (l *ledger) Close() error                               { return nil }

func bar(t *testing.T, ts string, o, h, l, c float64) market.Candle {
	t.Helper()
	when, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	return market.Candle{Time: when, Open: o, High: h, Low: l, Close: c}
}

// mondaySetup is two quiet Monday bars that establish the price at the
// signal's entry, so the Tuesday scan fills at exactly 1.0850.
func mondaySetup(t *testing.T) []market.Candle {
	t.Helper()
	return []market.Candle{
		bar(t, "2026-03-02T08:00:00Z", 1.0840, 1.0852, 1.0838, 1.0848),
		bar(t, "2026-03-02T12:00:00Z", 1.0848, 1.0853, 1.0846, 1.0850),
	}
}

func tuesdaySignal() *signal.Scripted {
	p := signal.NewScripted()
	p.Add(signal.Signal{
		Instrument: "EUR_USD",
		Side:       market.Long,
		Entry:      1.0850,
		Stop:       1.0820, // 30 pips, 600 USD at 0.6% of 100k
		Confluence: 4,
		CreatedAt:  time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	return p
}

func TestRunFullLadder(t *testing.T) {
	t.Parallel()

	bars := map[string][]market.Candle{
		"EUR_USD": append(mondaySetup(t),
			bar(t, "2026-03-03T08:00:00Z", 1.0850, 1.0855, 1.0845, 1.0850),
			// TP1 at 1.0868, stop to breakeven.
			bar(t, "2026-03-03T09:00:00Z", 1.0850, 1.0870, 1.0850, 1.0869),
			// TP2 at 1.0886 and TP3 at 1.0910 in the same bar.
			bar(t, "2026-03-03T10:00:00Z", 1.0869, 1.0915, 1.0865, 1.0910),
		),
	}

	led := &ledger{}
	eng := NewEngine(config.Default(), bars, tuesdaySignal(), 100_000, led, logging.Discard())
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)

	// Banked: 0.6R*35% + 1.2R*30% + 2.0R*35% = 1.27R of 600, minus 8 commission.
	assert.InDelta(t, 100_754, sum.FinalBalance, 1e-6)
	assert.InDelta(t, 100_754, sum.FinalEquity, 1e-6)
	assert.InDelta(t, 0.754, sum.ReturnPct, 1e-6)
	assert.Equal(t, 1, sum.Trades)
	assert.Equal(t, 2, sum.Partials)
	assert.Equal(t, 2, sum.Days)
	assert.Equal(t, "NORMAL", sum.GovernorState)

	require.Len(t, led.trades, 1)
	tr := led.trades[0]
	assert.Equal(t, position.LevelTP3, tr.Reason)
	assert.InDelta(t, 1.0850, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 1.0910, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 754, tr.RealizedPnL, 1e-6)
	assert.InDelta(t, 754.0/600.0, tr.RealizedR, 1e-9)
	assert.InDelta(t, 8, tr.Commission, 1e-9)

	require.Len(t, led.partials, 2)
	assert.Equal(t, position.LevelTP1, led.partials[0].Level)
	assert.InDelta(t, 126, led.partials[0].BankedPnL, 1e-6)
	assert.Equal(t, position.LevelTP2, led.partials[1].Level)
	assert.InDelta(t, 216, led.partials[1].BankedPnL, 1e-6)
}

func TestRunStopLoss(t *testing.T) {
	t.Parallel()

	bars := map[string][]market.Candle{
		"EUR_USD": append(mondaySetup(t),
			bar(t, "2026-03-03T08:00:00Z", 1.0850, 1.0855, 1.0845, 1.0848),
			bar(t, "2026-03-03T09:00:00Z", 1.0848, 1.0849, 1.0815, 1.0822),
		),
	}

	led := &ledger{}
	eng := NewEngine(config.Default(), bars, tuesdaySignal(), 100_000, led, logging.Discard())
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)

	// Full loss of 600 plus 8 commission.
	assert.InDelta(t, 99_392, sum.FinalBalance, 1e-6)
	assert.Equal(t, 1, sum.Trades)
	assert.Zero(t, sum.Partials)

	require.Len(t, led.trades, 1)
	assert.Equal(t, position.LevelStop, led.trades[0].Reason)
	assert.InDelta(t, 1.0820, led.trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, -608.0/600.0, led.trades[0].RealizedR, 1e-9)
}

func TestRunNoBars(t *testing.T) {
	t.Parallel()

	eng := NewEngine(config.Default(), nil, signal.NewScripted(), 50_000, journal.Nop{}, logging.Discard())
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50_000, sum.FinalBalance, 1e-9)
	assert.Zero(t, sum.Trades)
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	mkBars := func() map[string][]market.Candle {
		return map[string][]market.Candle{
			"EUR_USD": append(mondaySetup(t),
				bar(t, "2026-03-03T08:00:00Z", 1.0850, 1.0855, 1.0845, 1.0850),
				bar(t, "2026-03-03T09:00:00Z", 1.0850, 1.0870, 1.0850, 1.0869),
				bar(t, "2026-03-03T10:00:00Z", 1.0869, 1.0915, 1.0865, 1.0910),
			),
			"GBP_USD": {
				bar(t, "2026-03-02T08:00:00Z", 1.2700, 1.2712, 1.2695, 1.2710),
				bar(t, "2026-03-03T08:00:00Z", 1.2710, 1.2722, 1.2704, 1.2718),
				bar(t, "2026-03-03T10:00:00Z", 1.2718, 1.2730, 1.2712, 1.2725),
			},
		}
	}

	run := func() (Summary, *ledger) {
		led := &ledger{}
		eng := NewEngine(config.Default(), mkBars(), tuesdaySignal(), 100_000, led, logging.Discard())
		sum, err := eng.Run(context.Background())
		require.NoError(t, err)
		return sum, led
	}

	sum1, led1 := run()
	sum2, led2 := run()

	assert.Equal(t, sum1, sum2)
	assert.Equal(t, led1.trades, led2.trades, "ticket ids and fills replay identically")
	assert.Equal(t, led1.partials, led2.partials)
}

func TestRunSkipsWeekendBarsForNonContinuous(t *testing.T) {
	t.Parallel()

	bars := map[string][]market.Candle{
		"EUR_USD": append(mondaySetup(t),
			bar(t, "2026-03-03T08:00:00Z", 1.0850, 1.0855, 1.0845, 1.0850),
			// Saturday bar dips through the stop; the market is closed, so
			// the bar must not be evaluated.
			bar(t, "2026-03-07T10:00:00Z", 1.0840, 1.0845, 1.0800, 1.0825),
			bar(t, "2026-03-09T08:00:00Z", 1.0858, 1.0862, 1.0855, 1.0860),
		),
	}

	led := &ledger{}
	eng := NewEngine(config.Default(), bars, tuesdaySignal(), 100_000, led, logging.Discard())
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, led.trades, "weekend bar must not stop the position out")
	assert.Zero(t, sum.Trades)
	assert.InDelta(t, 100_000, sum.FinalBalance, 1e-6)
	// Position still open at Monday's close, one third of the way to 1R.
	assert.InDelta(t, 100_200, sum.FinalEquity, 1e-4)
}

func TestRunKeepsWeekendBarsForContinuous(t *testing.T) {
	t.Parallel()

	provider := signal.NewScripted()
	provider.Add(signal.Signal{
		Instrument: "BTC_USD",
		Side:       market.Long,
		Entry:      60_000,
		Stop:       59_000,
		Confluence: 4,
		CreatedAt:  time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC),
	})

	bars := map[string][]market.Candle{
		"BTC_USD": {
			bar(t, "2026-03-05T10:00:00Z", 59_900, 60_100, 59_800, 60_000),
			bar(t, "2026-03-06T08:00:00Z", 60_000, 60_100, 59_900, 60_050),
			// Saturday sell-off trades around the clock and hits the stop.
			bar(t, "2026-03-07T10:00:00Z", 59_800, 59_850, 58_900, 59_000),
		},
	}

	led := &ledger{}
	eng := NewEngine(config.Default(), bars, provider, 100_000, led, logging.Discard())
	sum, err := eng.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, led.trades, 1, "continuous markets are managed through the weekend")
	assert.Equal(t, position.LevelStop, led.trades[0].Reason)
	assert.Equal(t, time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC), led.trades[0].CloseTime)
	assert.InDelta(t, 99_400, sum.FinalBalance, 1e-6)
}

func TestTimelineOrdering(t *testing.T) {
	t.Parallel()

	e := &Engine{bars: map[string][]market.Candle{
		"GBP_USD": {bar(t, "2026-03-02T08:00:00Z", 1, 1, 1, 1)},
		"EUR_USD": {
			bar(t, "2026-03-02T08:00:00Z", 1, 1, 1, 1),
			bar(t, "2026-03-02T09:00:00Z", 1, 1, 1, 1),
		},
	}}

	events := e.timeline()
	require.Len(t, events, 3)
	// Same timestamp resolves by instrument name.
	assert.Equal(t, "EUR_USD", events[0].instrument)
	assert.Equal(t, "GBP_USD", events[1].instrument)
	assert.Equal(t, "EUR_USD", events[2].instrument)
}
