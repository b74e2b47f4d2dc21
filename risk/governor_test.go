package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/internal/logging"
	"github.com/pipguard/pipguard/market"
)

func newTestGovernor(t *testing.T, sink EventSink) *Governor {
	t.Helper()
	return NewGovernor(config.Default(), market.NewClock(2), Baseline{
		Date:           "2026-03-02",
		Equity:         100_000,
		InitialBalance: 100_000,
	}, logging.Discard(), sink)
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestEvaluateThresholdCascade(t *testing.T) {
	t.Parallel()

	now := at(t, "2026-03-02T10:00:00Z")

	tests := []struct {
		name      string
		equity    float64
		wantState State
		wantRisk  float64
	}{
		{"flat equity is normal", 100_000, Normal, 0.006},
		{"small dip is normal", 99_000, Normal, 0.006},
		{"warn at 2 percent", 98_000, Warn, 0.006},
		{"reduce at 3 percent", 97_000, Reduce, 0.004},
		{"halt at 3.5 percent", 96_400, Halt, 0},
		{"emergency at 7 percent total", 93_000, Halt, 0},
		{"terminal at 10 percent total", 90_000, Terminal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGovernor(t, nil)
			a := g.Evaluate(now, tt.equity, nil)
			assert.Equal(t, tt.wantState, a.State)
			assert.InDelta(t, tt.wantRisk, a.RiskPct, 1e-9)
		})
	}
}

func TestDailyHaltAtThreeSixPercent(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(t, nil)
	now := at(t, "2026-03-02T10:00:00Z")

	a := g.Evaluate(now, 96_400, []string{"T-1", "T-2"}) // 3.6% daily
	assert.Equal(t, Halt, a.State)
	assert.True(t, a.BlockEntries)
	assert.True(t, a.CancelPending)
	assert.True(t, a.CloseAll, "force close fires on the transition")

	// Next tick: still halted, but CloseAll fires only once.
	a = g.Evaluate(now.Add(time.Minute), 96_400, nil)
	assert.Equal(t, Halt, a.State)
	assert.True(t, a.BlockEntries)
	assert.False(t, a.CloseAll)

	// Equity recovering does not clear the halt intraday.
	a = g.Evaluate(now.Add(2*time.Minute), 99_500, nil)
	assert.Equal(t, Halt, a.State)

	ok, reason := g.CanOpen()
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestRolloverClearsDailyHaltOnly(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(t, nil)
	g.Evaluate(at(t, "2026-03-02T10:00:00Z"), 96_000, nil)
	require.Equal(t, Halt, g.State())

	g.Rollover(at(t, "2026-03-02T22:00:05Z"), 96_000)
	assert.Equal(t, Normal, g.State())

	// The new baseline is yesterday's close, so the same equity is 0% down.
	a := g.Evaluate(at(t, "2026-03-03T08:00:00Z"), 96_000, nil)
	assert.Equal(t, Normal, a.State)
	assert.InDelta(t, 0, a.DailyDDPct, 1e-9)
}

func TestTerminalSurvivesRollover(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(t, nil)
	g.Evaluate(at(t, "2026-03-02T10:00:00Z"), 89_000, nil) // 11% total
	require.Equal(t, Terminal, g.State())

	g.Rollover(at(t, "2026-03-02T22:00:05Z"), 89_000)
	assert.Equal(t, Terminal, g.State())

	// Even a full recovery does not clear terminal.
	a := g.Evaluate(at(t, "2026-03-03T08:00:00Z"), 100_000, nil)
	assert.Equal(t, Terminal, a.State)
	assert.True(t, a.BlockEntries)
}

func TestRestoreReArmsPersistedHalt(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(t, nil)
	g.Restore(Halt, "daily drawdown 3.60% >= halt 3.50%", "2026-03-02")
	assert.True(t, g.Halted())

	st, reason, date := g.HaltInfo()
	assert.Equal(t, Halt, st)
	assert.Contains(t, reason, "3.60%")
	assert.Equal(t, "2026-03-02", date)
}

func TestEvaluateEmitsDrawdownEvents(t *testing.T) {
	t.Parallel()

	var events []DrawdownEvent
	sink := EventSinkFunc(func(ev DrawdownEvent) error {
		events = append(events, ev)
		return nil
	})

	g := newTestGovernor(t, sink)
	now := at(t, "2026-03-02T10:00:00Z")

	g.Evaluate(now, 98_000, nil)                          // WARN
	g.Evaluate(now.Add(time.Minute), 98_000, nil)         // no re-emit
	g.Evaluate(now.Add(2*time.Minute), 96_000, []string{"T-1"}) // HALT

	require.Len(t, events, 2)
	assert.Equal(t, EventWarn, events[0].Kind)
	assert.Equal(t, EventDailyHalt, events[1].Kind)
	assert.Equal(t, []string{"T-1"}, events[1].Positions)
	assert.InDelta(t, 96_000, events[1].Equity, 1e-9)
}

func TestTradeBudget(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(t, nil)
	for i := 0; i < 10; i++ {
		ok, _ := g.CanOpen()
		require.True(t, ok)
		g.RecordTrade()
	}
	ok, reason := g.CanOpen()
	assert.False(t, ok)
	assert.Contains(t, reason, "trade limit")

	g.Rollover(at(t, "2026-03-02T22:00:05Z"), 100_000)
	ok, _ = g.CanOpen()
	assert.True(t, ok, "budget resets at rollover")
}

func TestProfitableDayTracking(t *testing.T) {
	t.Parallel()

	g := newTestGovernor(t, nil)
	g.Rollover(at(t, "2026-03-02T22:00:05Z"), 100_600) // +0.6%, profitable
	g.Rollover(at(t, "2026-03-03T22:00:05Z"), 100_700) // +0.1%, not
	g.Rollover(at(t, "2026-03-04T22:00:05Z"), 101_400) // +0.7%, profitable

	st := g.StatusAt(101_400)
	assert.Equal(t, 2, st.ProfitableDays)
	assert.InDelta(t, 1.4, st.ProfitPct, 1e-9)
	assert.Equal(t, 1, st.Phase)
}
