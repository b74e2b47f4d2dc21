package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/market"
)

// State is the governor's safety level, in severity order.
type State int

const (
	Normal State = iota
	Warn
	Reduce
	Halt     // daily halt or total emergency; clears at day rollover
	Terminal // total drawdown breach; never clears automatically
)

func (s State) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Warn:
		return "WARN"
	case Reduce:
		return "REDUCE"
	case Halt:
		return "HALT"
	case Terminal:
		return "TERMINAL"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Baseline drives the two drawdown measures. Equity is the close of the
// previous trading day and is replaced only by an explicit rollover, never
// by a live update mid-day. InitialBalance is fixed for the account's life.
type Baseline struct {
	Date           string  `json:"date"`
	Equity         float64 `json:"baseline_equity"`
	InitialBalance float64 `json:"initial_balance"`
}

// Assessment is the governor's verdict for one tick. The governor decides;
// the caller executes. It never touches positions itself.
type Assessment struct {
	State         State
	DailyDDPct    float64
	TotalDDPct    float64
	RiskPct       float64 // risk percent new entries should use
	BlockEntries  bool
	CancelPending bool
	CloseAll      bool
}

// Governor is the portfolio safety state machine. It is the sole writer of
// the halt state; all other components read snapshots and obey commands.
type Governor struct {
	mu    sync.Mutex
	cfg   config.Strategy
	clock market.Clock
	log   *logrus.Logger
	sink  EventSink

	baseline    Baseline
	state       State
	haltReason  string
	haltDate    string
	tradesToday int
	profitDays  map[string]bool
}

func NewGovernor(cfg config.Strategy, clock market.Clock, baseline Baseline, log *logrus.Logger, sink EventSink) *Governor {
	return &Governor{
		cfg:        cfg,
		clock:      clock,
		log:        log,
		sink:       sink,
		baseline:   baseline,
		state:      Normal,
		profitDays: make(map[string]bool),
	}
}

// Restore re-arms a persisted halt at startup. A halt that was decided
// before a restart must not silently clear just because the process came
// back with fresh in-memory state.
func (g *Governor) Restore(state State, reason, date string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = state
	g.haltReason = reason
	g.haltDate = date
	if state >= Halt {
		g.log.WithFields(logrus.Fields{
			"state":  state.String(),
			"reason": reason,
			"date":   date,
		}).Warn("governor: restored persisted halt")
	}
}

func dailyDD(baseline Baseline, equity float64) float64 {
	if baseline.Equity <= 0 {
		return 0
	}
	dd := (baseline.Equity - equity) / baseline.Equity * 100
	if dd < 0 {
		return 0
	}
	return dd
}

func totalDD(baseline Baseline, equity float64) float64 {
	if baseline.InitialBalance <= 0 {
		return 0
	}
	dd := (baseline.InitialBalance - equity) / baseline.InitialBalance * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// Evaluate compares equity against both drawdown measures and advances the
// state machine. openTickets is attached to any emitted drawdown event.
// Equity must already include floating PnL across all open positions.
func (g *Governor) Evaluate(now time.Time, equity float64, openTickets []string) Assessment {
	g.mu.Lock()
	defer g.mu.Unlock()

	daily := dailyDD(g.baseline, equity)
	total := totalDD(g.baseline, equity)

	next := Normal
	switch {
	case total >= g.cfg.TotalHaltPct:
		next = Terminal
	case total >= g.cfg.TotalEmergencyPct:
		next = Halt
	case daily >= g.cfg.DailyHaltPct:
		next = Halt
	case daily >= g.cfg.DailyReducePct:
		next = Reduce
	case daily >= g.cfg.DailyWarnPct:
		next = Warn
	}

	// Halts are sticky: a daily halt holds until rollover, terminal forever.
	if g.state == Terminal {
		next = Terminal
	} else if g.state == Halt && next < Halt {
		next = Halt
	}

	escalated := next > g.state
	if escalated {
		g.transitionLocked(now, next, daily, total, equity, openTickets)
	}
	g.state = next

	a := Assessment{
		State:      g.state,
		DailyDDPct: daily,
		TotalDDPct: total,
		RiskPct:    g.cfg.RiskPct,
	}
	switch g.state {
	case Reduce:
		a.RiskPct = g.cfg.ReducedRiskPct
		a.CancelPending = true
	case Halt, Terminal:
		a.RiskPct = 0
		a.BlockEntries = true
		a.CancelPending = true
		a.CloseAll = escalated // force-close once, on the transition
	}
	return a
}

func (g *Governor) transitionLocked(now time.Time, next State, daily, total, equity float64, openTickets []string) {
	var ev DrawdownEvent
	switch next {
	case Warn:
		ev = DrawdownEvent{Kind: EventWarn, Threshold: g.cfg.DailyWarnPct, Baseline: g.baseline.Equity}
	case Reduce:
		ev = DrawdownEvent{Kind: EventReduce, Threshold: g.cfg.DailyReducePct, Baseline: g.baseline.Equity}
	case Halt:
		if total >= g.cfg.TotalEmergencyPct {
			ev = DrawdownEvent{Kind: EventEmergency, Threshold: g.cfg.TotalEmergencyPct, Baseline: g.baseline.InitialBalance}
			g.haltReason = fmt.Sprintf("total drawdown %.2f%% >= emergency %.2f%%", total, g.cfg.TotalEmergencyPct)
		} else {
			ev = DrawdownEvent{Kind: EventDailyHalt, Threshold: g.cfg.DailyHaltPct, Baseline: g.baseline.Equity}
			g.haltReason = fmt.Sprintf("daily drawdown %.2f%% >= halt %.2f%%", daily, g.cfg.DailyHaltPct)
		}
		g.haltDate = g.clock.ServerDate(now)
	case Terminal:
		ev = DrawdownEvent{Kind: EventTerminal, Threshold: g.cfg.TotalHaltPct, Baseline: g.baseline.InitialBalance}
		g.haltReason = fmt.Sprintf("total drawdown %.2f%% >= limit %.2f%%", total, g.cfg.TotalHaltPct)
		g.haltDate = g.clock.ServerDate(now)
	default:
		return
	}
	ev.Time = now
	ev.Equity = equity
	ev.Positions = append([]string(nil), openTickets...)

	g.log.WithFields(logrus.Fields{
		"kind":      string(ev.Kind),
		"equity":    fmt.Sprintf("%.2f", equity),
		"daily_dd":  fmt.Sprintf("%.2f%%", daily),
		"total_dd":  fmt.Sprintf("%.2f%%", total),
		"threshold": fmt.Sprintf("%.2f%%", ev.Threshold),
		"baseline":  fmt.Sprintf("%.2f", ev.Baseline),
	}).Warn("governor: safety threshold crossed")

	if g.sink != nil {
		if err := g.sink.RecordDrawdown(ev); err != nil {
			g.log.WithError(err).Error("governor: failed to record drawdown event")
		}
	}
}

// Rollover starts a new trading day: the baseline becomes the closing
// equity of the day that just ended, the daily trade counter resets, and a
// daily halt clears. Terminal never clears here.
func (g *Governor) Rollover(now time.Time, closingEquity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.baseline
	if prev.Equity > 0 {
		gain := (closingEquity - prev.Equity) / prev.Equity * 100
		if gain >= g.cfg.ProfitableDayPct {
			g.profitDays[prev.Date] = true
		}
	}

	g.baseline = Baseline{
		Date:           g.clock.ServerDate(now),
		Equity:         closingEquity,
		InitialBalance: prev.InitialBalance,
	}
	g.tradesToday = 0

	if g.state == Halt {
		g.log.WithFields(logrus.Fields{
			"date":     g.baseline.Date,
			"baseline": fmt.Sprintf("%.2f", closingEquity),
		}).Info("governor: day rollover, daily halt cleared")
		g.state = Normal
		g.haltReason = ""
		g.haltDate = ""
	}
}

// CanOpen checks the per-day trade budget and halt state for a new entry.
func (g *Governor) CanOpen() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state >= Halt {
		return false, g.haltReason
	}
	if g.tradesToday >= g.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade limit reached (%d)", g.tradesToday)
	}
	return true, ""
}

// RecordTrade counts an opened trade against the daily budget.
func (g *Governor) RecordTrade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tradesToday++
}

func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Governor) Halted() bool {
	return g.State() >= Halt
}

func (g *Governor) HaltInfo() (State, string, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.haltReason, g.haltDate
}

func (g *Governor) Baseline() Baseline {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.baseline
}

// Status summarizes account progress for operators.
type Status struct {
	State          string
	DailyDDPct     float64
	TotalDDPct     float64
	ProfitPct      float64
	Phase          int
	TargetPct      float64
	ProfitableDays int
	TradesToday    int
}

// StatusAt reports progress toward the profit phases at the given equity.
func (g *Governor) StatusAt(equity float64) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	profit := 0.0
	if g.baseline.InitialBalance > 0 {
		profit = (equity - g.baseline.InitialBalance) / g.baseline.InitialBalance * 100
	}
	phase, target := 1, g.cfg.Phase1TargetPct
	if profit >= g.cfg.Phase1TargetPct {
		phase, target = 2, g.cfg.Phase2TargetPct
	}
	return Status{
		State:          g.state.String(),
		DailyDDPct:     dailyDD(g.baseline, equity),
		TotalDDPct:     totalDD(g.baseline, equity),
		ProfitPct:      profit,
		Phase:          phase,
		TargetPct:      target,
		ProfitableDays: len(g.profitDays),
		TradesToday:    g.tradesToday,
	}
}
