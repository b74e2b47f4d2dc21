// Package live runs the trading loop against a real broker: poll prices,
// advance the entry queue and position ladders, let the governor judge the
// book, and persist state after every cycle.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/entry"
	"github.com/pipguard/pipguard/internal/id"
	"github.com/pipguard/pipguard/journal"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/metrics"
	"github.com/pipguard/pipguard/position"
	"github.com/pipguard/pipguard/risk"
	"github.com/pipguard/pipguard/signal"
	"github.com/pipguard/pipguard/state"
	"github.com/pipguard/pipguard/weekend"
)

// Options wires the orchestrator. Instruments is the tradable universe; the
// poll loop fetches a tick for each every interval.
type Options struct {
	Cfg            config.Strategy
	Gateway        broker.Gateway
	Provider       signal.Provider
	Journal        journal.Journal
	Store          *state.Store
	Log            *logrus.Logger
	Instruments    []string
	PollInterval   time.Duration
	SafetyInterval time.Duration
	MetricsAddr    string
}

// Orchestrator owns the live loop. A background safety checker re-evaluates
// drawdown between polls so a fast move cannot hide inside one interval;
// both paths serialize through one mutex, so every decision sees a settled
// book.
type Orchestrator struct {
	opts  Options
	clock market.Clock
	ticks *market.TickStore

	acct  *position.Account
	mgr   *position.Manager
	gov   *risk.Governor
	queue *entry.Queue
	prot  *weekend.Protector

	mu          sync.Mutex
	riskPct     float64
	curDate     string
	scannedDate string

	// persistDown blocks new entries until a state save succeeds again; a
	// halt decided after the last good save would vanish on restart.
	persistDown bool
}

// metricsJournal forwards to the configured journal and keeps the
// prometheus counters in step with it.
type metricsJournal struct {
	journal.Journal
}

func (m metricsJournal) RecordTrade(t journal.TradeRecord) error {
	result := "loss"
	if t.RealizedPnL > 0 {
		result = "win"
	}
	metrics.RecordTrade(result)
	metrics.RecordExit(t.Reason, t.Side.String())
	return m.Journal.RecordTrade(t)
}

func (m metricsJournal) RecordPartial(p journal.PartialRecord) error {
	metrics.RecordPartial(p.Level)
	return m.Journal.RecordPartial(p)
}

// New restores persisted state, reconciles it against the broker, and
// assembles the loop. It does not start anything.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.SafetyInterval <= 0 {
		opts.SafetyInterval = 5 * time.Second
	}
	if len(opts.Instruments) == 0 {
		return nil, fmt.Errorf("live: no instruments configured")
	}

	snap, err := opts.Store.Load()
	if err != nil {
		return nil, err
	}
	snap, err = state.Reconcile(ctx, opts.Gateway, snap, opts.Log)
	if err != nil {
		return nil, err
	}

	clock := market.NewClock(opts.Cfg.ServerUTCOffset)
	acct := position.NewAccount(snap.Balance)

	baseline := snap.Baseline
	if baseline.InitialBalance == 0 {
		baseline = risk.Baseline{
			Date:           clock.ServerDate(time.Now()),
			Equity:         snap.Balance,
			InitialBalance: snap.Balance,
		}
	}

	o := &Orchestrator{
		opts:    opts,
		clock:   clock,
		ticks:   market.NewTickStore(),
		acct:    acct,
		riskPct: opts.Cfg.RiskPct,
		curDate: baseline.Date,
	}
	jr := metricsJournal{opts.Journal}
	o.mgr = position.NewManager(opts.Cfg, opts.Gateway, acct, jr, opts.Log)
	o.gov = risk.NewGovernor(opts.Cfg, clock, baseline, opts.Log, jr)
	o.queue = entry.NewQueue(opts.Cfg, opts.Gateway, o.mgr, o.gov, acct, opts.Log, id.New)
	o.prot = weekend.NewProtector(opts.Cfg, o.mgr, opts.Log)

	o.mgr.Restore(snap.Positions)
	o.queue.Restore(snap.Setups)
	o.prot.Restore(snap.Weekend)
	if snap.Halt.State >= risk.Halt {
		o.gov.Restore(snap.Halt.State, snap.Halt.Reason, snap.Halt.Date)
	}
	return o, nil
}

// Run blocks until the context is cancelled, then persists and returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.opts.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(o.opts.MetricsAddr); err != nil {
				o.opts.Log.WithError(err).Error("live: metrics endpoint failed")
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.safetyLoop(ctx)
	}()

	poll := time.NewTicker(o.opts.PollInterval)
	defer poll.Stop()

	o.opts.Log.WithFields(logrus.Fields{
		"instruments": len(o.opts.Instruments),
		"poll":        o.opts.PollInterval.String(),
		"balance":     o.acct.Balance(),
	}).Info("live: trading loop started")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			if err := o.persist(); err != nil {
				o.opts.Log.WithError(err).Error("live: final state save failed")
			}
			o.opts.Log.Info("live: trading loop stopped")
			return ctx.Err()
		case <-poll.C:
			o.cycle(ctx, time.Now())
		}
	}
}

// cycle is one full pass: refresh prices, advance setups and ladders, let
// the governor rule, handle day and weekend boundaries, persist.
func (o *Orchestrator) cycle(ctx context.Context, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.refreshTicks(ctx)
	priceOf := o.priceOf()

	if date := o.clock.ServerDate(now); date != o.curDate {
		equity := o.mgr.Equity(priceOf)
		o.recordEquity(now, equity)
		o.gov.Rollover(now, equity)
		o.curDate = date
	}

	if o.scannedDate != o.curDate && !o.clock.IsWeekend(now) && !o.persistDown {
		o.scan(ctx, now)
		o.scannedDate = o.curDate
	}

	for _, instrument := range o.opts.Instruments {
		tick, err := o.ticks.Get(instrument)
		if err != nil {
			continue
		}
		mid := tick.Mid()
		if !o.persistDown {
			if err := o.queue.Check(ctx, now, instrument, mid, mid, mid, tick.SpreadPips(), o.riskPct); err != nil {
				o.opts.Log.WithError(err).WithField("instrument", instrument).Error("live: entry check failed")
			}
		}
		if err := o.mgr.ManageBar(ctx, now, instrument, mid, mid); err != nil {
			metrics.RecordBrokerError("manage")
		}
	}

	o.assess(ctx, now, priceOf)

	if o.clock.IsFridayClose(now, o.opts.Cfg.FridayCloseHour) && !o.prot.Armed() {
		if err := o.prot.FridayFlatten(ctx, now, priceOf); err != nil {
			o.opts.Log.WithError(err).Error("live: friday flatten failed")
		}
	}
	if o.prot.Armed() && o.clock.IsMarketReopen(now) {
		if err := o.prot.SundayCheck(ctx, now, priceOf); err != nil {
			o.opts.Log.WithError(err).Error("live: sunday gap check failed")
		}
	}

	if err := o.persistLocked(); err != nil {
		if !o.persistDown {
			o.opts.Log.WithError(err).Error("live: state save failed, new entries blocked until a save succeeds")
		}
		o.persistDown = true
	} else if o.persistDown {
		o.persistDown = false
		o.opts.Log.Info("live: state save recovered, new entries unblocked")
	}
}

// safetyLoop re-runs only the drawdown assessment between polls. It takes
// the same mutex as the main cycle, so the two never interleave decisions.
func (o *Orchestrator) safetyLoop(ctx context.Context) {
	tick := time.NewTicker(o.opts.SafetyInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			o.mu.Lock()
			o.assess(ctx, time.Now(), o.priceOf())
			o.mu.Unlock()
		}
	}
}

// assess runs the governor over current equity and executes its commands.
func (o *Orchestrator) assess(ctx context.Context, now time.Time, priceOf position.PriceFunc) {
	equity := o.mgr.Equity(priceOf)
	a := o.gov.Evaluate(now, equity, o.mgr.Tickets())
	if a.RiskPct > 0 {
		o.riskPct = a.RiskPct
	}
	if a.CancelPending {
		if a.State >= risk.Halt {
			o.queue.CancelAll(ctx, "risk governor")
		} else {
			o.queue.CancelPending(ctx, "risk governor")
		}
	}
	if a.CloseAll {
		if err := o.mgr.CloseAll(ctx, now, priceOf, position.LevelForced); err != nil {
			o.opts.Log.WithError(err).Error("live: forced close failed")
			metrics.RecordBrokerError("close_all")
		}
	}

	metrics.SetEquity(equity)
	metrics.SetBalance(o.acct.Balance())
	metrics.SetDrawdown(a.DailyDDPct, a.TotalDDPct)
	metrics.SetGovernorState(int(a.State))
	metrics.SetOpenPositions(o.mgr.Count())
}

func (o *Orchestrator) scan(ctx context.Context, now time.Time) {
	for _, instrument := range o.opts.Instruments {
		sig, err := o.opts.Provider.Generate(ctx, instrument, now)
		if err != nil {
			o.opts.Log.WithError(err).WithField("instrument", instrument).Error("live: signal generation failed")
			continue
		}
		if sig == nil {
			continue
		}
		tick, err := o.ticks.Get(instrument)
		if err != nil {
			continue
		}
		setup, err := o.queue.Submit(ctx, now, *sig, tick.Mid(), o.riskPct)
		if err != nil {
			o.opts.Log.WithError(err).WithField("instrument", instrument).Debug("live: signal not queued")
			continue
		}
		metrics.RecordSetup(string(setup.Status))
	}
}

func (o *Orchestrator) refreshTicks(ctx context.Context) {
	for _, instrument := range o.opts.Instruments {
		tick, err := o.opts.Gateway.GetTick(ctx, instrument)
		if err != nil {
			metrics.RecordBrokerError("get_tick")
			continue
		}
		o.ticks.Set(tick)
	}
}

func (o *Orchestrator) priceOf() position.PriceFunc {
	return func(instrument string) (float64, bool) {
		tick, err := o.ticks.Get(instrument)
		if err != nil {
			return 0, false
		}
		return tick.Mid(), true
	}
}

func (o *Orchestrator) recordEquity(now time.Time, equity float64) {
	st := o.gov.StatusAt(equity)
	if err := o.opts.Journal.RecordEquity(journal.EquitySnapshot{
		Time:       now,
		Balance:    o.acct.Balance(),
		Equity:     equity,
		DailyDDPct: st.DailyDDPct,
		TotalDDPct: st.TotalDDPct,
	}); err != nil {
		o.opts.Log.WithError(err).Error("live: equity snapshot failed")
	}
}

func (o *Orchestrator) persist() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistLocked()
}

func (o *Orchestrator) persistLocked() error {
	st, reason, date := o.gov.HaltInfo()
	return o.opts.Store.Save(state.Snapshot{
		Balance:   o.acct.Balance(),
		Baseline:  o.gov.Baseline(),
		Halt:      state.HaltState{State: st, Reason: reason, Date: date},
		Positions: o.mgr.Export(),
		Setups:    o.queue.Export(),
		Weekend:   o.prot.Export(),
	})
}
