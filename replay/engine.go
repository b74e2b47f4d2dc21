package replay

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/entry"
	"github.com/pipguard/pipguard/internal/id"
	"github.com/pipguard/pipguard/journal"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/position"
	"github.com/pipguard/pipguard/risk"
	"github.com/pipguard/pipguard/signal"
	"github.com/pipguard/pipguard/weekend"
)

// event is one bar on the merged timeline.
type event struct {
	time       time.Time
	instrument string
	bar        market.Candle
}

// Summary is the result of one replay run.
type Summary struct {
	InitialBalance float64
	FinalBalance   float64
	FinalEquity    float64
	ReturnPct      float64
	Trades         int
	Partials       int
	Days           int
	ProfitableDays int
	GovernorState  string
}

// Engine replays bars through the same entry queue, position manager, and
// governor the live loop uses. Everything runs on one goroutine; ordering
// is bar time, then lexical instrument within a timestamp.
type Engine struct {
	cfg      config.Strategy
	bars     map[string][]market.Candle
	provider signal.Provider
	initial  float64
	jr       journal.Journal
	log      *logrus.Logger
}

func NewEngine(cfg config.Strategy, bars map[string][]market.Candle, provider signal.Provider, initialBalance float64, jr journal.Journal, log *logrus.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		bars:     bars,
		provider: provider,
		initial:  initialBalance,
		jr:       jr,
		log:      log,
	}
}

// countingJournal forwards to the real journal and keeps run totals.
type countingJournal struct {
	journal.Journal
	trades, partials int
}

func (c *countingJournal) RecordTrade(t journal.TradeRecord) error {
	c.trades++
	return c.Journal.RecordTrade(t)
}

func (c *countingJournal) RecordPartial(p journal.PartialRecord) error {
	c.partials++
	return c.Journal.RecordPartial(p)
}

func (e *Engine) Run(ctx context.Context) (Summary, error) {
	events := e.timeline()
	if len(events) == 0 {
		return Summary{InitialBalance: e.initial, FinalBalance: e.initial}, nil
	}

	instruments := make([]string, 0, len(e.bars))
	for instrument := range e.bars {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	clock := market.NewClock(e.cfg.ServerUTCOffset)
	acct := position.NewAccount(e.initial)
	gw := newSimGateway(acct.Balance)
	cj := &countingJournal{Journal: e.jr}
	mgr := position.NewManager(e.cfg, gw, acct, cj, e.log)
	gov := risk.NewGovernor(e.cfg, clock, risk.Baseline{
		Date:           clock.ServerDate(events[0].time),
		Equity:         e.initial,
		InitialBalance: e.initial,
	}, e.log, cj)
	seq := id.NewSequence("S")
	queue := entry.NewQueue(e.cfg, gw, mgr, gov, acct, e.log, seq.Next)
	prot := weekend.NewProtector(e.cfg, mgr, e.log)

	priceOf := position.PriceFunc(gw.price)
	curDate := clock.ServerDate(events[0].time)
	days := 1
	scanned := false
	riskPct := e.cfg.RiskPct

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		if date := clock.ServerDate(ev.time); date != curDate {
			equity := mgr.Equity(priceOf)
			st := gov.StatusAt(equity)
			if err := cj.RecordEquity(journal.EquitySnapshot{
				Time:       ev.time,
				Balance:    acct.Balance(),
				Equity:     equity,
				DailyDDPct: st.DailyDDPct,
				TotalDDPct: st.TotalDDPct,
			}); err != nil {
				e.log.WithError(err).Error("replay: equity snapshot failed")
			}
			gov.Rollover(ev.time, equity)
			curDate = date
			days++
			scanned = false
		}

		// Weekend bars only exist for markets that trade through the
		// weekend; for anything else they are data live would never see.
		if clock.IsWeekend(ev.time) && !market.IsContinuous(ev.instrument) {
			continue
		}

		if !scanned && !clock.IsWeekend(ev.time) {
			e.scan(ctx, queue, instruments, ev.time, gw, riskPct)
			scanned = true
		}

		gw.advance(ev.time, ev.instrument, ev.bar.Close)

		if err := queue.Check(ctx, ev.time, ev.instrument, ev.bar.High, ev.bar.Low, ev.bar.Close, 0, riskPct); err != nil {
			e.log.WithError(err).WithField("instrument", ev.instrument).Error("replay: entry check failed")
		}
		if err := mgr.ManageBar(ctx, ev.time, ev.instrument, ev.bar.High, ev.bar.Low); err != nil {
			e.log.WithError(err).WithField("instrument", ev.instrument).Error("replay: manage failed")
		}

		assess := gov.Evaluate(ev.time, mgr.Equity(priceOf), mgr.Tickets())
		if assess.RiskPct > 0 {
			riskPct = assess.RiskPct
		}
		if assess.CancelPending {
			if assess.State >= risk.Halt {
				queue.CancelAll(ctx, "risk governor")
			} else {
				queue.CancelPending(ctx, "risk governor")
			}
		}
		if assess.CloseAll {
			if err := mgr.CloseAll(ctx, ev.time, priceOf, position.LevelForced); err != nil {
				e.log.WithError(err).Error("replay: forced close failed")
			}
		}

		if clock.IsFridayClose(ev.time, e.cfg.FridayCloseHour) && !prot.Armed() {
			if err := prot.FridayFlatten(ctx, ev.time, priceOf); err != nil {
				e.log.WithError(err).Error("replay: friday flatten failed")
			}
		}
		if prot.Armed() && clock.IsMarketReopen(ev.time) {
			if err := prot.SundayCheck(ctx, ev.time, priceOf); err != nil {
				e.log.WithError(err).Error("replay: sunday gap check failed")
			}
		}
	}

	last := events[len(events)-1].time
	finalEquity := mgr.Equity(priceOf)
	st := gov.StatusAt(finalEquity)
	if err := cj.RecordEquity(journal.EquitySnapshot{
		Time:       last,
		Balance:    acct.Balance(),
		Equity:     finalEquity,
		DailyDDPct: st.DailyDDPct,
		TotalDDPct: st.TotalDDPct,
	}); err != nil {
		e.log.WithError(err).Error("replay: final equity snapshot failed")
	}

	return Summary{
		InitialBalance: e.initial,
		FinalBalance:   acct.Balance(),
		FinalEquity:    finalEquity,
		ReturnPct:      (finalEquity - e.initial) / e.initial * 100,
		Trades:         cj.trades,
		Partials:       cj.partials,
		Days:           days,
		ProfitableDays: st.ProfitableDays,
		GovernorState:  gov.State().String(),
	}, nil
}

// scan asks the provider for a signal per instrument, lexical order, once
// per trading day.
func (e *Engine) scan(ctx context.Context, queue *entry.Queue, instruments []string, now time.Time, gw *simGateway, riskPct float64) {
	for _, instrument := range instruments {
		sig, err := e.provider.Generate(ctx, instrument, now)
		if err != nil {
			e.log.WithError(err).WithField("instrument", instrument).Error("replay: signal generation failed")
			continue
		}
		if sig == nil {
			continue
		}
		price, ok := gw.price(instrument)
		if !ok {
			continue // no bar seen yet; the signal re-emerges next scan if still valid
		}
		if _, err := queue.Submit(ctx, now, *sig, price, riskPct); err != nil {
			e.log.WithError(err).WithField("instrument", instrument).Debug("replay: signal not queued")
		}
	}
}

// timeline merges every instrument's bars into one ordered stream.
func (e *Engine) timeline() []event {
	var events []event
	for instrument, bars := range e.bars {
		for _, b := range bars {
			events = append(events, event{time: b.Time, instrument: instrument, bar: b})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].time.Equal(events[j].time) {
			return events[i].time.Before(events[j].time)
		}
		return events[i].instrument < events[j].instrument
	})
	return events
}
