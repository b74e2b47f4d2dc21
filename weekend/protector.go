// Package weekend trims the book before the Friday close and audits the
// Sunday reopen for gaps. Markets that trade through the weekend are left
// alone; everything else competes for a small number of hold slots.
package weekend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/position"
)

// Close reasons written to the trade journal.
const (
	ReasonLoser        = "WEEKEND_LOSER"
	ReasonTakeProfit   = "WEEKEND_TP"
	ReasonCapacity     = "WEEKEND_CAP"
	ReasonGapStop      = "GAP_STOP"
	ReasonCatastrophic = "GAP_CLOSE"
)

// State is the persisted carry-over between Friday close and Sunday reopen.
type State struct {
	Armed        bool               `json:"armed"`
	FridayPrices map[string]float64 `json:"friday_prices"` // ticket -> last Friday price
}

// Protector decides which positions survive the weekend and verifies them
// against the reopen price.
type Protector struct {
	cfg config.Strategy
	mgr *position.Manager
	log *logrus.Logger

	mu     sync.Mutex
	armed  bool
	friday map[string]float64
}

func NewProtector(cfg config.Strategy, mgr *position.Manager, log *logrus.Logger) *Protector {
	return &Protector{
		cfg:    cfg,
		mgr:    mgr,
		log:    log,
		friday: make(map[string]float64),
	}
}

// FridayFlatten runs once at the Friday cutoff. Losers leave, big winners
// bank, fresh winners are halved, and whatever remains competes for hold
// slots: at most WeekendMaxPerGroup per correlation group and
// WeekendMaxNonCont in total. Weekend-trading instruments hold outside the
// caps.
func (w *Protector) FridayFlatten(ctx context.Context, now time.Time, priceOf position.PriceFunc) error {
	type candidate struct {
		p *position.Position
		r float64
	}
	var candidates []candidate
	var lastErr error

	for _, p := range w.mgr.OpenPositions() {
		if p.Spec.Continuous {
			continue
		}
		price, ok := priceOf(p.Instrument)
		if !ok {
			price = p.Stop
		}
		r := p.RAt(price)

		switch {
		case r < 0:
			if err := w.mgr.Close(ctx, now, p.Ticket, price, ReasonLoser); err != nil {
				lastErr = err
			}
		case r >= w.cfg.WeekendTakeProfitR:
			if err := w.mgr.Close(ctx, now, p.Ticket, price, ReasonTakeProfit); err != nil {
				lastErr = err
			}
		case r < w.cfg.WeekendFreshR:
			if err := w.mgr.Reduce(ctx, now, p.Ticket, price); err != nil {
				lastErr = err
			}
			candidates = append(candidates, candidate{p, r})
		default:
			candidates = append(candidates, candidate{p, r})
		}
	}

	// Best R holds first; ties keep fill order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].r > candidates[j].r
	})

	w.mu.Lock()
	w.friday = make(map[string]float64)
	w.armed = true
	w.mu.Unlock()

	held := 0
	perGroup := make(map[string]int)
	for _, c := range candidates {
		group := market.CorrelationGroup(c.p.Instrument)
		if held >= w.cfg.WeekendMaxNonCont || perGroup[group] >= w.cfg.WeekendMaxPerGroup {
			price, ok := priceOf(c.p.Instrument)
			if !ok {
				price = c.p.Stop
			}
			if err := w.mgr.Close(ctx, now, c.p.Ticket, price, ReasonCapacity); err != nil {
				lastErr = err
			}
			continue
		}
		held++
		perGroup[group]++
		if price, ok := priceOf(c.p.Instrument); ok {
			w.mu.Lock()
			w.friday[c.p.Ticket] = price
			w.mu.Unlock()
		}
		w.log.WithFields(logrus.Fields{
			"ticket":     c.p.Ticket,
			"instrument": c.p.Instrument,
			"group":      group,
			"r":          c.r,
		}).Info("weekend: holding through weekend")
	}

	w.log.WithFields(logrus.Fields{
		"held":   held,
		"groups": len(perGroup),
	}).Info("weekend: friday flatten complete")
	return lastErr
}

// SundayCheck compares the reopen price of each held position against its
// Friday close. A gap past the stop closes at the reopen price, not at the
// stop; a catastrophic gap closes regardless of direction.
func (w *Protector) SundayCheck(ctx context.Context, now time.Time, priceOf position.PriceFunc) error {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return nil
	}
	friday := w.friday
	w.armed = false
	w.friday = make(map[string]float64)
	w.mu.Unlock()

	var lastErr error
	for _, p := range w.mgr.OpenPositions() {
		ref, tracked := friday[p.Ticket]
		if !tracked || ref <= 0 {
			continue
		}
		reopen, ok := priceOf(p.Instrument)
		if !ok {
			continue
		}

		gapPct := (reopen - ref) / ref * 100
		if gapPct < 0 {
			gapPct = -gapPct
		}

		stopJumped := (p.Side == market.Long && reopen <= p.Stop) ||
			(p.Side == market.Short && reopen >= p.Stop)

		switch {
		case stopJumped:
			w.log.WithFields(logrus.Fields{
				"ticket": p.Ticket,
				"reopen": reopen,
				"stop":   p.Stop,
			}).Warn("weekend: gap jumped the stop")
			if err := w.mgr.Close(ctx, now, p.Ticket, reopen, ReasonGapStop); err != nil {
				lastErr = err
			}
		case gapPct >= w.cfg.GapCatastrophicPct:
			w.log.WithFields(logrus.Fields{
				"ticket":  p.Ticket,
				"gap_pct": gapPct,
			}).Warn("weekend: catastrophic gap, closing")
			if err := w.mgr.Close(ctx, now, p.Ticket, reopen, ReasonCatastrophic); err != nil {
				lastErr = err
			}
		case gapPct >= w.cfg.GapWarnPct:
			w.log.WithFields(logrus.Fields{
				"ticket":  p.Ticket,
				"gap_pct": gapPct,
			}).Warn("weekend: gap inside tolerance")
		}
	}
	return lastErr
}

// Armed reports whether a Friday flatten has run and not yet been checked.
func (w *Protector) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Export snapshots the carry-over for persistence.
func (w *Protector) Export() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	prices := make(map[string]float64, len(w.friday))
	for k, v := range w.friday {
		prices[k] = v
	}
	return State{Armed: w.armed, FridayPrices: prices}
}

// Restore loads a persisted carry-over after a restart over the weekend.
func (w *Protector) Restore(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = s.Armed
	w.friday = make(map[string]float64, len(s.FridayPrices))
	for k, v := range s.FridayPrices {
		w.friday[k] = v
	}
}
