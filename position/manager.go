package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/journal"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/signal"
)

const (
	closeAttempts = 3
	closeBackoff  = 250 * time.Millisecond
)

// PriceFunc resolves the last known price for an instrument. The second
// return is false when no price is available.
type PriceFunc func(instrument string) (float64, bool)

// Manager drives every open position through its exit ladder. It is the
// single writer of position state and of the local balance; broker calls are
// side effects of decisions already made locally.
type Manager struct {
	mu   sync.Mutex
	cfg  config.Strategy
	gw   broker.Gateway
	acct *Account
	jr   journal.Journal
	log  *logrus.Logger

	open []*Position // fill-time order
}

func NewManager(cfg config.Strategy, gw broker.Gateway, acct *Account, jr journal.Journal, log *logrus.Logger) *Manager {
	return &Manager{
		cfg:  cfg,
		gw:   gw,
		acct: acct,
		jr:   jr,
		log:  log,
	}
}

// Open registers a filled entry. The entry queue has already placed the
// order; level geometry uses the actual fill price against the planned stop.
func (m *Manager) Open(id string, sig signal.Signal, spec market.Spec, fill broker.Fill, riskUSD float64) *Position {
	riskDist := fill.Price - sig.Stop
	if riskDist < 0 {
		riskDist = -riskDist
	}
	p := &Position{
		ID:          id,
		Ticket:      fill.Ticket,
		Instrument:  sig.Instrument,
		Side:        sig.Side,
		Spec:        spec,
		Entry:       fill.Price,
		Stop:        sig.Stop,
		InitialStop: sig.Stop,
		RiskDist:    riskDist,
		RiskUSD:     riskUSD,
		InitialLots: fill.Lots,
		Lots:        fill.Lots,
		Confluence:  sig.Confluence,
		OpenTime:    fill.Time,
	}

	m.mu.Lock()
	m.open = append(m.open, p)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"id":         p.ID,
		"ticket":     p.Ticket,
		"instrument": p.Instrument,
		"side":       p.Side.String(),
		"lots":       p.Lots,
		"entry":      p.Entry,
		"stop":       p.Stop,
		"risk_usd":   fmt.Sprintf("%.2f", p.RiskUSD),
	}).Info("position: opened")
	return p
}

// ManageBar evaluates every open position on the instrument against one
// completed bar. A live tick is handled as a degenerate bar with
// high == low. Evaluation order inside the bar: stop first, then the take
// profit ladder, then the progressive trail. The stop check uses the stop as
// it stood at bar start; a stop relocated mid-bar is not re-checked until
// the next bar.
func (m *Manager) ManageBar(ctx context.Context, now time.Time, instrument string, high, low float64) error {
	m.mu.Lock()
	var targets []*Position
	for _, p := range m.open {
		if p.Instrument == instrument {
			targets = append(targets, p)
		}
	}
	m.mu.Unlock()

	var lastErr error
	for _, p := range targets {
		if err := m.manage(ctx, p, now, high, low); err != nil {
			m.log.WithError(err).WithField("ticket", p.Ticket).Error("position: manage failed")
			lastErr = err
		}
	}
	return lastErr
}

func (m *Manager) manage(ctx context.Context, p *Position, now time.Time, high, low float64) error {
	if p.StopHit(high, low) {
		return m.closeRemainder(ctx, p, now, p.Stop, LevelStop)
	}

	if !p.TP1Done && p.Reached(p.TPPrice(m.cfg.TP1R), high, low) {
		if err := m.takePartial(ctx, p, now, LevelTP1, m.cfg.TP1R, m.cfg.TP1ClosePct); err != nil {
			return err
		}
		p.TP1Done = true
		m.moveStop(ctx, p, p.Entry) // breakeven
	}
	if p.TP1Done && !p.TP2Done && p.Reached(p.TPPrice(m.cfg.TP2R), high, low) {
		if err := m.takePartial(ctx, p, now, LevelTP2, m.cfg.TP2R, m.cfg.TP2ClosePct); err != nil {
			return err
		}
		p.TP2Done = true
		m.moveStop(ctx, p, p.TPPrice(m.cfg.TP1R+m.cfg.TP2TrailExtraR))
	}
	if p.TP2Done && p.Reached(p.TPPrice(m.cfg.TP3R), high, low) {
		return m.closeRemainder(ctx, p, now, p.TPPrice(m.cfg.TP3R), LevelTP3)
	}

	if m.cfg.ProgressiveTrail && p.TP1Done && !p.TP2Done && !p.Trailed {
		if p.RAt(p.FavorableExtreme(high, low)) >= m.cfg.ProgressiveTriggerR {
			p.Trailed = true
			m.moveStop(ctx, p, p.TPPrice(m.cfg.TP1R))
		}
	}
	return nil
}

// takePartial banks one ladder level: the broker close is a side effect, the
// credit is the theoretical amount at the level price. A failed close leaves
// the level unmarked so the next bar retries it.
func (m *Manager) takePartial(ctx context.Context, p *Position, now time.Time, level string, tpR, closePct float64) error {
	lots := p.Spec.RoundLots(p.InitialLots * closePct)
	if lots > p.Lots {
		lots = p.Lots
	}
	if lots > 0 {
		if _, err := m.closeWithRetry(ctx, p.Ticket, lots); err != nil {
			return fmt.Errorf("partial close %s %s: %w", level, p.Ticket, err)
		}
	}

	banked := tpR * p.RiskUSD * closePct
	p.Lots -= lots
	p.ClosedFraction += closePct
	p.BankedPnL += banked
	m.acct.Credit(banked)

	price := p.TPPrice(tpR)
	m.log.WithFields(logrus.Fields{
		"ticket":     p.Ticket,
		"instrument": p.Instrument,
		"level":      level,
		"price":      price,
		"fraction":   closePct,
		"banked":     fmt.Sprintf("%.2f", banked),
	}).Info("position: partial exit")

	if err := m.jr.RecordPartial(journal.PartialRecord{
		PositionID: p.ID,
		Instrument: p.Instrument,
		Level:      level,
		Time:       now,
		Price:      price,
		Fraction:   closePct,
		BankedPnL:  banked,
	}); err != nil {
		m.log.WithError(err).Error("position: journal partial failed")
	}
	return nil
}

// closeRemainder settles the rest of the position at the given price,
// charges commission once, and writes the terminal trade record.
func (m *Manager) closeRemainder(ctx context.Context, p *Position, now time.Time, price float64, reason string) error {
	if p.Lots > 0 {
		if _, err := m.closeWithRetry(ctx, p.Ticket, 0); err != nil {
			return fmt.Errorf("close %s %s: %w", reason, p.Ticket, err)
		}
	}

	frac := p.RemainingFraction()
	banked := p.RAt(price) * p.RiskUSD * frac
	commission := p.Spec.CommissionPerLot * p.InitialLots
	p.Lots = 0
	p.ClosedFraction = 1.0
	p.BankedPnL += banked
	m.acct.Credit(banked - commission)

	realized := p.BankedPnL - commission
	realizedR := 0.0
	if p.RiskUSD > 0 {
		realizedR = realized / p.RiskUSD
	}

	m.remove(p)

	m.log.WithFields(logrus.Fields{
		"ticket":     p.Ticket,
		"instrument": p.Instrument,
		"reason":     reason,
		"exit":       price,
		"realized":   fmt.Sprintf("%.2f", realized),
		"realized_r": fmt.Sprintf("%.2f", realizedR),
	}).Info("position: closed")

	if err := m.jr.RecordTrade(journal.TradeRecord{
		ID:          p.ID,
		Ticket:      p.Ticket,
		Instrument:  p.Instrument,
		Side:        p.Side,
		Lots:        p.InitialLots,
		EntryPrice:  p.Entry,
		ExitPrice:   price,
		OpenTime:    p.OpenTime,
		CloseTime:   now,
		RealizedPnL: realized,
		RealizedR:   realizedR,
		Commission:  commission,
		Reason:      reason,
	}); err != nil {
		m.log.WithError(err).Error("position: journal trade failed")
	}
	return nil
}

func (m *Manager) moveStop(ctx context.Context, p *Position, newStop float64) {
	p.Stop = newStop
	if err := m.gw.ModifyStop(ctx, p.Ticket, newStop); err != nil {
		// Local state is authoritative; the broker-side stop is a backstop.
		m.log.WithError(err).WithFields(logrus.Fields{
			"ticket": p.Ticket,
			"stop":   newStop,
		}).Warn("position: broker stop update failed")
	}
}

func (m *Manager) closeWithRetry(ctx context.Context, ticket string, volume float64) (float64, error) {
	backoff := closeBackoff
	var lastErr error
	for attempt := 1; attempt <= closeAttempts; attempt++ {
		price, err := m.gw.ClosePosition(ctx, ticket, volume)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if !broker.IsTransient(err) {
			break
		}
		m.log.WithError(err).WithFields(logrus.Fields{
			"ticket":  ticket,
			"attempt": attempt,
		}).Warn("position: close failed, retrying")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return 0, lastErr
}

// Close fully closes one position at the given price, for reasons outside
// the exit ladder (weekend flatten, gap breach, forced close).
func (m *Manager) Close(ctx context.Context, now time.Time, ticket string, price float64, reason string) error {
	p := m.Get(ticket)
	if p == nil {
		return fmt.Errorf("close %s: %w", ticket, broker.ErrNotFound)
	}
	return m.closeRemainder(ctx, p, now, price, reason)
}

// Reduce halves the position at the given price and banks the actual profit
// or loss on the closed half. Used by the weekend protector.
func (m *Manager) Reduce(ctx context.Context, now time.Time, ticket string, price float64) error {
	p := m.Get(ticket)
	if p == nil {
		return fmt.Errorf("reduce %s: %w", ticket, broker.ErrNotFound)
	}

	lots := p.Spec.RoundLots(p.Lots / 2)
	if lots <= 0 {
		return nil
	}
	if _, err := m.closeWithRetry(ctx, p.Ticket, lots); err != nil {
		return fmt.Errorf("reduce %s: %w", p.Ticket, err)
	}

	frac := p.RemainingFraction() / 2
	banked := p.RAt(price) * p.RiskUSD * frac
	p.Lots -= lots
	p.ClosedFraction += frac
	p.BankedPnL += banked
	m.acct.Credit(banked)

	m.log.WithFields(logrus.Fields{
		"ticket":     p.Ticket,
		"instrument": p.Instrument,
		"lots":       lots,
		"banked":     fmt.Sprintf("%.2f", banked),
	}).Info("position: reduced")

	if err := m.jr.RecordPartial(journal.PartialRecord{
		PositionID: p.ID,
		Instrument: p.Instrument,
		Level:      LevelReduce,
		Time:       now,
		Price:      price,
		Fraction:   frac,
		BankedPnL:  banked,
	}); err != nil {
		m.log.WithError(err).Error("position: journal partial failed")
	}
	return nil
}

// CloseAll flattens every open position, deepest loser first, so the worst
// exposure leaves the book before anything else can go wrong. Positions with
// no known price are closed at their stop, the conservative bound.
func (m *Manager) CloseAll(ctx context.Context, now time.Time, priceOf PriceFunc, reason string) error {
	open := m.OpenPositions()
	sort.SliceStable(open, func(i, j int) bool {
		pi, oki := priceOf(open[i].Instrument)
		pj, okj := priceOf(open[j].Instrument)
		ri, rj := open[i].RAt(open[i].Stop), open[j].RAt(open[j].Stop)
		if oki {
			ri = open[i].RAt(pi)
		}
		if okj {
			rj = open[j].RAt(pj)
		}
		return ri < rj
	})

	var lastErr error
	for _, p := range open {
		price, ok := priceOf(p.Instrument)
		if !ok {
			price = p.Stop
		}
		if err := m.closeRemainder(ctx, p, now, price, reason); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (m *Manager) remove(p *Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.open {
		if q == p {
			m.open = append(m.open[:i], m.open[i+1:]...)
			return
		}
	}
}

// Get returns the open position for the ticket, or nil.
func (m *Manager) Get(ticket string) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.open {
		if p.Ticket == ticket {
			return p
		}
	}
	return nil
}

// OpenPositions returns the open set in fill order. The slice is a copy;
// the positions are the live objects, mutated only by the manager.
func (m *Manager) OpenPositions() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Position(nil), m.open...)
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Manager) HasOpen(instrument string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.open {
		if p.Instrument == instrument {
			return true
		}
	}
	return false
}

func (m *Manager) Tickets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p.Ticket)
	}
	return out
}

// OpenRiskUSD sums the remaining at-risk amount across open positions,
// counting only positions whose stop is still on the losing side of entry.
func (m *Manager) OpenRiskUSD() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, p := range m.open {
		stopR := p.RAt(p.Stop)
		if stopR < 0 {
			sum += -stopR * p.RiskUSD * p.RemainingFraction()
		}
	}
	return sum
}

// FloatingPnL values every open position at the last known price. Positions
// with no price contribute zero.
func (m *Manager) FloatingPnL(priceOf PriceFunc) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, p := range m.open {
		if price, ok := priceOf(p.Instrument); ok {
			sum += p.FloatingPnL(price)
		}
	}
	return sum
}

// Equity is balance plus floating PnL.
func (m *Manager) Equity(priceOf PriceFunc) float64 {
	return m.acct.Balance() + m.FloatingPnL(priceOf)
}

// Export snapshots position state for persistence.
func (m *Manager) Export() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// Restore loads persisted positions, reattaching contract specs by name.
// Positions for unknown instruments are dropped with a warning.
func (m *Manager) Restore(saved []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range saved {
		spec, ok := market.Lookup(s.Instrument)
		if !ok {
			m.log.WithField("instrument", s.Instrument).Warn("position: dropping saved position for unknown instrument")
			continue
		}
		p := s
		p.Spec = spec
		m.open = append(m.open, &p)
	}
}
