// Package entry queues validated signals until price comes to them. A setup
// waits near its planned entry, gets a resting limit order when price is
// close, and is sized at the moment of fill with the balance of that moment,
// never the balance at signal time.
package entry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/position"
	"github.com/pipguard/pipguard/risk"
	"github.com/pipguard/pipguard/signal"
)

// Status is the lifecycle state of a queued setup.
type Status string

const (
	StatusAwaiting  Status = "AWAITING_ENTRY"
	StatusPending   Status = "PENDING_ORDER"
	StatusFilled    Status = "FILLED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusSkipped   Status = "SKIPPED"
)

// Setup is one queued signal. Terminal setups (filled, expired, cancelled,
// skipped) leave the active queue immediately.
type Setup struct {
	ID       string        `json:"id"`
	Signal   signal.Signal `json:"signal"`
	Status   Status        `json:"status"`
	OrderID  string        `json:"order_id,omitempty"`
	QueuedAt time.Time     `json:"queued_at"`
	Note     string        `json:"note,omitempty"`
}

// Gatekeeper is the subset of the governor the queue consults before a fill.
type Gatekeeper interface {
	CanOpen() (bool, string)
	Halted() bool
	RecordTrade()
}

// Queue holds at most one active setup per instrument.
type Queue struct {
	mu    sync.Mutex
	cfg   config.Strategy
	gw    broker.Gateway
	mgr   *position.Manager
	gov   Gatekeeper
	acct  *position.Account
	log   *logrus.Logger
	newID func() string

	active map[string]*Setup // by instrument
}

func NewQueue(cfg config.Strategy, gw broker.Gateway, mgr *position.Manager, gov Gatekeeper, acct *position.Account, log *logrus.Logger, newID func() string) *Queue {
	return &Queue{
		cfg:    cfg,
		gw:     gw,
		mgr:    mgr,
		gov:    gov,
		acct:   acct,
		log:    log,
		newID:  newID,
		active: make(map[string]*Setup),
	}
}

// distanceR is how far price sits from the planned entry, in R.
func distanceR(sig signal.Signal, price float64) float64 {
	d := price - sig.Entry
	if d < 0 {
		d = -d
	}
	return d / sig.Risk()
}

// Submit takes a fresh signal at the current price. Signals too far from
// price are skipped at intake; signals already at their entry fill
// immediately; the rest wait in the queue.
func (q *Queue) Submit(ctx context.Context, now time.Time, sig signal.Signal, price, riskPct float64) (*Setup, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	spec, ok := market.Lookup(sig.Instrument)
	if !ok {
		return nil, fmt.Errorf("entry: unknown instrument %q", sig.Instrument)
	}

	q.mu.Lock()
	if _, dup := q.active[sig.Instrument]; dup {
		q.mu.Unlock()
		return nil, fmt.Errorf("entry: %s already queued", sig.Instrument)
	}
	q.mu.Unlock()

	if q.mgr.HasOpen(sig.Instrument) {
		return nil, fmt.Errorf("entry: %s already has an open position", sig.Instrument)
	}

	s := &Setup{
		ID:       q.newID(),
		Signal:   sig,
		Status:   StatusAwaiting,
		QueuedAt: now,
	}

	dist := distanceR(sig, price)
	if dist > q.cfg.MaxDistanceR {
		s.Status = StatusSkipped
		s.Note = fmt.Sprintf("entry %.1fR away, beyond %.1fR", dist, q.cfg.MaxDistanceR)
		q.log.WithFields(logrus.Fields{
			"instrument": sig.Instrument,
			"distance_r": fmt.Sprintf("%.2f", dist),
		}).Info("entry: signal skipped at intake")
		return s, nil
	}

	q.mu.Lock()
	q.active[sig.Instrument] = s
	q.mu.Unlock()

	q.log.WithFields(logrus.Fields{
		"id":         s.ID,
		"instrument": sig.Instrument,
		"side":       sig.Side.String(),
		"entry":      sig.Entry,
		"stop":       sig.Stop,
		"distance_r": fmt.Sprintf("%.2f", dist),
	}).Info("entry: setup queued")

	if dist <= q.cfg.ImmediateR {
		return s, q.tryFill(ctx, now, s, spec, riskPct, 0)
	}
	if dist <= q.cfg.ProximityR {
		q.promote(ctx, s, spec)
	}
	return s, nil
}

// Check advances the setup on the instrument against one completed bar. A
// live tick is a bar with high == low == close. Order of checks: expiry,
// stop breach, entry touch, proximity promotion. A bar touching both stop
// and entry cancels; there is no way to know which traded first, and
// cancelling is the losing-side assumption.
func (q *Queue) Check(ctx context.Context, now time.Time, instrument string, high, low, close, spreadPips, riskPct float64) error {
	q.mu.Lock()
	s := q.active[instrument]
	q.mu.Unlock()
	if s == nil {
		return nil
	}
	sig := s.Signal
	spec, ok := market.Lookup(instrument)
	if !ok {
		return nil
	}

	if now.Sub(s.QueuedAt) > time.Duration(q.cfg.MaxWaitHours*float64(time.Hour)) {
		q.retire(ctx, s, StatusExpired, "max wait exceeded")
		return nil
	}

	stopTouched := sig.Stop >= low && sig.Stop <= high
	if sig.Side == market.Long && low <= sig.Stop {
		stopTouched = true
	}
	if sig.Side == market.Short && high >= sig.Stop {
		stopTouched = true
	}
	if stopTouched {
		q.retire(ctx, s, StatusCancelled, "stop level traded before entry")
		return nil
	}

	if sig.Entry >= low && sig.Entry <= high {
		if spreadPips > 0 && q.cfg.MaxSpreadPips > 0 && spreadPips > q.cfg.MaxSpreadPips {
			q.log.WithFields(logrus.Fields{
				"instrument": instrument,
				"spread":     spreadPips,
			}).Warn("entry: fill deferred, spread too wide")
			return nil
		}
		return q.tryFill(ctx, now, s, spec, riskPct, spreadPips)
	}

	if s.Status == StatusAwaiting && distanceR(sig, close) <= q.cfg.ProximityR {
		q.promote(ctx, s, spec)
	}
	return nil
}

// promote rests a limit order at the entry so the broker can fill it even
// between polls. The queue still owns the fill decision.
func (q *Queue) promote(ctx context.Context, s *Setup, spec market.Spec) {
	lots := spec.MinLot // placeholder size; replaced by a fresh order at fill
	orderID, err := q.gw.PlaceLimitOrder(ctx, broker.OrderRequest{
		Instrument: s.Signal.Instrument,
		Side:       s.Signal.Side,
		Lots:       lots,
		Price:      s.Signal.Entry,
		Stop:       s.Signal.Stop,
	})
	if err != nil {
		q.log.WithError(err).WithField("instrument", s.Signal.Instrument).Warn("entry: limit order placement failed")
		return
	}
	s.Status = StatusPending
	s.OrderID = orderID
	q.log.WithFields(logrus.Fields{
		"id":         s.ID,
		"instrument": s.Signal.Instrument,
		"order_id":   orderID,
	}).Info("entry: promoted to pending order")
}

// tryFill sizes the setup with the current balance and opens the position.
// Soft limits (position count, open risk cap, trade budget) leave the setup
// queued for a later bar; a governor halt cancels it.
func (q *Queue) tryFill(ctx context.Context, now time.Time, s *Setup, spec market.Spec, riskPct, spreadPips float64) error {
	if q.gov.Halted() {
		q.retire(ctx, s, StatusCancelled, "risk governor halt")
		return nil
	}
	if ok, reason := q.gov.CanOpen(); !ok {
		q.log.WithFields(logrus.Fields{
			"instrument": s.Signal.Instrument,
			"reason":     reason,
		}).Info("entry: fill deferred")
		return nil
	}
	if q.mgr.Count() >= q.cfg.MaxOpenPositions {
		return nil
	}

	balance := q.acct.Balance()
	if q.cfg.MaxOpenRiskPct > 0 {
		openRisk := q.mgr.OpenRiskUSD()
		newRisk := balance * riskPct
		if (openRisk+newRisk)/balance*100 > q.cfg.MaxOpenRiskPct {
			q.log.WithFields(logrus.Fields{
				"instrument": s.Signal.Instrument,
				"open_risk":  fmt.Sprintf("%.2f", openRisk),
			}).Info("entry: fill deferred, open risk cap")
			return nil
		}
	}

	res := risk.Size(risk.Inputs{
		Spec:       spec,
		Balance:    balance,
		RiskPct:    riskPct,
		Entry:      s.Signal.Entry,
		Stop:       s.Signal.Stop,
		Confluence: s.Signal.Confluence,
		Base:       q.cfg.ConfluenceBase,
		Scale:      q.cfg.ConfluenceScale,
		MinMult:    q.cfg.MinMultiplier,
		MaxMult:    q.cfg.MaxMultiplier,
	})
	if res.Lots == 0 {
		q.retire(ctx, s, StatusSkipped, "sized to zero lots")
		return nil
	}

	// Replace any resting order with a fresh, correctly sized market order.
	// A cancel that comes back not-found means the broker filled the
	// resting order first; adopt that fill instead of placing a second one.
	if s.OrderID != "" {
		if err := q.gw.CancelOrder(ctx, s.OrderID); err != nil {
			if errors.Is(err, broker.ErrNotFound) {
				return q.adoptBrokerFill(ctx, now, s, spec, riskPct)
			}
			return fmt.Errorf("entry: cancel resting order %s: %w", s.OrderID, err)
		}
		s.OrderID = ""
	}

	fill, err := q.gw.PlaceMarketOrder(ctx, broker.OrderRequest{
		Instrument: s.Signal.Instrument,
		Side:       s.Signal.Side,
		Lots:       res.Lots,
		Price:      s.Signal.Entry,
		Stop:       s.Signal.Stop,
	})
	if err != nil {
		if broker.IsTransient(err) {
			q.log.WithError(err).WithField("instrument", s.Signal.Instrument).Warn("entry: market order failed, will retry")
			return nil
		}
		q.retire(ctx, s, StatusCancelled, "order rejected")
		return fmt.Errorf("entry: market order %s: %w", s.Signal.Instrument, err)
	}

	q.finishFill(s)
	q.mgr.Open(s.ID, s.Signal, spec, fill, res.RiskUSD)
	q.gov.RecordTrade()
	return nil
}

// adoptBrokerFill picks up a resting order the broker filled on its own.
func (q *Queue) adoptBrokerFill(ctx context.Context, now time.Time, s *Setup, spec market.Spec, riskPct float64) error {
	positions, err := q.gw.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("entry: reconcile filled order %s: %w", s.OrderID, err)
	}
	for _, pi := range positions {
		if pi.Instrument != s.Signal.Instrument {
			continue
		}
		riskUSD := q.acct.Balance() * riskPct
		q.finishFill(s)
		q.mgr.Open(s.ID, s.Signal, spec, broker.Fill{
			Ticket:     pi.Ticket,
			Instrument: pi.Instrument,
			Side:       pi.Side,
			Lots:       pi.Lots,
			Price:      pi.OpenPrice,
			Time:       now,
		}, riskUSD)
		q.gov.RecordTrade()
		return nil
	}
	q.retire(ctx, s, StatusCancelled, "resting order vanished")
	return nil
}

func (q *Queue) finishFill(s *Setup) {
	s.Status = StatusFilled
	q.mu.Lock()
	delete(q.active, s.Signal.Instrument)
	q.mu.Unlock()
}

// retire moves a setup to a terminal state and cancels any resting order.
func (q *Queue) retire(ctx context.Context, s *Setup, status Status, note string) {
	if s.OrderID != "" {
		if err := q.gw.CancelOrder(ctx, s.OrderID); err != nil && !errors.Is(err, broker.ErrNotFound) {
			q.log.WithError(err).WithField("order_id", s.OrderID).Warn("entry: cancel failed")
		}
		s.OrderID = ""
	}
	s.Status = status
	s.Note = note
	q.mu.Lock()
	delete(q.active, s.Signal.Instrument)
	q.mu.Unlock()

	q.log.WithFields(logrus.Fields{
		"id":         s.ID,
		"instrument": s.Signal.Instrument,
		"status":     string(status),
		"note":       note,
	}).Info("entry: setup retired")
}

// CancelAll clears the queue, cancelling resting orders. The governor issues
// this on HALT and worse.
func (q *Queue) CancelAll(ctx context.Context, reason string) {
	for _, s := range q.Active() {
		q.retire(ctx, s, StatusCancelled, reason)
	}
}

// CancelPending cancels only setups holding a resting broker order; setups
// still awaiting entry stay queued. The governor issues this on REDUCE.
func (q *Queue) CancelPending(ctx context.Context, reason string) {
	for _, s := range q.Active() {
		if s.Status == StatusPending {
			q.retire(ctx, s, StatusCancelled, reason)
		}
	}
}

// Active returns the live setups, for inspection and persistence.
func (q *Queue) Active() []*Setup {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Setup, 0, len(q.active))
	for _, s := range q.active {
		out = append(out, s)
	}
	return out
}

// Get returns the active setup for the instrument, or nil.
func (q *Queue) Get(instrument string) *Setup {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active[instrument]
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Export snapshots active setups for persistence.
func (q *Queue) Export() []Setup {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Setup, 0, len(q.active))
	for _, s := range q.active {
		out = append(out, *s)
	}
	return out
}

// Restore loads persisted setups. Broker-side resting orders are assumed to
// have been reconciled by the caller before this runs.
func (q *Queue) Restore(saved []Setup) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range saved {
		cp := s
		q.active[s.Signal.Instrument] = &cp
	}
}
