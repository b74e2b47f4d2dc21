package state

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/position"
)

// Reconcile squares persisted state with the broker at startup. The broker
// is the authority on what is actually open and on the balance; local state
// is the authority on ladder progress for positions both sides agree exist.
func Reconcile(ctx context.Context, gw broker.Gateway, snap *Snapshot, log *logrus.Logger) (*Snapshot, error) {
	acct, err := gw.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile account: %w", err)
	}
	live, err := gw.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile positions: %w", err)
	}

	if snap == nil {
		log.WithFields(logrus.Fields{
			"balance":        acct.Balance,
			"open_positions": len(live),
		}).Info("state: no saved state, starting from broker account")
		return &Snapshot{Balance: acct.Balance}, nil
	}

	byTicket := make(map[string]broker.PositionInfo, len(live))
	for _, p := range live {
		byTicket[p.Ticket] = p
	}

	var kept []position.Position
	for _, p := range snap.Positions {
		bp, ok := byTicket[p.Ticket]
		if !ok {
			log.WithFields(logrus.Fields{
				"ticket":     p.Ticket,
				"instrument": p.Instrument,
			}).Warn("state: saved position gone at broker, dropping")
			continue
		}
		if bp.Lots < p.Lots {
			log.WithFields(logrus.Fields{
				"ticket":      p.Ticket,
				"saved_lots":  p.Lots,
				"broker_lots": bp.Lots,
			}).Warn("state: broker shows smaller size, adopting")
			p.Lots = bp.Lots
		}
		kept = append(kept, p)
		delete(byTicket, p.Ticket)
	}
	for ticket, bp := range byTicket {
		// An unknown broker position is not adopted: without a stop plan
		// there is no ladder to run. The operator has to resolve it.
		log.WithFields(logrus.Fields{
			"ticket":     ticket,
			"instrument": bp.Instrument,
		}).Error("state: broker position unknown locally, not managing it")
	}
	snap.Positions = kept

	if math.Abs(acct.Balance-snap.Balance) > 0.01 {
		log.WithFields(logrus.Fields{
			"saved_balance":  snap.Balance,
			"broker_balance": acct.Balance,
		}).Warn("state: balance diverged, adopting broker balance")
		snap.Balance = acct.Balance
	}
	return snap, nil
}
