// Package signal defines the directional trading signal consumed by the
// entry queue and the provider interface the technical-analysis engine
// plugs into. Signal generation itself lives outside this repository.
package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pipguard/pipguard/market"
)

var (
	ErrZeroRisk     = errors.New("signal: entry and stop are equal")
	ErrInvertedStop = errors.New("signal: stop on wrong side of entry")
	ErrBadPrice     = errors.New("signal: price is not a finite positive number")
)

// Signal is an immutable directional trade idea. Risk is the entry-to-stop
// distance in price terms; every downstream R calculation derives from it.
type Signal struct {
	Instrument string
	Side       market.Side
	Entry      float64
	Stop       float64
	Confluence int
	Quality    int
	CreatedAt  time.Time
}

// Risk returns |entry-stop|. Validate guarantees it is positive.
func (s Signal) Risk() float64 {
	return math.Abs(s.Entry - s.Stop)
}

// Validate rejects malformed signals. Invalid input is refused outright,
// never silently corrected.
func (s Signal) Validate() error {
	for _, p := range []float64{s.Entry, s.Stop} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("%w: entry=%v stop=%v", ErrBadPrice, s.Entry, s.Stop)
		}
	}
	if s.Risk() == 0 {
		return ErrZeroRisk
	}
	if s.Side == market.Long && s.Stop > s.Entry {
		return fmt.Errorf("%w: long with stop %v above entry %v", ErrInvertedStop, s.Stop, s.Entry)
	}
	if s.Side == market.Short && s.Stop < s.Entry {
		return fmt.Errorf("%w: short with stop %v below entry %v", ErrInvertedStop, s.Stop, s.Entry)
	}
	return nil
}

// TP returns the take-profit level at the given R multiple.
func (s Signal) TP(rMultiple float64) float64 {
	if s.Side == market.Long {
		return s.Entry + s.Risk()*rMultiple
	}
	return s.Entry - s.Risk()*rMultiple
}

// CurrentR expresses price relative to entry in R multiples, signed in the
// trade's favor.
func (s Signal) CurrentR(price float64) float64 {
	r := s.Risk()
	if r == 0 {
		return 0
	}
	if s.Side == market.Long {
		return (price - s.Entry) / r
	}
	return (s.Entry - price) / r
}

// Provider generates at most one signal per instrument per day. asOf is the
// decision time: implementations must only consult data strictly before it.
type Provider interface {
	Generate(ctx context.Context, instrument string, asOf time.Time) (*Signal, error)
}
