package signal

import (
	"context"
	"time"
)

// Scripted replays a fixed set of signals keyed by instrument and day.
// Replay fixtures and tests use it in place of a real analysis engine.
type Scripted struct {
	byKey map[string][]*Signal
}

func NewScripted() *Scripted {
	return &Scripted{byKey: make(map[string][]*Signal)}
}

// Add registers a signal to be emitted for its instrument on the UTC day of
// CreatedAt.
func (p *Scripted) Add(s Signal) {
	key := s.Instrument + "|" + s.CreatedAt.UTC().Format("2006-01-02")
	cp := s
	p.byKey[key] = append(p.byKey[key], &cp)
}

func (p *Scripted) Generate(_ context.Context, instrument string, asOf time.Time) (*Signal, error) {
	key := instrument + "|" + asOf.UTC().Format("2006-01-02")
	list := p.byKey[key]
	if len(list) == 0 {
		return nil, nil
	}
	// One signal per instrument per day; extras are dropped.
	return list[0], nil
}
