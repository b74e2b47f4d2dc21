package market

import (
	"errors"
	"sync"
	"time"
)

type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPips converts the current spread into pips for the instrument.
func (t Tick) SpreadPips() float64 {
	s, ok := Instruments[t.Instrument]
	if !ok || s.PipSize == 0 {
		return 0
	}
	return t.Spread() / s.PipSize
}

var ErrNoTick = errors.New("market: no tick for instrument")

// TickStore keeps the latest tick per instrument behind a RWMutex.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Instrument] = t
}

func (ts *TickStore) Get(instrument string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[instrument]
	if !ok {
		return Tick{}, ErrNoTick
	}
	return t, nil
}
