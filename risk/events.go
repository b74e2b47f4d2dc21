package risk

import "time"

// EventKind labels a drawdown log entry.
type EventKind string

const (
	EventWarn      EventKind = "WARN"
	EventReduce    EventKind = "REDUCE"
	EventDailyHalt EventKind = "DAILY_HALT"
	EventEmergency EventKind = "EMERGENCY"
	EventTerminal  EventKind = "TERMINAL"
)

// DrawdownEvent is an append-only record of a safety threshold breach.
// A breach is a state transition, not an error; every one is recorded with
// the numbers that triggered it.
type DrawdownEvent struct {
	Time      time.Time
	Kind      EventKind
	Equity    float64
	Threshold float64 // percent breached
	Baseline  float64 // daily baseline or initial balance, per kind
	Positions []string
}

// EventSink receives drawdown events. The journal implements it.
type EventSink interface {
	RecordDrawdown(DrawdownEvent) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(DrawdownEvent) error

func (f EventSinkFunc) RecordDrawdown(ev DrawdownEvent) error { return f(ev) }
