// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pipguard/pipguard/risk"
)

// CSVJournal writes one file per record kind under a directory. Rows are
// flushed as they are written so a crash loses at most the in-flight row.
type CSVJournal struct {
	trades, partials, equity, events *csv.Writer
	files                            []*os.File
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSVJournal{}
	open := func(name string, header []string) (*csv.Writer, error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.trades, err = open("trades.csv", []string{
		"id", "ticket", "instrument", "side", "lots", "entry_price", "exit_price",
		"open_time", "close_time", "realized_pnl", "realized_r", "commission", "reason",
	}); err != nil {
		j.Close()
		return nil, err
	}
	if j.partials, err = open("partials.csv", []string{
		"position_id", "instrument", "level", "time", "price", "fraction", "banked_pnl",
	}); err != nil {
		j.Close()
		return nil, err
	}
	if j.equity, err = open("equity.csv", []string{
		"time", "balance", "equity", "daily_dd_pct", "total_dd_pct",
	}); err != nil {
		j.Close()
		return nil, err
	}
	if j.events, err = open("drawdown_events.csv", []string{
		"time", "kind", "equity", "threshold", "baseline", "positions",
	}); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.ID,
		t.Ticket,
		t.Instrument,
		t.Side.String(),
		f(t.Lots),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPnL),
		f(t.RealizedR),
		f(t.Commission),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordPartial(p PartialRecord) error {
	err := j.partials.Write([]string{
		p.PositionID,
		p.Instrument,
		p.Level,
		p.Time.Format(time.RFC3339),
		f(p.Price),
		f(p.Fraction),
		f(p.BankedPnL),
	})
	if err != nil {
		return err
	}
	j.partials.Flush()
	return j.partials.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.DailyDDPct),
		f(e.TotalDDPct),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) RecordDrawdown(ev risk.DrawdownEvent) error {
	err := j.events.Write([]string{
		ev.Time.Format(time.RFC3339),
		string(ev.Kind),
		f(ev.Equity),
		f(ev.Threshold),
		f(ev.Baseline),
		strings.Join(ev.Positions, "|"),
	})
	if err != nil {
		return err
	}
	j.events.Flush()
	return j.events.Error()
}

func (j *CSVJournal) Close() error {
	var first error
	for _, w := range []*csv.Writer{j.trades, j.partials, j.equity, j.events} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil && first == nil {
			first = err
		}
	}
	for _, f := range j.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
