package journal

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pipguard/pipguard/risk"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, ticket, instrument, side, lots, entry_price, exit_price, open_time, close_time, realized_pnl, realized_r, commission, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Ticket, t.Instrument, t.Side.String(), t.Lots, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPnL, t.RealizedR,
		t.Commission, t.Reason,
	)
	return err
}

func (j *SQLiteJournal) RecordPartial(p PartialRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO partials
		(position_id, instrument, level, time, price, fraction, banked_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PositionID, p.Instrument, p.Level, p.Time, p.Price, p.Fraction, p.BankedPnL,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, daily_dd_pct, total_dd_pct)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.DailyDDPct, e.TotalDDPct,
	)
	return err
}

func (j *SQLiteJournal) RecordDrawdown(ev risk.DrawdownEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO drawdown_events
		(time, kind, equity, threshold, baseline, positions)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Time, string(ev.Kind), ev.Equity, ev.Threshold, ev.Baseline,
		strings.Join(ev.Positions, ","),
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
