package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/risk"
)

func sampleTrade() TradeRecord {
	return TradeRecord{
		ID:          "T-000001",
		Ticket:      "T-000001",
		Instrument:  "EUR_USD",
		Side:        market.Long,
		Lots:        2,
		EntryPrice:  1.0850,
		ExitPrice:   1.0910,
		OpenTime:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		CloseTime:   time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC),
		RealizedPnL: 754,
		RealizedR:   1.2566,
		Commission:  8,
		Reason:      "TP3",
	}
}

func samplePartial() PartialRecord {
	return PartialRecord{
		PositionID: "T-000001",
		Instrument: "EUR_USD",
		Level:      "TP1",
		Time:       time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		Price:      1.0868,
		Fraction:   0.35,
		BankedPnL:  126,
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.RecordPartial(samplePartial()))
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time: time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC), Balance: 100_872, Equity: 100_872,
	}))
	require.NoError(t, j.RecordDrawdown(risk.DrawdownEvent{
		Time: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), Kind: risk.EventWarn,
		Equity: 98_000, Threshold: 2.0, Baseline: 100_000,
		Positions: []string{"T-000001", "T-000002"},
	}))

	var (
		reason     string
		realizedR  float64
		commission float64
	)
	row := j.db.QueryRow(`SELECT reason, realized_r, commission FROM trades WHERE ticket = ?`, "T-000001")
	require.NoError(t, row.Scan(&reason, &realizedR, &commission))
	assert.Equal(t, "TP3", reason)
	assert.InDelta(t, 1.2566, realizedR, 1e-9)
	assert.InDelta(t, 8, commission, 1e-9)

	var level string
	var fraction float64
	row = j.db.QueryRow(`SELECT level, fraction FROM partials WHERE position_id = ?`, "T-000001")
	require.NoError(t, row.Scan(&level, &fraction))
	assert.Equal(t, "TP1", level)
	assert.InDelta(t, 0.35, fraction, 1e-9)

	var positions string
	row = j.db.QueryRow(`SELECT positions FROM drawdown_events`)
	require.NoError(t, row.Scan(&positions))
	assert.Equal(t, "T-000001,T-000002", positions)

	var n int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM equity`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteDuplicateTradeIDRejected(t *testing.T) {
	t.Parallel()

	j, err := NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.RecordTrade(sampleTrade()))
	assert.Error(t, j.RecordTrade(sampleTrade()), "trade id is the primary key")
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.Close())

	// Schema setup is idempotent on an existing database.
	j2, err := NewSQLite(path)
	require.NoError(t, err)
	defer j2.Close()

	var n int
	require.NoError(t, j2.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n))
	assert.Equal(t, 1, n)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j, err := NewCSV(dir)
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(sampleTrade()))
	require.NoError(t, j.RecordPartial(samplePartial()))
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time: time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC), Balance: 100_872, Equity: 100_872,
	}))
	require.NoError(t, j.Close())

	trades := readCSV(t, filepath.Join(dir, "trades.csv"))
	require.Len(t, trades, 2, "header plus one row")
	assert.Equal(t, "id", trades[0][0])
	assert.Equal(t, "T-000001", trades[1][0])
	assert.Equal(t, "long", trades[1][3])
	assert.Equal(t, "TP3", trades[1][12])

	partials := readCSV(t, filepath.Join(dir, "partials.csv"))
	require.Len(t, partials, 2)
	assert.Equal(t, "TP1", partials[1][2])
	assert.Equal(t, "0.350000", partials[1][5])

	equity := readCSV(t, filepath.Join(dir, "equity.csv"))
	require.Len(t, equity, 2)
	assert.Equal(t, "2026-03-02T22:00:00Z", equity[1][0])
}
