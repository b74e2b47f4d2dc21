package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/entry"
	"github.com/pipguard/pipguard/internal/logging"
	"github.com/pipguard/pipguard/market"
	"github.com/pipguard/pipguard/position"
	"github.com/pipguard/pipguard/risk"
	"github.com/pipguard/pipguard/weekend"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Balance: 101_250.50,
		Baseline: risk.Baseline{
			Date:           "2026-03-02",
			Equity:         101_000,
			InitialBalance: 100_000,
		},
		Halt: HaltState{State: risk.Halt, Reason: "daily drawdown", Date: "2026-03-02"},
		Positions: []position.Position{{
			ID:         "T-000001",
			Ticket:     "T-000001",
			Instrument: "EUR_USD",
			Side:       market.Long,
			Entry:      1.0850,
			Stop:       1.0850,
			InitialStop: 1.0820,
			RiskDist:   0.0030,
			RiskUSD:    600,
			InitialLots: 2,
			Lots:       1.3,
			OpenTime:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			TP1Done:    true,
			ClosedFraction: 0.35,
			BankedPnL:  126,
		}},
		Setups: []entry.Setup{{
			ID:       "S-000001",
			Status:   entry.StatusAwaiting,
			QueuedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		}},
		Weekend: weekend.State{
			Armed:        true,
			FridayPrices: map[string]float64{"T-000001": 1.0880},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	st := NewStore(path)

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded, "missing file means first run")

	snap := sampleSnapshot()
	require.NoError(t, st.Save(snap))

	loaded, err = st.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.False(t, loaded.SavedAt.IsZero())
	assert.InDelta(t, snap.Balance, loaded.Balance, 1e-9)
	assert.Equal(t, snap.Baseline, loaded.Baseline)
	assert.Equal(t, snap.Halt, loaded.Halt)
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, "T-000001", loaded.Positions[0].Ticket)
	assert.True(t, loaded.Positions[0].TP1Done)
	assert.InDelta(t, 0.35, loaded.Positions[0].ClosedFraction, 1e-9)
	require.Len(t, loaded.Setups, 1)
	assert.Equal(t, entry.StatusAwaiting, loaded.Setups[0].Status)
	assert.True(t, loaded.Weekend.Armed)
	assert.InDelta(t, 1.0880, loaded.Weekend.FridayPrices["T-000001"], 1e-9)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "state.json"))
	require.NoError(t, st.Save(sampleSnapshot()))
	require.NoError(t, st.Save(sampleSnapshot())) // overwrite in place

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

// reconcileGateway serves a fixed account and open-position list.
type reconcileGateway struct {
	balance   float64
	positions []broker.PositionInfo
}

func (g reconcileGateway) GetTick(context.Context, string) (market.Tick, error) {
	return market.Tick{}, market.ErrNoTick
}
func (g reconcileGateway) GetCandles(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}
func (g reconcileGateway) PlaceMarketOrder(context.Context, broker.OrderRequest) (broker.Fill, error) {
	return broker.Fill{}, broker.ErrRejected
}
func (g reconcileGateway) PlaceLimitOrder(context.Context, broker.OrderRequest) (string, error) {
	return "", broker.ErrRejected
}
func (g reconcileGateway) CancelOrder(context.Context, string) error { return nil }
func (g reconcileGateway) ClosePosition(context.Context, string, float64) (float64, error) {
	return 0, nil
}
func (g reconcileGateway) ModifyStop(context.Context, string, float64) error { return nil }
func (g reconcileGateway) GetOpenPositions(context.Context) ([]broker.PositionInfo, error) {
	return g.positions, nil
}
func (g reconcileGateway) GetPendingOrders(context.Context) ([]broker.OrderInfo, error) {
	return nil, nil
}
func (g reconcileGateway) GetAccount(context.Context) (broker.Account, error) {
	return broker.Account{ID: "A-1", Balance: g.balance, Equity: g.balance, Currency: "USD"}, nil
}

func TestReconcileFreshStart(t *testing.T) {
	t.Parallel()

	gw := reconcileGateway{balance: 100_000}
	snap, err := Reconcile(context.Background(), gw, nil, logging.Discard())
	require.NoError(t, err)
	assert.InDelta(t, 100_000, snap.Balance, 1e-9)
	assert.Empty(t, snap.Positions)
}

func TestReconcileDropsMissingPosition(t *testing.T) {
	t.Parallel()

	saved := sampleSnapshot()
	gw := reconcileGateway{balance: saved.Balance} // broker has nothing open

	snap, err := Reconcile(context.Background(), gw, &saved, logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, snap.Positions, "position closed while we were down")
}

func TestReconcileAdoptsSmallerBrokerSize(t *testing.T) {
	t.Parallel()

	saved := sampleSnapshot()
	gw := reconcileGateway{
		balance: saved.Balance,
		positions: []broker.PositionInfo{{
			Ticket:     "T-000001",
			Instrument: "EUR_USD",
			Side:       market.Long,
			Lots:       0.65, // broker closed part of it without us
			OpenPrice:  1.0850,
		}},
	}

	snap, err := Reconcile(context.Background(), gw, &saved, logging.Discard())
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	assert.InDelta(t, 0.65, snap.Positions[0].Lots, 1e-9)
	assert.True(t, snap.Positions[0].TP1Done, "ladder progress is local authority")
}

func TestReconcileAdoptsBrokerBalance(t *testing.T) {
	t.Parallel()

	saved := sampleSnapshot()
	gw := reconcileGateway{
		balance: saved.Balance + 42.17,
		positions: []broker.PositionInfo{{
			Ticket: "T-000001", Instrument: "EUR_USD", Side: market.Long, Lots: 1.3,
		}},
	}

	snap, err := Reconcile(context.Background(), gw, &saved, logging.Discard())
	require.NoError(t, err)
	assert.InDelta(t, saved.Balance+42.17, snap.Balance, 1e-9)
}

func TestReconcileIgnoresUnknownBrokerPosition(t *testing.T) {
	t.Parallel()

	saved := sampleSnapshot()
	saved.Positions = nil
	gw := reconcileGateway{
		balance: saved.Balance,
		positions: []broker.PositionInfo{{
			Ticket: "T-STRAY", Instrument: "GBP_USD", Side: market.Short, Lots: 0.5,
		}},
	}

	snap, err := Reconcile(context.Background(), gw, &saved, logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, snap.Positions, "unmanaged broker position is surfaced, not adopted")
}
