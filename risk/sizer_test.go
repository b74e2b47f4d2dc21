package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipguard/pipguard/market"
)

func TestConfluenceMultiplier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confluence int
		want       float64
	}{
		{"base confluence is neutral", 4, 1.0},
		{"one above base", 5, 1.15},
		{"two above base", 6, 1.30},
		{"clamped at max", 10, 1.5},
		{"one below base", 3, 0.85},
		{"clamped at min", 0, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfluenceMultiplier(tt.confluence, 4, 0.15, 0.6, 1.5)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	assert.Equal(t, 1.0, ConfluenceMultiplier(9, 4, 0, 0.6, 1.5), "zero scale disables scaling")
}

func TestSize(t *testing.T) {
	t.Parallel()

	spec, ok := market.Lookup("EUR_USD")
	require.True(t, ok)

	base := Inputs{
		Spec:       spec,
		Balance:    100_000,
		RiskPct:    0.006,
		Entry:      1.0850,
		Stop:       1.0820, // 30 pips
		Confluence: 4,
		Base:       4,
		Scale:      0.15,
		MinMult:    0.6,
		MaxMult:    1.5,
	}

	t.Run("baseline sizing", func(t *testing.T) {
		res := Size(base)
		// 600 USD risk / (30 pips * 10 USD/pip/lot) = 2.00 lots
		assert.InDelta(t, 2.00, res.Lots, 1e-9)
		assert.InDelta(t, 600, res.RiskUSD, 1e-9)
		assert.InDelta(t, 30, res.StopPips, 1e-9)
	})

	t.Run("confluence scales risk", func(t *testing.T) {
		in := base
		in.Confluence = 6
		res := Size(in)
		assert.InDelta(t, 2.60, res.Lots, 1e-9)
		assert.InDelta(t, 780, res.RiskUSD, 1e-9)
	})

	t.Run("lots snap down to step", func(t *testing.T) {
		in := base
		in.Balance = 10_050
		res := Size(in)
		// 60.30 USD / 300 = 0.201 lots -> 0.20
		assert.InDelta(t, 0.20, res.Lots, 1e-9)
	})

	t.Run("degenerate stop yields zero lots", func(t *testing.T) {
		in := base
		in.Stop = in.Entry
		res := Size(in)
		assert.Zero(t, res.Lots)
	})

	t.Run("sub-minimum stop yields zero lots", func(t *testing.T) {
		in := base
		in.Stop = 1.08495 // half a pip
		res := Size(in)
		assert.Zero(t, res.Lots)
	})

	t.Run("zero balance yields zero lots", func(t *testing.T) {
		in := base
		in.Balance = 0
		assert.Zero(t, Size(in).Lots)
	})

	t.Run("tiny account below min lot", func(t *testing.T) {
		in := base
		in.Balance = 100
		// 0.6 USD / 300 = 0.002 lots, below MinLot 0.01
		assert.Zero(t, Size(in).Lots)
	})
}
