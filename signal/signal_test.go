package signal

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipguard/pipguard/market"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sig     Signal
		wantErr error
	}{
		{
			name: "valid long",
			sig:  Signal{Instrument: "EUR_USD", Side: market.Long, Entry: 1.0850, Stop: 1.0820},
		},
		{
			name: "valid short",
			sig:  Signal{Instrument: "EUR_USD", Side: market.Short, Entry: 1.0850, Stop: 1.0880},
		},
		{
			name:    "zero risk",
			sig:     Signal{Side: market.Long, Entry: 1.0850, Stop: 1.0850},
			wantErr: ErrZeroRisk,
		},
		{
			name:    "long stop above entry",
			sig:     Signal{Side: market.Long, Entry: 1.0850, Stop: 1.0900},
			wantErr: ErrInvertedStop,
		},
		{
			name:    "short stop below entry",
			sig:     Signal{Side: market.Short, Entry: 1.0850, Stop: 1.0800},
			wantErr: ErrInvertedStop,
		},
		{
			name:    "nan entry",
			sig:     Signal{Side: market.Long, Entry: math.NaN(), Stop: 1.0820},
			wantErr: ErrBadPrice,
		},
		{
			name:    "negative stop",
			sig:     Signal{Side: market.Long, Entry: 1.0850, Stop: -1},
			wantErr: ErrBadPrice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTPAndCurrentR(t *testing.T) {
	t.Parallel()

	long := Signal{Side: market.Long, Entry: 1.0850, Stop: 1.0820} // risk 30 pips
	assert.InDelta(t, 1.0868, long.TP(0.6), 1e-9)
	assert.InDelta(t, 1.0910, long.TP(2.0), 1e-9)
	assert.InDelta(t, 1.0, long.CurrentR(1.0880), 1e-9)
	assert.InDelta(t, -1.0, long.CurrentR(1.0820), 1e-9)

	short := Signal{Side: market.Short, Entry: 1.0850, Stop: 1.0880}
	assert.InDelta(t, 1.0832, short.TP(0.6), 1e-9)
	assert.InDelta(t, 1.0, short.CurrentR(1.0820), 1e-9)
	assert.InDelta(t, -1.0, short.CurrentR(1.0880), 1e-9)
}

func TestScriptedProvider(t *testing.T) {
	t.Parallel()

	p := NewScripted()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	p.Add(Signal{Instrument: "EUR_USD", Side: market.Long, Entry: 1.0850, Stop: 1.0820, CreatedAt: day})

	got, err := p.Generate(context.Background(), "EUR_USD", day.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1.0850, got.Entry)

	got, err = p.Generate(context.Background(), "EUR_USD", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = p.Generate(context.Background(), "GBP_USD", day)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "signals.yaml")
	content := `
- instrument: EUR_USD
  side: long
  entry: 1.0850
  stop: 1.0820
  confluence: 5
  date: "2026-03-02"
- instrument: GBP_USD
  side: sell
  entry: 1.2600
  stop: 1.2650
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := NewFileProvider(path)
	asOf := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	got, err := p.Generate(context.Background(), "EUR_USD", asOf)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, market.Long, got.Side)
	assert.Equal(t, 5, got.Confluence)

	// Dated entry does not match another day.
	got, err = p.Generate(context.Background(), "EUR_USD", asOf.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, got)

	// Undated entry matches any day; "sell" parses as short.
	got, err = p.Generate(context.Background(), "GBP_USD", asOf.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, market.Short, got.Side)

	// Missing file means no signals, not an error.
	p = NewFileProvider(filepath.Join(dir, "absent.yaml"))
	got, err = p.Generate(context.Background(), "EUR_USD", asOf)
	require.NoError(t, err)
	assert.Nil(t, got)
}
