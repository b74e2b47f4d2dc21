package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServerDate(t *testing.T) {
	t.Parallel()

	clock := NewClock(2)

	tests := []struct {
		name string
		utc  string
		want string
	}{
		{"midday stays same day", "2026-03-04T12:00:00Z", "2026-03-04"},
		{"23:00 UTC rolls to next server day", "2026-03-04T23:00:00Z", "2026-03-05"},
		{"21:59 UTC still same server day", "2026-03-04T21:59:00Z", "2026-03-04"},
		{"22:00 UTC is server midnight", "2026-03-04T22:00:00Z", "2026-03-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := time.Parse(time.RFC3339, tt.utc)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, clock.ServerDate(ts))
		})
	}
}

func TestWeekendWindows(t *testing.T) {
	t.Parallel()

	clock := NewClock(2)
	parse := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}

	// 2026-03-06 is a Friday, 2026-03-08 a Sunday.
	assert.False(t, clock.IsWeekend(parse("2026-03-06T12:00:00Z")))
	assert.True(t, clock.IsWeekend(parse("2026-03-07T12:00:00Z")))
	assert.True(t, clock.IsWeekend(parse("2026-03-08T12:00:00Z")))

	// Friday close window: 16:00 server = 14:00 UTC.
	assert.False(t, clock.IsFridayClose(parse("2026-03-06T13:59:00Z"), 16))
	assert.True(t, clock.IsFridayClose(parse("2026-03-06T14:00:00Z"), 16))
	assert.False(t, clock.IsFridayClose(parse("2026-03-05T14:00:00Z"), 16)) // Thursday

	// Reopen window: Sunday 22:00+ or Monday <02:00 server time.
	assert.True(t, clock.IsMarketReopen(parse("2026-03-08T20:30:00Z")))  // Sunday 22:30 server
	assert.True(t, clock.IsMarketReopen(parse("2026-03-08T23:00:00Z")))  // Monday 01:00 server
	assert.False(t, clock.IsMarketReopen(parse("2026-03-09T01:00:00Z"))) // Monday 03:00 server
	assert.False(t, clock.IsMarketReopen(parse("2026-03-08T12:00:00Z")))
}

func TestSideString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "long", Long.String())
	assert.Equal(t, "short", Short.String())
}

func TestCandleCrosses(t *testing.T) {
	t.Parallel()

	c := Candle{Open: 1.10, High: 1.12, Low: 1.09, Close: 1.11}
	assert.True(t, c.Crosses(1.10))
	assert.True(t, c.Crosses(1.12))
	assert.True(t, c.Crosses(1.09))
	assert.False(t, c.Crosses(1.0899))
	assert.False(t, c.Crosses(1.1201))
}
