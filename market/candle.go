package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Crosses reports whether the candle's high/low range touched price.
// Fills and stop checks use the full bar range, never just the close.
func (c Candle) Crosses(price float64) bool {
	return c.Low <= price && price <= c.High
}

// Timeframe labels used by candle requests.
const (
	TFM15 = "M15"
	TFH1  = "H1"
	TFH4  = "H4"
	TFD1  = "D1"
	TFW1  = "W1"
	TFMN  = "MN"
)
