// market/instruments.go
package market

import "strings"

// Spec holds the static contract specification for one instrument.
// Pip value and commission are expressed in account currency (USD) per lot.
type Spec struct {
	Name             string
	PipSize          float64
	PipValuePerLot   float64
	CommissionPerLot float64
	MinLot           float64
	MaxLot           float64
	LotStep          float64
	Continuous       bool   // trades through the weekend (crypto)
	Group            string // correlation group, see groups.go
}

// PipDistance converts a raw price distance into pips.
func (s Spec) PipDistance(priceDistance float64) float64 {
	if s.PipSize == 0 {
		return 0
	}
	if priceDistance < 0 {
		priceDistance = -priceDistance
	}
	return priceDistance / s.PipSize
}

// RoundLots snaps lots down to the spec's lot step and clamps to
// [MinLot, MaxLot]. Zero stays zero; callers treat zero as "do not trade".
func (s Spec) RoundLots(lots float64) float64 {
	if lots <= 0 {
		return 0
	}
	if s.LotStep > 0 {
		steps := float64(int64(lots / s.LotStep))
		lots = steps * s.LotStep
	}
	if lots < s.MinLot {
		return 0
	}
	if lots > s.MaxLot {
		lots = s.MaxLot
	}
	return lots
}

var forexSpec = Spec{
	PipSize:          0.0001,
	PipValuePerLot:   10.0,
	CommissionPerLot: 4.0,
	MinLot:           0.01,
	MaxLot:           100.0,
	LotStep:          0.01,
}

func fx(name, group string, pipValue float64) Spec {
	s := forexSpec
	s.Name = name
	s.Group = group
	s.PipValuePerLot = pipValue
	return s
}

func fxJPY(name, group string) Spec {
	s := fx(name, group, 6.67)
	s.PipSize = 0.01
	return s
}

// Instruments is the static per-instrument contract spec table.
// Pip values are mid-range approximations for a USD account; the sizer
// only needs them to be stable, not tick-accurate.
var Instruments = map[string]Spec{
	// USD majors
	"EUR_USD": fx("EUR_USD", GroupUSDMajors, 10.0),
	"GBP_USD": fx("GBP_USD", GroupUSDMajors, 10.0),
	"AUD_USD": fx("AUD_USD", GroupUSDMajors, 10.0),
	"NZD_USD": fx("NZD_USD", GroupUSDMajors, 10.0),

	// USD as quote inverse
	"USD_JPY": fxJPY("USD_JPY", GroupUSDInverse),
	"USD_CHF": fx("USD_CHF", GroupUSDInverse, 10.0),
	"USD_CAD": fx("USD_CAD", GroupUSDInverse, 7.5),

	// EUR crosses
	"EUR_GBP": fx("EUR_GBP", GroupEURCrosses, 12.5),
	"EUR_JPY": fxJPY("EUR_JPY", GroupEURCrosses),
	"EUR_CHF": fx("EUR_CHF", GroupEURCrosses, 10.0),
	"EUR_AUD": fx("EUR_AUD", GroupEURCrosses, 6.5),
	"EUR_CAD": fx("EUR_CAD", GroupEURCrosses, 7.5),
	"EUR_NZD": fx("EUR_NZD", GroupEURCrosses, 6.0),

	// GBP crosses
	"GBP_JPY": fxJPY("GBP_JPY", GroupGBPCrosses),
	"GBP_CHF": fx("GBP_CHF", GroupGBPCrosses, 10.0),
	"GBP_AUD": fx("GBP_AUD", GroupGBPCrosses, 6.5),
	"GBP_CAD": fx("GBP_CAD", GroupGBPCrosses, 7.5),
	"GBP_NZD": fx("GBP_NZD", GroupGBPCrosses, 6.0),

	// JPY / commodity crosses
	"AUD_JPY": fxJPY("AUD_JPY", GroupJPYCrosses),
	"NZD_JPY": fxJPY("NZD_JPY", GroupJPYCrosses),
	"CAD_JPY": fxJPY("CAD_JPY", GroupJPYCrosses),
	"CHF_JPY": fxJPY("CHF_JPY", GroupJPYCrosses),
	"AUD_NZD": fx("AUD_NZD", GroupCommodityFX, 6.0),
	"AUD_CHF": fx("AUD_CHF", GroupCommodityFX, 10.0),
	"AUD_CAD": fx("AUD_CAD", GroupCommodityFX, 7.5),
	"NZD_CHF": fx("NZD_CHF", GroupCommodityFX, 10.0),
	"NZD_CAD": fx("NZD_CAD", GroupCommodityFX, 7.5),
	"CAD_CHF": fx("CAD_CHF", GroupCommodityFX, 10.0),

	// Metals
	"XAU_USD": {
		Name: "XAU_USD", PipSize: 0.01, PipValuePerLot: 1.0,
		CommissionPerLot: 4.0, MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Group: GroupMetals,
	},
	"XAG_USD": {
		Name: "XAG_USD", PipSize: 0.001, PipValuePerLot: 5.0,
		CommissionPerLot: 4.0, MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Group: GroupMetals,
	},

	// Indices (mini contracts)
	"SPX500_USD": {
		Name: "SPX500_USD", PipSize: 1.0, PipValuePerLot: 1.0,
		MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Group: GroupUSIndices,
	},
	"NAS100_USD": {
		Name: "NAS100_USD", PipSize: 1.0, PipValuePerLot: 1.0,
		MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Group: GroupUSIndices,
	},
	"UK100_USD": {
		Name: "UK100_USD", PipSize: 1.0, PipValuePerLot: 1.4,
		MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Group: GroupOtherIndices,
	},

	// Crypto: continuous trading, no weekend gap risk
	"BTC_USD": {
		Name: "BTC_USD", PipSize: 1.0, PipValuePerLot: 1.0,
		MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Continuous: true, Group: GroupCryptoMajor,
	},
	"ETH_USD": {
		Name: "ETH_USD", PipSize: 0.01, PipValuePerLot: 0.01,
		MinLot: 0.01, MaxLot: 100.0, LotStep: 0.01,
		Continuous: true, Group: GroupCryptoMajor,
	},
}

// Lookup returns the contract spec for an instrument.
func Lookup(instrument string) (Spec, bool) {
	s, ok := Instruments[instrument]
	return s, ok
}

// IsContinuous reports whether the instrument trades through the weekend.
func IsContinuous(instrument string) bool {
	if s, ok := Instruments[instrument]; ok {
		return s.Continuous
	}
	return strings.HasPrefix(instrument, "BTC_") || strings.HasPrefix(instrument, "ETH_")
}
