package risk

import (
	"math"

	"github.com/pipguard/pipguard/market"
)

// Inputs for position sizing. RiskPct is a fraction (0.006 = 0.6%).
type Inputs struct {
	Spec       market.Spec
	Balance    float64
	RiskPct    float64
	Entry      float64
	Stop       float64
	Confluence int

	// Confluence scaling: clamp(1+(confluence-Base)*Scale, MinMult, MaxMult).
	// Zero Scale disables scaling.
	Base    int
	Scale   float64
	MinMult float64
	MaxMult float64

	// MinStopPips rejects degenerate stops. Zero means one pip.
	MinStopPips float64
}

// Result of a sizing calculation. Lots == 0 means "do not trade".
type Result struct {
	Lots     float64
	RiskUSD  float64
	StopPips float64
	Mult     float64
}

// ConfluenceMultiplier scales risk by signal quality.
func ConfluenceMultiplier(confluence, base int, scale, minMult, maxMult float64) float64 {
	if scale == 0 {
		return 1.0
	}
	m := 1.0 + float64(confluence-base)*scale
	return math.Max(minMult, math.Min(maxMult, m))
}

// Size converts account balance and a stop distance into lots. It never
// divides by a zero or near-zero stop: a stop below the minimum distance, a
// non-positive risk percent, or a non-positive balance all yield zero lots.
func Size(in Inputs) Result {
	if in.Balance <= 0 || in.RiskPct <= 0 {
		return Result{}
	}
	stopPips := in.Spec.PipDistance(math.Abs(in.Entry - in.Stop))
	minPips := in.MinStopPips
	if minPips == 0 {
		minPips = 1.0
	}
	if stopPips < minPips {
		return Result{StopPips: stopPips}
	}
	if in.Spec.PipValuePerLot <= 0 {
		return Result{StopPips: stopPips}
	}

	mult := ConfluenceMultiplier(in.Confluence, in.Base, in.Scale, in.MinMult, in.MaxMult)
	riskUSD := in.Balance * in.RiskPct * mult
	lots := in.Spec.RoundLots(riskUSD / (stopPips * in.Spec.PipValuePerLot))
	if lots == 0 {
		return Result{StopPips: stopPips, Mult: mult}
	}
	return Result{
		Lots:     lots,
		RiskUSD:  riskUSD,
		StopPips: stopPips,
		Mult:     mult,
	}
}
