// Package config holds the flat strategy configuration: R-multiples, close
// percentages, entry-queue proximities, and drawdown thresholds. Every key
// has a documented default; missing keys fall back to it instead of failing.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy is the complete strategy configuration.
type Strategy struct {
	// Sizing
	RiskPct        float64 `json:"risk_pct" yaml:"risk_pct"`                 // 0.006 = 0.6% per trade
	ReducedRiskPct float64 `json:"reduced_risk_pct" yaml:"reduced_risk_pct"` // used in REDUCE mode

	// Confluence scaling: clamp(1+(confluence-base)*scale, min, max)
	ConfluenceBase  int     `json:"confluence_base" yaml:"confluence_base"`
	ConfluenceScale float64 `json:"confluence_scale" yaml:"confluence_scale"`
	MinMultiplier   float64 `json:"min_multiplier" yaml:"min_multiplier"`
	MaxMultiplier   float64 `json:"max_multiplier" yaml:"max_multiplier"`

	// Entry queue
	ImmediateR     float64 `json:"immediate_r" yaml:"immediate_r"`           // market fill within this R
	ProximityR     float64 `json:"proximity_r" yaml:"proximity_r"`           // limit order within this R
	MaxDistanceR   float64 `json:"max_distance_r" yaml:"max_distance_r"`     // skip signal beyond this R
	MaxWaitHours   float64 `json:"max_wait_hours" yaml:"max_wait_hours"`     // expire queued setups
	MaxSpreadPips  float64 `json:"max_spread_pips" yaml:"max_spread_pips"`   // live fill gate, 0 disables
	MaxOpenRiskPct float64 `json:"max_open_risk_pct" yaml:"max_open_risk_pct"`

	// Partial exits, in R multiples and fractions of the original size.
	TP1R        float64 `json:"tp1_r" yaml:"tp1_r"`
	TP2R        float64 `json:"tp2_r" yaml:"tp2_r"`
	TP3R        float64 `json:"tp3_r" yaml:"tp3_r"`
	TP1ClosePct float64 `json:"tp1_close_pct" yaml:"tp1_close_pct"`
	TP2ClosePct float64 `json:"tp2_close_pct" yaml:"tp2_close_pct"`
	TP3ClosePct float64 `json:"tp3_close_pct" yaml:"tp3_close_pct"`

	// Progressive trail: after TP1, once floating profit reaches TriggerR,
	// relocate the stop to TP1. A config variant, not a separate state.
	ProgressiveTrail    bool    `json:"progressive_trail" yaml:"progressive_trail"`
	ProgressiveTriggerR float64 `json:"progressive_trigger_r" yaml:"progressive_trigger_r"`
	TP2TrailExtraR      float64 `json:"tp2_trail_extra_r" yaml:"tp2_trail_extra_r"` // stop -> TP1 + extra after TP2

	// Drawdown thresholds, percent of baseline.
	DailyWarnPct      float64 `json:"daily_warn_pct" yaml:"daily_warn_pct"`
	DailyReducePct    float64 `json:"daily_reduce_pct" yaml:"daily_reduce_pct"`
	DailyHaltPct      float64 `json:"daily_halt_pct" yaml:"daily_halt_pct"`
	TotalEmergencyPct float64 `json:"total_emergency_pct" yaml:"total_emergency_pct"`
	TotalHaltPct      float64 `json:"total_halt_pct" yaml:"total_halt_pct"`

	// Profit targets (informational; reported by governor status).
	Phase1TargetPct  float64 `json:"phase1_target_pct" yaml:"phase1_target_pct"`
	Phase2TargetPct  float64 `json:"phase2_target_pct" yaml:"phase2_target_pct"`
	ProfitableDayPct float64 `json:"profitable_day_pct" yaml:"profitable_day_pct"`

	// Exposure limits
	MaxOpenPositions int `json:"max_open_positions" yaml:"max_open_positions"`
	MaxTradesPerDay  int `json:"max_trades_per_day" yaml:"max_trades_per_day"`

	// Weekend / gap protection
	WeekendMaxPerGroup int     `json:"weekend_max_per_group" yaml:"weekend_max_per_group"`
	WeekendMaxNonCont  int     `json:"weekend_max_non_continuous" yaml:"weekend_max_non_continuous"`
	WeekendTakeProfitR float64 `json:"weekend_take_profit_r" yaml:"weekend_take_profit_r"`
	WeekendFreshR      float64 `json:"weekend_fresh_r" yaml:"weekend_fresh_r"`
	FridayCloseHour    int     `json:"friday_close_hour" yaml:"friday_close_hour"`
	GapWarnPct         float64 `json:"gap_warn_pct" yaml:"gap_warn_pct"`
	GapCatastrophicPct float64 `json:"gap_catastrophic_pct" yaml:"gap_catastrophic_pct"`

	// Server timezone offset in hours from UTC; day rollover uses this,
	// never the machine's local zone.
	ServerUTCOffset int `json:"server_utc_offset" yaml:"server_utc_offset"`
}

// Default returns the documented default for every key.
func Default() Strategy {
	return Strategy{
		RiskPct:        0.006,
		ReducedRiskPct: 0.004,

		ConfluenceBase:  4,
		ConfluenceScale: 0.15,
		MinMultiplier:   0.6,
		MaxMultiplier:   1.5,

		ImmediateR:     0.05,
		ProximityR:     0.3,
		MaxDistanceR:   1.5,
		MaxWaitHours:   120,
		MaxSpreadPips:  3.0,
		MaxOpenRiskPct: 3.0,

		TP1R:        0.6,
		TP2R:        1.2,
		TP3R:        2.0,
		TP1ClosePct: 0.35,
		TP2ClosePct: 0.30,
		TP3ClosePct: 0.35,

		ProgressiveTrail:    false,
		ProgressiveTriggerR: 0.9,
		TP2TrailExtraR:      0.5,

		DailyWarnPct:      2.0,
		DailyReducePct:    3.0,
		DailyHaltPct:      3.5,
		TotalEmergencyPct: 7.0,
		TotalHaltPct:      10.0,

		Phase1TargetPct:  8.0,
		Phase2TargetPct:  5.0,
		ProfitableDayPct: 0.5,

		MaxOpenPositions: 7,
		MaxTradesPerDay:  10,

		WeekendMaxPerGroup: 2,
		WeekendMaxNonCont:  5,
		WeekendTakeProfitR: 1.6,
		WeekendFreshR:      0.5,
		FridayCloseHour:    16,
		GapWarnPct:         1.0,
		GapCatastrophicPct: 2.0,

		ServerUTCOffset: 2,
	}
}

// Load reads a strategy file (YAML or JSON) over the defaults and validates
// the result. Missing keys keep their defaults.
func Load(path string) (Strategy, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			// YAML first, JSON fallback for extensionless paths.
			if jerr := json.Unmarshal(data, &cfg); jerr == nil {
				err = nil
			}
		}
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate enforces the invariants the trade logic assumes. A config that
// fails here is rejected at load; nothing is re-checked per trade.
func (c Strategy) Validate() error {
	if c.RiskPct <= 0 || c.RiskPct > 0.05 {
		return fmt.Errorf("risk_pct %.4f out of range (0, 0.05]", c.RiskPct)
	}
	if c.ReducedRiskPct <= 0 || c.ReducedRiskPct > c.RiskPct {
		return fmt.Errorf("reduced_risk_pct %.4f must be in (0, risk_pct]", c.ReducedRiskPct)
	}
	sum := c.TP1ClosePct + c.TP2ClosePct + c.TP3ClosePct
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("close percentages must sum to 1.0, got %.4f", sum)
	}
	for _, p := range []float64{c.TP1ClosePct, c.TP2ClosePct, c.TP3ClosePct} {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("close percentage %.4f out of range (0, 1)", p)
		}
	}
	if !(c.TP1R < c.TP2R && c.TP2R < c.TP3R) {
		return fmt.Errorf("tp multiples must be strictly increasing: %.2f, %.2f, %.2f",
			c.TP1R, c.TP2R, c.TP3R)
	}
	if c.TP1R <= 0 {
		return fmt.Errorf("tp1_r must be positive, got %.2f", c.TP1R)
	}
	if c.ImmediateR <= 0 || c.ProximityR <= 0 || c.ImmediateR > c.ProximityR {
		return fmt.Errorf("need 0 < immediate_r <= proximity_r, got %.3f, %.3f",
			c.ImmediateR, c.ProximityR)
	}
	if c.MaxWaitHours <= 0 {
		return fmt.Errorf("max_wait_hours must be positive")
	}
	if !(c.DailyWarnPct < c.DailyReducePct && c.DailyReducePct < c.DailyHaltPct) {
		return fmt.Errorf("daily thresholds must be strictly increasing: %.2f, %.2f, %.2f",
			c.DailyWarnPct, c.DailyReducePct, c.DailyHaltPct)
	}
	if c.TotalEmergencyPct >= c.TotalHaltPct {
		return fmt.Errorf("total_emergency_pct %.2f must be below total_halt_pct %.2f",
			c.TotalEmergencyPct, c.TotalHaltPct)
	}
	if c.ProgressiveTrail {
		if c.ProgressiveTriggerR <= c.TP1R || c.ProgressiveTriggerR >= c.TP2R {
			return fmt.Errorf("progressive_trigger_r %.2f must lie between tp1_r and tp2_r",
				c.ProgressiveTriggerR)
		}
	}
	if c.MaxOpenPositions <= 0 || c.MaxTradesPerDay <= 0 {
		return fmt.Errorf("position and trade limits must be positive")
	}
	return nil
}

// Save writes the configuration, YAML or JSON by extension.
func (c Strategy) Save(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
