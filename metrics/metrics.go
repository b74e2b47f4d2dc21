// Package metrics exposes the Prometheus series the live loop updates:
//
//	pipguard_trades_total{result}        - closed trades by result (win|loss|flat)
//	pipguard_exits_total{reason,side}    - exits split by reason and side
//	pipguard_partials_total{level}       - partial exits by ladder level
//	pipguard_setups_total{outcome}       - queued setups by terminal outcome
//	pipguard_equity_usd                  - current equity snapshot
//	pipguard_balance_usd                 - current balance snapshot
//	pipguard_daily_drawdown_pct          - drawdown vs. prior-day baseline
//	pipguard_total_drawdown_pct          - drawdown vs. initial balance
//	pipguard_governor_state              - 0 NORMAL .. 4 TERMINAL
//	pipguard_open_positions              - open position count
//	pipguard_broker_errors_total{op}     - gateway call failures
//
// Served at /metrics in Prometheus text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipguard_trades_total",
			Help: "Closed trades by result",
		},
		[]string{"result"}, // win|loss|flat
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipguard_exits_total",
			Help: "Exits split by reason and side",
		},
		[]string{"reason", "side"},
	)

	partials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipguard_partials_total",
			Help: "Partial exits by ladder level",
		},
		[]string{"level"},
	)

	setups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipguard_setups_total",
			Help: "Queued setups by terminal outcome",
		},
		[]string{"outcome"},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipguard_equity_usd",
			Help: "Equity in USD",
		},
	)

	balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipguard_balance_usd",
			Help: "Balance in USD",
		},
	)

	dailyDD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipguard_daily_drawdown_pct",
			Help: "Drawdown vs. prior-day closing equity, percent",
		},
	)

	totalDD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipguard_total_drawdown_pct",
			Help: "Drawdown vs. initial balance, percent",
		},
	)

	governorState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipguard_governor_state",
			Help: "Governor state: 0 NORMAL, 1 WARN, 2 REDUCE, 3 HALT, 4 TERMINAL",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipguard_open_positions",
			Help: "Open position count",
		},
	)

	brokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipguard_broker_errors_total",
			Help: "Gateway call failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(trades, exits, partials, setups)
	prometheus.MustRegister(equity, balance, dailyDD, totalDD)
	prometheus.MustRegister(governorState, openPositions, brokerErrors)
}

func RecordTrade(result string)             { trades.WithLabelValues(result).Inc() }
func RecordExit(reason, side string)        { exits.WithLabelValues(reason, side).Inc() }
func RecordPartial(level string)            { partials.WithLabelValues(level).Inc() }
func RecordSetup(outcome string)            { setups.WithLabelValues(outcome).Inc() }
func SetEquity(v float64)                   { equity.Set(v) }
func SetBalance(v float64)                  { balance.Set(v) }
func SetDrawdown(daily, total float64)      { dailyDD.Set(daily); totalDD.Set(total) }
func SetGovernorState(s int)                { governorState.Set(float64(s)) }
func SetOpenPositions(n int)                { openPositions.Set(float64(n)) }
func RecordBrokerError(op string)           { brokerErrors.WithLabelValues(op).Inc() }

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler { return promhttp.Handler() }

// Serve starts the metrics endpoint on addr. It blocks; run it in its own
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
