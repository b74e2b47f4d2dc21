package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/internal/logging"
	"github.com/pipguard/pipguard/journal"
	"github.com/pipguard/pipguard/replay"
	"github.com/pipguard/pipguard/signal"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the strategy over historical bar data",
	Long: `Replay runs the full trade lifecycle over a directory of bar CSVs
(plain, .xz-compressed, or zipped) with a signal file, producing the
same decisions the live loop would have made. Output is deterministic:
the same input always yields the same ledger.

Example:
  pipguard replay --bars ./data --signals signals.yaml --balance 100000 \
    --out ./replay-out`,
	RunE: runReplay,
}

var (
	rpBarsDir     string
	rpSignalsPath string
	rpConfigPath  string
	rpBalance     float64
	rpOutDir      string
	rpDBPath      string
	rpLogLevel    string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&rpBarsDir, "bars", "b", "", "directory of bar CSV files (required)")
	replayCmd.Flags().StringVarP(&rpSignalsPath, "signals", "s", "", "signal file (required)")
	replayCmd.Flags().StringVarP(&rpConfigPath, "config", "c", "", "strategy config file (defaults apply if omitted)")
	replayCmd.Flags().Float64Var(&rpBalance, "balance", 100_000, "starting balance")
	replayCmd.Flags().StringVarP(&rpOutDir, "out", "o", "", "CSV journal output directory (disabled if empty)")
	replayCmd.Flags().StringVarP(&rpDBPath, "db", "d", "", "SQLite journal path (disabled if empty)")
	replayCmd.Flags().StringVar(&rpLogLevel, "log-level", "warn", "log level during replay")

	replayCmd.MarkFlagRequired("bars")
	replayCmd.MarkFlagRequired("signals")
}

func runReplay(cmd *cobra.Command, args []string) error {
	log := logging.Setup(logging.Config{Level: rpLogLevel})

	cfg := config.Default()
	if rpConfigPath != "" {
		var err error
		cfg, err = config.Load(rpConfigPath)
		if err != nil {
			return err
		}
	}

	bars, err := replay.LoadDir(rpBarsDir)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	var jr journal.Journal = journal.Nop{}
	switch {
	case rpDBPath != "":
		jr, err = journal.NewSQLite(rpDBPath)
	case rpOutDir != "":
		jr, err = journal.NewCSV(rpOutDir)
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jr.Close()

	engine := replay.NewEngine(cfg, bars, signal.NewFileProvider(rpSignalsPath), rpBalance, jr, log)
	summary, err := engine.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Replay complete: %d instruments, %d days\n", len(bars), summary.Days)
	fmt.Printf("  Balance:   %.2f -> %.2f (%+.2f%%)\n", summary.InitialBalance, summary.FinalBalance, summary.ReturnPct)
	fmt.Printf("  Equity:    %.2f\n", summary.FinalEquity)
	fmt.Printf("  Trades:    %d closed, %d partial exits\n", summary.Trades, summary.Partials)
	fmt.Printf("  Governor:  %s, %d profitable days\n", summary.GovernorState, summary.ProfitableDays)
	return nil
}
