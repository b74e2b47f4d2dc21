package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipguard/pipguard/broker/oanda"
	"github.com/pipguard/pipguard/config"
	"github.com/pipguard/pipguard/internal/logging"
	"github.com/pipguard/pipguard/journal"
	"github.com/pipguard/pipguard/live"
	sig "github.com/pipguard/pipguard/signal"
	"github.com/pipguard/pipguard/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trading loop against an OANDA account",
	Long: `Run polls prices for the configured instruments, feeds signals through
the entry queue, manages partial exits, and lets the risk governor judge
the book every cycle. Broker credentials come from the environment
(OANDA_TOKEN, OANDA_ACCOUNT_ID, OANDA_ENV) or a .env file.

Example:
  pipguard run --config strategy.yaml --signals signals.yaml \
    --instruments EUR_USD,GBP_USD,XAU_USD --journal trades.sqlite`,
	RunE: runLive,
}

var (
	runConfigPath  string
	runSignalsPath string
	runInstruments string
	runStatePath   string
	runJournalPath string
	runLogFile     string
	runLogLevel    string
	runPoll        time.Duration
	runMetricsAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "strategy config file (defaults apply if omitted)")
	runCmd.Flags().StringVarP(&runSignalsPath, "signals", "s", "signals.yaml", "signal file maintained by the analysis process")
	runCmd.Flags().StringVarP(&runInstruments, "instruments", "i", "", "comma-separated instrument list (required)")
	runCmd.Flags().StringVar(&runStatePath, "state", "pipguard-state.json", "state snapshot path")
	runCmd.Flags().StringVarP(&runJournalPath, "journal", "j", "pipguard.sqlite", "SQLite journal path")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "log file (stderr only if empty)")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&runPoll, "poll", 15*time.Second, "poll interval")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics", "", "prometheus listen address, e.g. :9100 (disabled if empty)")

	runCmd.MarkFlagRequired("instruments")
}

func runLive(cmd *cobra.Command, args []string) error {
	log := logging.Setup(logging.Config{Level: runLogLevel, File: runLogFile})

	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		cfg, err = config.Load(runConfigPath)
		if err != nil {
			return err
		}
	}

	ocfg, err := oanda.ConfigFromEnv()
	if err != nil {
		return err
	}
	gw := oanda.New(ocfg)

	jr, err := journal.NewSQLite(runJournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jr.Close()

	instruments := strings.Split(runInstruments, ",")
	for i := range instruments {
		instruments[i] = strings.TrimSpace(instruments[i])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, err := live.New(ctx, live.Options{
		Cfg:          cfg,
		Gateway:      gw,
		Provider:     sig.NewFileProvider(runSignalsPath),
		Journal:      jr,
		Store:        state.NewStore(runStatePath),
		Log:          log,
		Instruments:  instruments,
		PollInterval: runPoll,
		MetricsAddr:  runMetricsAddr,
	})
	if err != nil {
		return err
	}

	if err := orch.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
