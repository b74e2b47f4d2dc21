package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipguard",
	Short: "A risk-governed FX trade lifecycle engine",
	Long: `Pipguard runs signals through a full trade lifecycle with a hard risk
budget: confluence-scaled sizing, an entry queue that waits for price,
staged partial exits, and a drawdown governor that can halt the account.

It provides:
  - Live trading against an OANDA v20 account
  - Deterministic historical replay over bar data
  - Weekend exposure trimming and gap auditing
  - CSV and SQLite trade journals
  - Prometheus metrics for the live loop`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}
