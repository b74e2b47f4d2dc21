package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipguard/pipguard/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate strategy configuration files",
	Long: `Manage strategy configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  pipguard config init --output strategy.yaml
  pipguard config validate --file strategy.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "strategy.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.Save(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Created default configuration: %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Printf("Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Risk per trade: %.2f%% (reduced %.2f%%)\n", cfg.RiskPct*100, cfg.ReducedRiskPct*100)
	fmt.Printf("  Exit ladder: %.1fR/%.0f%%  %.1fR/%.0f%%  %.1fR/%.0f%%\n",
		cfg.TP1R, cfg.TP1ClosePct*100, cfg.TP2R, cfg.TP2ClosePct*100, cfg.TP3R, cfg.TP3ClosePct*100)
	fmt.Printf("  Daily drawdown: warn %.1f%%, reduce %.1f%%, halt %.1f%%\n",
		cfg.DailyWarnPct, cfg.DailyReducePct, cfg.DailyHaltPct)
	fmt.Printf("  Total drawdown: emergency %.1f%%, terminal %.1f%%\n",
		cfg.TotalEmergencyPct, cfg.TotalHaltPct)
	return nil
}
