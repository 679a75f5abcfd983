package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eld-planner/internal/config"
	"eld-planner/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "eldplanner",
		Short: "HOS-compliant trip planning and ELD daily logs",
		Long: `eldplanner plans truck trips under the FMCSA hours-of-service rules and
produces the duty events and daily log sheets for each day of the trip.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")
	root.AddCommand(newServeCmd(), newPlanCmd())
	return root
}

// loadConfig loads the environment and builds the logger, letting --log-level
// override LOG_LEVEL.
func loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	level := cfg.LogLevel
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	lggr, err := logger.New(level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, lggr, nil
}
