// Package main is the etl-flows command: run, list and schedule the staging
// and mart flows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/logger"
)

var (
	settings  *config.Settings
	log       logger.Logger
	configDir string
)

var rootCmd = &cobra.Command{
	Use:           "etl-flows",
	Short:         "RMM, lifecycle and hardware asset staging flows",
	Long:          "etl-flows extracts RMM, Windows lifecycle and hardware asset data, reshapes it into flat tables and loads it into object storage and Postgres.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return err
		}
		if configDir != "" {
			s.ConfigDir = configDir
		}
		l, err := logger.New(logger.Config{Level: s.LogLevel})
		if err != nil {
			return err
		}
		settings, log = s, l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory of flow task documents (overrides ETL_CONFIG_DIR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
