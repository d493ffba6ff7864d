package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/pkg/logging"
)

var (
	configPath string
	logLevel   string
	appCfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "splitledger",
	Short: "Shared expense tracking backend",
	Long:  `splitledger serves the REST API for groups, expenses and payment reminders.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		slog.Debug("Config loaded", "path", configPath, "database", cfg.Database.Driver, "media", cfg.Media.Backend)
		appCfg = cfg
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SPLITLEDGER_CONFIG"),
		"path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "",
		"sets the log level, overriding the config file")
}
