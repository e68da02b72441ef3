package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentdeck/internal/config"
	"agentdeck/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Loaded in PersistentPreRunE for every subcommand.
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "agentdeck - terminal client for coding-agent chat gateways",
	Long: `agentdeck is a terminal front end for coding-agent chat gateways.

It keeps a realtime websocket session to the gateway, streams agent replies
token by token, survives disconnects with queued sends and exponential
backoff, and resumes prior conversations per agent.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		mgr, err := config.NewConfigManager(path)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := mgr.Load(ctx); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = mgr.Get(ctx)
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := mgr.Validate(ctx); err != nil {
			return err
		}

		logger, err = logging.New(logging.Options{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch the interactive chat.
		return runChat(cmd.Context())
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/agentdeck/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(loginCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
