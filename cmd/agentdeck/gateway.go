package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentdeck/internal/gateway"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the built-in development gateway",
	Long: `Runs a self-contained gateway with a scripted agent behind it, so the
chat client can be tried without a real agent backend:

  agentdeck gateway &
  AGENTDECK_TOKEN=dev-token agentdeck chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := gateway.NewServer(gateway.Config{
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Token:          cfg.Server.Token,
		}, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		}
	},
}
