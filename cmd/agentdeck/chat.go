package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentdeck/internal/api"
	"agentdeck/internal/chat"
	"agentdeck/internal/realtime"
	"agentdeck/internal/session"
	"agentdeck/internal/store"
	"agentdeck/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

// runChat wires every component and hands control to the terminal UI.
func runChat(ctx context.Context) error {
	client := api.NewClient(cfg.Gateway.BaseURL, logger)

	token := cfg.Auth.Token
	if token == "" && cfg.Auth.Email != "" && cfg.Auth.Password != "" {
		loginCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Gateway.Timeout)*time.Second)
		user, err := client.Login(loginCtx, cfg.Auth.Email, cfg.Auth.Password)
		cancel()
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		logger.Info("logged in", zap.String("email", user.Email))
		token = client.CurrentCredential()
	}
	if token == "" {
		return fmt.Errorf("no credential: set auth.token, AGENTDECK_TOKEN, or auth.email plus AGENTDECK_PASSWORD")
	}
	client.SetCredential(token)

	var cache store.Cache
	if cfg.Cache.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o700); err != nil {
			logger.Warn("cache directory unavailable, continuing without cache", zap.Error(err))
		} else {
			c, err := store.NewSQLiteCache(cfg.Cache.Path)
			if err != nil {
				logger.Warn("cache unavailable, continuing without cache", zap.Error(err))
			} else {
				cache = c
				defer cache.Close()
			}
		}
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr)
	}

	router := realtime.NewRouter(logger)
	conn := realtime.NewManager(realtime.Options{
		URL:              cfg.WSURL(),
		Credential:       client.CurrentCredential,
		Logger:           logger,
		BaseDelay:        time.Duration(cfg.Realtime.BaseDelayMS) * time.Millisecond,
		MaxDelay:         time.Duration(cfg.Realtime.MaxDelayMS) * time.Millisecond,
		HandshakeTimeout: time.Duration(cfg.Realtime.HandshakeTimeout) * time.Second,
	}, router)
	defer conn.Disconnect()

	coord := session.NewCoordinator(client, cache, logger)

	var sink chat.TranscriptSink
	if cache != nil {
		sink = store.NewSink(cache, logger)
	}

	orch := chat.NewOrchestrator(conn, coord, sink, logger)
	orch.BindTo(router)

	return ui.Run(ui.Deps{
		Client:   client,
		Conn:     conn,
		Orch:     orch,
		Sessions: coord,
		Logger:   logger,
		Options:  ui.Options{Markdown: cfg.UI.Markdown},
	})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
