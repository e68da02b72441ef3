package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agentdeck/internal/api"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange credentials for a gateway token",
	Long: `Logs in to the gateway and prints the issued token. The password is
read from the AGENTDECK_PASSWORD environment variable.

Export the printed token as AGENTDECK_TOKEN, or put it under auth.token in
the config file, and subsequent chat sessions skip the login step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := loginEmail
		if email == "" {
			email = cfg.Auth.Email
		}
		if email == "" {
			return fmt.Errorf("no email: pass --email or set auth.email")
		}
		if cfg.Auth.Password == "" {
			return fmt.Errorf("no password: set AGENTDECK_PASSWORD")
		}

		client := api.NewClient(cfg.Gateway.BaseURL, logger)
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Gateway.Timeout)*time.Second)
		defer cancel()

		user, err := client.Login(ctx, email, cfg.Auth.Password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Printf("Logged in as %s (%s)\n\n", user.Name, user.Email)
		fmt.Printf("export AGENTDECK_TOKEN=%s\n", client.CurrentCredential())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
}
