package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-fx/internal/auth"
	"github.com/nerrad567/gray-logic-fx/internal/infrastructure/config"
)

type tokenOptions struct {
	ClientID string
	Role     string
	PID      int
	UID      int
	TTL      int
}

// newTokenCommand mints a client JWT signed with the configured secret.
func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed client token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			ttl := opts.TTL
			if ttl == 0 {
				ttl = cfg.Security.JWT.AccessTokenTTL
			}

			token, err := auth.GenerateToken(auth.Identity{
				ClientID: opts.ClientID,
				Role:     auth.Role(opts.Role),
				PID:      opts.PID,
				UID:      opts.UID,
			}, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client identity (token subject)")
	cmd.Flags().StringVar(&opts.Role, "role", string(auth.RoleClient), "role: client or admin")
	cmd.Flags().IntVar(&opts.PID, "pid", 0, "client process ID")
	cmd.Flags().IntVar(&opts.UID, "uid", 0, "client user ID")
	cmd.Flags().IntVar(&opts.TTL, "ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	cmd.MarkFlagRequired("client") //nolint:errcheck // Flag is defined above

	return cmd
}
