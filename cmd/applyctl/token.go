package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(c *cli) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "token --owner OWNER_ID",
		Short: "Issue a bearer token for an owner",
		Long: `Issue a bearer token for an owner using the server's configuration
(config.yaml or APPLY_* environment variables), so the token is signed
with the same secret the server validates against.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid owner id %q: %w", owner, err)
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := jwtService.GenerateToken(cmd.Context(), ownerID)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id the token authenticates as")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
