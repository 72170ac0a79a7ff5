package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lalithlochan/clipforge/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		secret string
		issuer string
		userID string
		email  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		Long: `Sign a token with the gateway's JWT secret. Meant for local development
and smoke tests; production tokens come from the identity provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			issuerSvc, err := auth.NewIssuer(auth.Config{Secret: secret, Issuer: issuer, TTL: ttl})
			if err != nil {
				return err
			}
			token, err := issuerSvc.Issue(userID, email)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "clipforge"), "token issuer")
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the subject claim")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
