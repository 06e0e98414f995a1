package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/markd/internal/config"
	"github.com/MrSnakeDoc/markd/internal/identity"
)

type tokenResult struct {
	Owner     string     `json:"owner"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewTokenCommand mints a bearer token for an owner with the server secret.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <owner>",
		Short: "Issue a bearer token for an owner",
		Long: `Issue a bearer token signed with MARKD_JWT_SECRET. Export it as
MARKD_TOKEN for the bookmark commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signing, err := config.LoadSigning()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ttl") {
				signing.TokenTTL = ttl
			}

			authority, err := identity.NewHMAC(signing.JWTSecret, signing.TokenTTL)
			if err != nil {
				return err
			}
			token, err := authority.Issue(args[0])
			if err != nil {
				return err
			}

			res := tokenResult{Owner: args[0], Token: token}
			if signing.TokenTTL > 0 {
				exp := time.Now().Add(signing.TokenTTL).UTC().Truncate(time.Second)
				res.ExpiresAt = &exp
			}
			out := newPrinter(rootOpts, cmd)
			if out.json() {
				return out.encode(res)
			}
			out.linef("%s", token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 = no expiry; default MARKD_TOKEN_TTL)")
	return cmd
}
