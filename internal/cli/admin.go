package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func (r *runner) adminTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Sign a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			if env.Admin == nil {
				return fmt.Errorf("ADMIN_JWT_SECRET is not configured")
			}
			signed, err := env.Admin.Issue(subject, ttl)
			if err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), map[string]string{"token": signed}, func(w io.Writer) {
				fmt.Fprintln(w, signed)
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
