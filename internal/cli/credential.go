package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

func (r *runner) credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connection",
		Aliases: []string{"credential"},
		Short:   "Inspect and manage a tenant's upstream connection",
	}
	cmd.AddCommand(r.connectionSetCmd(), r.connectionStatusCmd(), r.connectionDisconnectCmd())
	return cmd
}

// connectionSetCmd stores a token pair obtained out of band, e.g. from the
// provider's OAuth playground.
func (r *runner) connectionSetCmd() *cobra.Command {
	var (
		tenantSlug, realmID       string
		accessToken, refreshToken string
		accessTTL, refreshTTL     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a token pair for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			t, err := env.Tenants.GetBySlug(cmd.Context(), tenantSlug)
			if err != nil {
				return fmt.Errorf("tenant %q: %w", tenantSlug, err)
			}

			now := time.Now().UTC()
			accessExp := now.Add(accessTTL)
			cred := &models.Credential{
				TenantID:             t.ID,
				RealmID:              realmID,
				AccessToken:          accessToken,
				RefreshToken:         refreshToken,
				AccessTokenExpiresAt: &accessExp,
				Status:               models.ConnectionActive,
				IsActive:             true,
			}
			if refreshTTL > 0 {
				refreshExp := now.Add(refreshTTL)
				cred.RefreshTokenExpiresAt = &refreshExp
			}
			if err := env.Credentials.Upsert(cmd.Context(), cred); err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), map[string]string{"tenant": t.Slug, "realmId": realmID}, func(w io.Writer) {
				fmt.Fprintf(w, "connected %s to realm %s\n", t.Slug, realmID)
			})
		},
	}
	cmd.Flags().StringVar(&tenantSlug, "tenant", "", "Tenant slug")
	cmd.Flags().StringVar(&realmID, "realm", "", "Upstream company (realm) id")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", time.Hour, "Access token lifetime")
	cmd.Flags().DurationVar(&refreshTTL, "refresh-ttl", 100*24*time.Hour, "Refresh token lifetime")
	for _, f := range []string{"tenant", "realm", "refresh-token"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (r *runner) connectionStatusCmd() *cobra.Command {
	var tenantSlug string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connection status and token validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			t, err := env.Tenants.GetBySlug(cmd.Context(), tenantSlug)
			if err != nil {
				return fmt.Errorf("tenant %q: %w", tenantSlug, err)
			}
			info, err := env.Tokens.Connection(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), info, func(w io.Writer) {
				fmt.Fprintf(w, "connected: %t\nstatus:    %s\n", info.Connected, info.Status)
				if info.RealmID != "" {
					fmt.Fprintf(w, "realm:     %s\nvalidity:  %s\n", info.RealmID, info.Validity)
				}
			})
		},
	}
	cmd.Flags().StringVar(&tenantSlug, "tenant", "", "Tenant slug")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func (r *runner) connectionDisconnectCmd() *cobra.Command {
	var tenantSlug string
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect a tenant; tokens are kept but never used again",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			t, err := env.Tenants.GetBySlug(cmd.Context(), tenantSlug)
			if err != nil {
				return fmt.Errorf("tenant %q: %w", tenantSlug, err)
			}
			if err := env.Tokens.Disconnect(cmd.Context(), t.ID); err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), map[string]string{"disconnected": t.Slug}, func(w io.Writer) {
				fmt.Fprintf(w, "disconnected %s\n", t.Slug)
			})
		},
	}
	cmd.Flags().StringVar(&tenantSlug, "tenant", "", "Tenant slug")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
