package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

func (r *runner) keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"keys"},
		Short:   "Issue, rotate and revoke API keys",
	}
	cmd.AddCommand(r.keyCreateCmd(), r.keyListCmd(), r.keyRotateCmd(), r.keyRevokeCmd())
	return cmd
}

func (r *runner) keyCreateCmd() *cobra.Command {
	var (
		tenantSlug  string
		globalAdmin bool
		name        string
		endpoints   []string
		tier        string
		expiresIn   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalAdmin == (tenantSlug != "") {
				return fmt.Errorf("exactly one of --tenant or --global-admin is required")
			}
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}

			p := auth.CreateKeyParams{
				Name:        name,
				Type:        models.APIKeyTenant,
				Permissions: models.Permissions{Endpoints: endpoints, RateTier: models.RateLimitTier(tier)},
			}
			if globalAdmin {
				p.Type = models.APIKeyGlobalAdmin
			} else {
				t, err := env.Tenants.GetBySlug(cmd.Context(), tenantSlug)
				if err != nil {
					return fmt.Errorf("tenant %q: %w", tenantSlug, err)
				}
				p.TenantID = &t.ID
			}
			if expiresIn > 0 {
				at := time.Now().Add(expiresIn).UTC()
				p.ExpiresAt = &at
			}

			issued, err := env.Keys.Create(cmd.Context(), p)
			if err != nil {
				return err
			}
			return r.printIssued(cmd.OutOrStdout(), issued)
		},
	}
	cmd.Flags().StringVar(&tenantSlug, "tenant", "", "Tenant slug the key is bound to")
	cmd.Flags().BoolVar(&globalAdmin, "global-admin", false, "Issue an unbound global admin key")
	cmd.Flags().StringVar(&name, "name", "", "Key name")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "Allowed path patterns (default all)")
	cmd.Flags().StringVar(&tier, "tier", "", "Rate limit tier: standard, elevated or unlimited")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Key lifetime; zero never expires")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (r *runner) keyListCmd() *cobra.Command {
	var tenantSlug string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			t, err := env.Tenants.GetBySlug(cmd.Context(), tenantSlug)
			if err != nil {
				return fmt.Errorf("tenant %q: %w", tenantSlug, err)
			}
			keys, err := env.Keys.ListByTenant(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), keys, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPREFIX\tNAME\tSTATE")
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.ID, k.KeyPrefix, k.Name, keyState(k))
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&tenantSlug, "tenant", "", "Tenant slug")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func (r *runner) keyRotateCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Replace a key; the old one keeps working for the grace period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id: %w", err)
			}
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			issued, err := env.Keys.Rotate(cmd.Context(), id, grace)
			if err != nil {
				return err
			}
			return r.printIssued(cmd.OutOrStdout(), issued)
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "How long the old key stays valid")
	return cmd
}

func (r *runner) keyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a key immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id: %w", err)
			}
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			if err := env.Keys.Revoke(cmd.Context(), id); err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), map[string]string{"revoked": id.String()}, func(w io.Writer) {
				fmt.Fprintf(w, "revoked %s\n", id)
			})
		},
	}
}

func (r *runner) printIssued(w io.Writer, issued *auth.IssuedKey) error {
	return r.print(w, issued, func(w io.Writer) {
		fmt.Fprintf(w, "key id:  %s\n", issued.Key.ID)
		fmt.Fprintf(w, "secret:  %s\n", issued.Secret)
		fmt.Fprintln(w, "store the secret now; it cannot be shown again")
	})
}

func keyState(k models.APIKey) string {
	switch {
	case k.RevokedAt != nil:
		return "revoked"
	case k.GracePeriodEndsAt != nil:
		return "rotating until " + k.GracePeriodEndsAt.Format(time.RFC3339)
	case !k.IsActive:
		return "inactive"
	}
	return "active"
}
