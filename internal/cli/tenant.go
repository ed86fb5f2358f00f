package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (r *runner) tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tenant",
		Aliases: []string{"org"},
		Short:   "Manage tenants",
	}

	var name, slug string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			t, err := env.Tenants.Create(cmd.Context(), name, slug)
			if err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), t, func(w io.Writer) {
				fmt.Fprintf(w, "created tenant %s (%s)\n", t.Slug, t.ID)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Display name")
	create.Flags().StringVar(&slug, "slug", "", "URL slug")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("slug")

	get := &cobra.Command{
		Use:   "get <slug>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := r.environment(cmd.Context())
			if err != nil {
				return err
			}
			t, err := env.Tenants.GetBySlug(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return r.print(cmd.OutOrStdout(), t, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
			})
		},
	}

	cmd.AddCommand(create, get)
	return cmd
}
