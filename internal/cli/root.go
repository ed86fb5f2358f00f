package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

// Env is what the operator commands act on. It is opened lazily so that
// --help works without a database.
type Env struct {
	Tenants     *tenant.Service
	Keys        *auth.Authenticator
	Credentials credential.Store
	Tokens      *token.Manager
	Admin       *auth.AdminAuth
	Close       func()
}

type Opener func(ctx context.Context) (*Env, error)

type globalFlags struct {
	JSON bool
}

type runner struct {
	open  Opener
	env   *Env
	flags globalFlags
}

// NewRootCmd builds the ledgerctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	r := &runner{open: open}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate a ledgerbridge deployment",
		Long: `ledgerctl manages tenants, API keys and upstream connections directly
against the configured store.

Examples:
  # Create a tenant and a key for it
  ledgerctl tenant create --name "Acme Inc" --slug acme
  ledgerctl key create --tenant acme --name ci

  # Mint a short-lived admin token for the /v1/admin API
  ledgerctl admin-token --subject ops --ttl 1h`,
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if r.env != nil && r.env.Close != nil {
				r.env.Close()
			}
		},
	}
	root.PersistentFlags().BoolVar(&r.flags.JSON, "json", false, "Output in JSON format")

	root.AddCommand(
		r.tenantCmd(),
		r.keyCmd(),
		r.credentialCmd(),
		r.adminTokenCmd(),
	)
	return root
}

func (r *runner) environment(ctx context.Context) (*Env, error) {
	if r.env != nil {
		return r.env, nil
	}
	env, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	r.env = env
	return env, nil
}

// print writes v as indented JSON under --json, otherwise calls text.
func (r *runner) print(w io.Writer, v interface{}, text func(io.Writer)) error {
	if r.flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
