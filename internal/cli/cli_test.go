package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
	"github.com/nikhilbhutani/ledgerbridge/internal/oauth"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
	"github.com/nikhilbhutani/ledgerbridge/internal/token"
)

type noRefresh struct{}

func (noRefresh) Refresh(context.Context, string) (*oauth.TokenSet, error) {
	return nil, assert.AnError
}

type fixture struct {
	env    *Env
	keys   *auth.MemoryKeyStore
	creds  *credential.MemoryStore
	closed bool
}

func newFixture() *fixture {
	f := &fixture{keys: auth.NewMemoryKeyStore(), creds: credential.NewMemoryStore()}
	f.env = &Env{
		Tenants:     tenant.NewService(tenant.NewMemoryRepository(), nil, 0),
		Keys:        auth.NewAuthenticator(f.keys, "lbk"),
		Credentials: f.creds,
		Tokens:      token.NewManager(f.creds, noRefresh{}),
		Admin:       auth.NewAdminAuth("test-secret"),
		Close:       func() { f.closed = true },
	}
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(func(context.Context) (*Env, error) { return f.env, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd(nil)
	assert.Equal(t, "ledgerctl", root.Use)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"tenant", "key", "connection", "admin-token"})
}

func TestTenantAndKeyLifecycle(t *testing.T) {
	f := newFixture()

	out, err := f.run(t, "tenant", "create", "--name", "Acme Inc", "--slug", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "created tenant acme")
	assert.True(t, f.closed)

	out, err = f.run(t, "--json", "key", "create", "--tenant", "acme", "--name", "ci", "--tier", "elevated")
	require.NoError(t, err)
	var issued auth.IssuedKey
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.True(t, strings.HasPrefix(issued.Secret, "lbk_"))
	assert.Equal(t, models.TierElevated, issued.Key.Permissions.RateTier)
	assert.Equal(t, []string{"*"}, issued.Key.Permissions.Endpoints)

	out, err = f.run(t, "key", "rotate", issued.Key.ID.String(), "--grace", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "secret:")

	out, err = f.run(t, "key", "list", "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "rotating until")
	assert.Contains(t, out, "active")

	_, err = f.run(t, "key", "revoke", issued.Key.ID.String())
	require.NoError(t, err)
	_, err = f.env.Keys.Validate(context.Background(), issued.Secret)
	assert.Error(t, err)
}

func TestKeyCreateBinding(t *testing.T) {
	f := newFixture()

	_, err := f.run(t, "key", "create", "--name", "x")
	assert.ErrorContains(t, err, "exactly one")

	_, err = f.run(t, "key", "create", "--name", "x", "--tenant", "ghost")
	assert.ErrorContains(t, err, "ghost")

	out, err := f.run(t, "--json", "key", "create", "--name", "ops", "--global-admin")
	require.NoError(t, err)
	var issued auth.IssuedKey
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.True(t, issued.Key.IsGlobalAdmin())
	assert.Nil(t, issued.Key.TenantID)
}

func TestConnectionCommands(t *testing.T) {
	f := newFixture()
	_, err := f.run(t, "tenant", "create", "--name", "Acme Inc", "--slug", "acme")
	require.NoError(t, err)

	out, err := f.run(t, "connection", "status", "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "connected: false")

	_, err = f.run(t, "connection", "set", "--tenant", "acme", "--realm", "9130", "--access-token", "at", "--refresh-token", "rt", "--access-ttl", "1h")
	require.NoError(t, err)

	out, err = f.run(t, "--json", "connection", "status", "--tenant", "acme")
	require.NoError(t, err)
	var info token.ConnectionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Connected)
	assert.Equal(t, "9130", info.RealmID)
	assert.Equal(t, oauth.Valid, info.Validity)

	_, err = f.run(t, "connection", "disconnect", "--tenant", "acme")
	require.NoError(t, err)

	acme, err := f.env.Tenants.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	cred, err := f.creds.GetCredential(context.Background(), acme.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionDisconnected, cred.Status)
	assert.False(t, cred.IsActive)
}

func TestAdminToken(t *testing.T) {
	f := newFixture()

	out, err := f.run(t, "admin-token", "--subject", "ops", "--ttl", time.Minute.String())
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	f.env.Admin = nil
	_, err = f.run(t, "admin-token")
	assert.ErrorContains(t, err, "ADMIN_JWT_SECRET")
}
