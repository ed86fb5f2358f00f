package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/ledgerbridge/internal/audit"
	"github.com/nikhilbhutani/ledgerbridge/internal/auth"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
	"github.com/nikhilbhutani/ledgerbridge/internal/credential"
	"github.com/nikhilbhutani/ledgerbridge/internal/database"
	"github.com/nikhilbhutani/ledgerbridge/internal/tenant"
)

// Backend bundles the persistence layer selected by STORE_BACKEND. DB is nil
// on the memory backend.
type Backend struct {
	DB          *pgxpool.Pool
	Tenants     tenant.Repository
	Credentials credential.Store
	Keys        auth.KeyStore
	AuditSink   audit.Sink
}

// OpenBackend connects the configured stores. With migrate set, pending
// migrations are applied before the stores are returned.
func OpenBackend(ctx context.Context, cfg *config.Config, migrate bool) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return &Backend{
			Tenants:     tenant.NewMemoryRepository(),
			Credentials: credential.NewMemoryStore(),
			Keys:        auth.NewMemoryKeyStore(),
			AuditSink:   audit.NewMemorySink(),
		}, nil
	case config.StorePostgres:
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.RunMigrations(ctx, db, database.MigrationSource(cfg.Database.MigrationsPath)); err != nil {
				db.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return &Backend{
			DB:          db,
			Tenants:     tenant.NewPostgresRepository(db),
			Credentials: credential.NewPostgresStore(db),
			Keys:        auth.NewPostgresKeyStore(db),
			AuditSink:   audit.NewPostgresSink(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (b *Backend) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
}
