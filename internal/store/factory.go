package store

import (
	"context"
	"fmt"
	"time"

	mydb "github.com/TimurManjosov/chainrules/internal/db"
)

const pingTimeout = 5 * time.Second

// NewStore creates a new store based on the given store type.
// Supported types: "memory", "postgres". The postgres store creates its
// schema on first use.
func NewStore(ctx context.Context, storeType, dbDSN string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, dbDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := mydb.Ping(ctx, pool, pingTimeout); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		ps := NewPostgresStore(pool)
		if err := ps.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
