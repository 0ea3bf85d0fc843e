package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"credential-lifecycle/internal/db"
	"credential-lifecycle/internal/db/migrate"

	"github.com/stretchr/testify/require"
)

// TestPostgresRepository runs against DATABASE_URL and is skipped when it is unset.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	_, err := migrate.Run(dsn, migrate.Up)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := db.Open(ctx, dsn, db.PoolConfig{MaxOpenConns: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	runRepositoryContract(t, func(t *testing.T) Repository { return NewPostgresRepository(conn) })
}
