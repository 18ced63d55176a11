// Package dbtest starts a throwaway pgvector-enabled PostgreSQL for
// integration tests.
package dbtest

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/abhisek/qforge/internal/platform/database"
)

// Image ships PostgreSQL 16 with the vector extension preinstalled.
const Image = "pgvector/pgvector:pg16"

// New starts a container and returns a connected DB with pgvector enabled.
// The test is skipped under -short or when no container runtime is usable.
func New(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("qforge"),
		postgres.WithUsername("qforge"),
		postgres.WithPassword("qforge"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := database.New(ctx, dsn, 4, 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.EnsureVectorExtension(ctx); err != nil {
		t.Fatalf("enable pgvector: %v", err)
	}

	return db
}
