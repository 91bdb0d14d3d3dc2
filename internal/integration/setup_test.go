package integration

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"voltfarm/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

var seq atomic.Int64

// uniqueID returns a user id unlikely to collide with earlier runs on the same database.
func uniqueID() int64 {
	return time.Now().UnixNano()/1000%1_000_000_000_000 + seq.Add(1)
}

func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Apply(context.Background(), pool, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}
