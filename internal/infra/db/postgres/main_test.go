//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("vpnbot"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("could not start postgres container: %v. Is Docker running?", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		log.Fatalf("connection string: %v", err)
	}
	testPool, err = Connect(ctx, dsn, 5)
	if err != nil {
		_ = container.Terminate(ctx)
		log.Fatalf("unable to connect to test database: %v", err)
	}
	if err := Migrate(testPool); err != nil {
		_ = container.Terminate(ctx)
		log.Fatalf("could not apply migrations: %v", err)
	}

	exitCode := m.Run()

	testPool.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("could not stop postgres container: %v", err)
	}
	os.Exit(exitCode)
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE users, vpn_configs, invoices RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("Failed to clean up database: %v", err)
	}
}
