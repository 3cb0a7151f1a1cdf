package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/mickaelmarchal/exifstream/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	User     = "postgres"
	Password = "postgres"
	DBName   = "EXIFSTREAM_TEST_DB"
)

// SpawnPostgres starts a throwaway postgres container for the duration
// of the test and returns a database config pointing at it. The
// container is torn down automatically when the test completes.
func SpawnPostgres(t *testing.T) database.DatabaseConfig {
	ctx := context.Background()

	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14.1-alpine"),
		postgres.WithDatabase(DBName),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}

	t.Cleanup(func() {
		timeout := 5 * time.Second
		if err := postgresC.Stop(ctx, &timeout); err != nil {
			t.Logf("WARNING: failed to stop postgres container: %s", err)
		}
	})

	host, err := postgresC.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve postgres container host: %s", err)
	}

	port, err := postgresC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to resolve postgres container port: %s", err)
	}

	return database.DatabaseConfig{
		User:     User,
		Password: Password,
		Name:     DBName,
		Host:     host,
		Port:     port.Port(),
	}
}
