package testsuite

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

const (
	postgresPort  = "5432/tcp"
	postgresImage = "postgres"
	postgresTag   = "16-alpine"
	postgresUser  = "bingo"
	postgresPass  = "bingo"
	postgresDB    = "bingo"
)

// NewPostgres starts a Postgres container and returns its connection string and an open
// pool. Skips like New.
func NewPostgres(t *testing.T) (context.Context, string, *pgxpool.Pool) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping docker-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}
	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: postgresImage,
		Tag:        postgresTag,
		Env: []string{
			"POSTGRES_USER=" + postgresUser,
			"POSTGRES_PASSWORD=" + postgresPass,
			"POSTGRES_DB=" + postgresDB,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}
	_ = resource.Expire(expireSeconds)

	connStr := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		postgresUser, postgresPass, resource.GetHostPort(postgresPort), postgresDB)
	pool.MaxWait = maxWaitDuration

	var db *pgxpool.Pool
	if err = pool.Retry(func() error {
		if db == nil {
			if db, err = pgxpool.New(ctx, connStr); err != nil {
				return err
			}
		}
		return db.Ping(ctx)
	}); err != nil {
		_ = pool.Purge(resource)
		t.Fatalf("could not connect to postgres: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		if err := pool.Purge(resource); err != nil {
			t.Logf("could not purge resource: %v", err)
		}
	})

	return ctx, connStr, db
}
