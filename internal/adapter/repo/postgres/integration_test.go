//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	schema, err := os.ReadFile("schema.sql")
	require.NoError(t, err)

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lgs"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return pool
}

func TestTransactionRepo_CreateAndFind(t *testing.T) {
	pool := newTestPool(t)
	repo := NewTransactionRepo(pool)
	now := time.Now().UTC()

	txn := domain.Transaction{TransactionID: "t1", State: domain.TxNew, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(context.Background(), txn))

	err := repo.Create(context.Background(), txn)
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := repo.FindByTransactionID(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, domain.TxNew, got.State)
}

func TestSyncJobRepo_RefusesTerminalRegression(t *testing.T) {
	pool := newTestPool(t)
	jobs := NewSyncJobRepo(pool)
	now := time.Now().UTC()

	job := domain.SyncJob{JobID: "j1", JobType: domain.JobTypeFull, JobState: domain.JobNew, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, jobs.Create(context.Background(), job))
	require.NoError(t, jobs.UpdateState(context.Background(), "j1", domain.JobCompleted, now))

	err := jobs.UpdateState(context.Background(), "j1", domain.JobFailed, now)
	require.ErrorIs(t, err, domain.ErrIllegalFullSyncMove)
}

func TestSedexMessageRepo_FindAllByJobID(t *testing.T) {
	pool := newTestPool(t)
	jobs := NewSyncJobRepo(pool)
	now := time.Now().UTC()
	require.NoError(t, jobs.Create(context.Background(), domain.SyncJob{JobID: "j2", JobType: domain.JobTypeFull, JobState: domain.JobSending, CreatedAt: now, UpdatedAt: now}))

	_, err := pool.Exec(context.Background(),
		`INSERT INTO sedex_messages (message_id, job_id, state, created_at, updated_at) VALUES ($1,$2,$3,$4,$4)`,
		"m1", "j2", string(domain.SedexSuccessful), now)
	require.NoError(t, err)

	repo := NewSedexMessageRepo(pool)
	msgs, err := repo.FindAllByJobID(context.Background(), "j2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, domain.SedexSuccessful, msgs[0].State)
}
