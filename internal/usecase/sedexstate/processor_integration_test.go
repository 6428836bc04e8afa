//go:build integration

package sedexstate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/repo/postgres"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	schema, err := os.ReadFile("../../adapter/repo/postgres/schema.sql")
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

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return pool
}

type noopEscalator struct{ called int }

func (e *noopEscalator) Escalate(context.Context) error {
	e.called++
	return nil
}

func strp(s string) *string { return &s }

func seedJobAndMessages(t *testing.T, pool *pgxpool.Pool, jobID string, states []domain.SedexMessageState) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	jobs := postgres.NewSyncJobRepo(pool)
	require.NoError(t, jobs.Create(ctx, domain.SyncJob{
		JobID: jobID, JobType: domain.JobTypeFull, JobState: domain.JobSending, CreatedAt: now, UpdatedAt: now,
	}))
	for i, st := range states {
		_, err := pool.Exec(ctx,
			`INSERT INTO sedex_messages (message_id, job_id, state, created_at, updated_at) VALUES ($1,$2,$3,$4,$4)`,
			jobIDMessageName(jobID, i), jobID, string(st), now)
		require.NoError(t, err)
	}
}

func jobIDMessageName(jobID string, i int) string {
	return jobID + "-m" + string(rune('0'+i))
}

func TestProcessor_CompletesJobWhenAllSuccessful(t *testing.T) {
	pool := newTestPool(t)
	seedJobAndMessages(t, pool, "job-s5", []domain.SedexMessageState{domain.SedexSuccessful, domain.SedexSuccessful, domain.SedexSuccessful})

	p := NewProcessor(pool, &noopEscalator{})
	env := domain.Envelope{MessageCategory: domain.CategorySedexEvent, JobID: strp("job-s5")}
	require.NoError(t, p.Process(context.Background(), env))

	jobs := postgres.NewSyncJobRepo(pool)
	job, err := jobs.FindByJobID(context.Background(), "job-s5")
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.JobState)
}

func TestProcessor_FailsJobWhenAnyFailed(t *testing.T) {
	pool := newTestPool(t)
	seedJobAndMessages(t, pool, "job-s6", []domain.SedexMessageState{domain.SedexSuccessful, domain.SedexSuccessful, domain.SedexFailed})

	esc := &noopEscalator{}
	p := NewProcessor(pool, esc)
	env := domain.Envelope{MessageCategory: domain.CategorySedexEvent, JobID: strp("job-s6")}
	require.NoError(t, p.Process(context.Background(), env))

	jobs := postgres.NewSyncJobRepo(pool)
	job, err := jobs.FindByJobID(context.Background(), "job-s6")
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.JobState)
	require.Equal(t, 1, esc.called)
}

func TestProcessor_RejectsRegressionOnTerminalJob(t *testing.T) {
	pool := newTestPool(t)
	seedJobAndMessages(t, pool, "job-term", []domain.SedexMessageState{domain.SedexSuccessful, domain.SedexFailed})

	p := NewProcessor(pool, &noopEscalator{})
	env := domain.Envelope{MessageCategory: domain.CategorySedexEvent, JobID: strp("job-term")}
	require.NoError(t, p.Process(context.Background(), env))

	jobs := postgres.NewSyncJobRepo(pool)
	job, err := jobs.FindByJobID(context.Background(), "job-term")
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.JobState)

	// A late-redelivered event recomputing to COMPLETED must not regress FAILED.
	_, err = pool.Exec(context.Background(),
		`UPDATE sedex_messages SET state = $1 WHERE job_id = $2 AND state = $3`,
		string(domain.SedexSuccessful), "job-term", string(domain.SedexFailed))
	require.NoError(t, err)

	require.NoError(t, p.Process(context.Background(), env))

	job, err = jobs.FindByJobID(context.Background(), "job-term")
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.JobState)
}

func TestProcessor_MissingJobReturnsSyncJobNotFound(t *testing.T) {
	pool := newTestPool(t)
	p := NewProcessor(pool, &noopEscalator{})
	env := domain.Envelope{MessageCategory: domain.CategorySedexEvent, JobID: strp("missing")}
	err := p.Process(context.Background(), env)
	require.ErrorIs(t, err, domain.ErrSyncJobNotFound)
}
