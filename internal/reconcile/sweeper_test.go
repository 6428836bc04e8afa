package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

type fakeJobRepo struct {
	domain.SyncJobRepository
	stuck []domain.SyncJob
}

func (f *fakeJobRepo) FindStuck(_ context.Context, _ domain.JobState, _ time.Time) ([]domain.SyncJob, error) {
	return f.stuck, nil
}

type fakeTxnRepo struct {
	domain.TransactionRepository
	stuck []domain.Transaction
}

func (f *fakeTxnRepo) FindStuck(_ context.Context, _ domain.TransactionState, _ time.Time) ([]domain.Transaction, error) {
	return f.stuck, nil
}

func TestSweeper_LogsStuckRowsWithoutMutating(t *testing.T) {
	jobs := &fakeJobRepo{stuck: []domain.SyncJob{{JobID: "job-1", JobState: domain.JobSending, UpdatedAt: time.Now().Add(-time.Hour)}}}
	txns := &fakeTxnRepo{stuck: []domain.Transaction{{TransactionID: "txn-1", State: domain.TxNew, UpdatedAt: time.Now().Add(-time.Hour)}}}

	s := New(jobs, txns, 10*time.Minute, 10*time.Minute)
	s.sweepOnce(context.Background())
}

func TestSweeper_StartRegistersCronJob(t *testing.T) {
	jobs := &fakeJobRepo{}
	txns := &fakeTxnRepo{}
	s := New(jobs, txns, time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := s.Start(ctx, "@every 1h")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	cancel()
}
