// Package reconcile implements a diagnostic, non-authoritative sweep that
// flags SyncJob and Transaction rows stuck short of a terminal state for
// longer than expected.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// Sweeper periodically logs SyncJob(SENDING) and Transaction(NEW) rows that
// have not advanced within their configured age thresholds. It never
// mutates state; the state processors remain the sole writers.
type Sweeper struct {
	jobs        domain.SyncJobRepository
	txns        domain.TransactionRepository
	stuckJobAge time.Duration
	stuckTxnAge time.Duration
}

// New constructs a Sweeper.
func New(jobs domain.SyncJobRepository, txns domain.TransactionRepository, stuckJobAge, stuckTxnAge time.Duration) *Sweeper {
	return &Sweeper{jobs: jobs, txns: txns, stuckJobAge: stuckJobAge, stuckTxnAge: stuckTxnAge}
}

// Start registers the sweep on a cron schedule and runs it until ctx is
// canceled.
func (s *Sweeper) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() { s.sweepOnce(ctx) })
	if err != nil {
		return nil, err
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("reconcile.sweeper")
	ctx, span := tracer.Start(ctx, "Sweeper.sweepOnce")
	defer span.End()

	jobCutoff := time.Now().Add(-s.stuckJobAge)
	txnCutoff := time.Now().Add(-s.stuckTxnAge)
	span.SetAttributes(
		attribute.Float64("reconcile.stuck_job_age_seconds", s.stuckJobAge.Seconds()),
		attribute.Float64("reconcile.stuck_txn_age_seconds", s.stuckTxnAge.Seconds()),
	)

	jobs, err := s.jobs.FindStuck(ctx, domain.JobSending, jobCutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("reconcile sweep failed to list stuck sync jobs", slog.Any("error", err))
	}
	for _, j := range jobs {
		slog.Warn("sync job stuck in SENDING past threshold",
			slog.String("job_id", j.JobID), slog.Time("updated_at", j.UpdatedAt))
	}

	txns, err := s.txns.FindStuck(ctx, domain.TxNew, txnCutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("reconcile sweep failed to list stuck transactions", slog.Any("error", err))
	}
	for _, t := range txns {
		slog.Warn("transaction stuck in NEW past threshold",
			slog.String("transaction_id", t.TransactionID), slog.Time("updated_at", t.UpdatedAt))
	}

	span.SetAttributes(
		attribute.Int("reconcile.stuck_jobs_found", len(jobs)),
		attribute.Int("reconcile.stuck_transactions_found", len(txns)),
	)
}
