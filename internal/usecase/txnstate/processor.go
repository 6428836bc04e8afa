// Package txnstate implements the Transaction State Processor: it consumes
// transaction-state events, upserts Transaction rows, lazily creates SyncJob
// rows, and escalates transaction failures into job state where applicable.
package txnstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/repo/postgres"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// Escalator is the subset of fullsync.Manager the processor needs to
// escalate the singleton full-sync cycle to FAILED when a FULL transaction's
// failure propagates to its SyncJob.
type Escalator interface {
	Escalate(ctx context.Context) error
}

// Processor consumes transaction-state events. Every message is processed
// within its own pgx transaction so that transaction-scoped repositories
// (bound to the in-flight pgx.Tx, not the pool) see a consistent snapshot;
// this is why the processor holds the pool directly rather than
// pool-scoped domain.TransactionRepository/domain.SyncJobRepository
// instances.
type Processor struct {
	pool      *pgxpool.Pool
	cache     *lru.Cache[string, domain.SyncJob]
	escalator Escalator
}

// NewProcessor constructs a Processor. cache is the process-local
// jobId->SyncJob accelerator, populated only on observed reads.
func NewProcessor(pool *pgxpool.Pool, cache *lru.Cache[string, domain.SyncJob], escalator Escalator) *Processor {
	return &Processor{pool: pool, cache: cache, escalator: escalator}
}

// Process dispatches a single parsed transaction-state envelope within its
// own database transaction, committed only on success. Non-TRANSACTION_EVENT
// envelopes and events missing a transactionId are silently ignored.
func (p *Processor) Process(ctx context.Context, env domain.Envelope) error {
	if env.MessageCategory != domain.CategoryTransactionEvent {
		return nil
	}
	if env.TransactionID == nil || *env.TransactionID == "" {
		return nil
	}
	txnID := *env.TransactionID

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=txnstate.Processor.Process transaction_id=%s begin: %w", txnID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	switch env.TransactionState {
	case domain.TxNew:
		err = p.handleNew(ctx, tx, env, txnID)
	case domain.TxFailed:
		err = p.handleFailed(ctx, tx, env, txnID)
	default:
		err = p.handleOther(ctx, tx, env, txnID)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=txnstate.Processor.Process transaction_id=%s commit: %w", txnID, err)
	}
	observability.TransactionStateTransitionsTotal.WithLabelValues(string(env.TransactionState)).Inc()
	return nil
}

// handleNew upserts the Transaction on NEW, lazily creating its owning
// SyncJob first when the envelope carries a jobId.
func (p *Processor) handleNew(ctx context.Context, tx pgx.Tx, env domain.Envelope, txnID string) error {
	var jobID *string
	if env.JobID != nil && *env.JobID != "" {
		if err := p.ensureSyncJob(ctx, tx, env); err != nil {
			return err
		}
		jobID = env.JobID
	}

	txns := postgres.NewTransactionRepo(tx)
	err := txns.Create(ctx, domain.Transaction{
		TransactionID: txnID,
		State:         domain.TxNew,
		JobID:         jobID,
		CreatedAt:     env.Timestamp,
		UpdatedAt:     env.Timestamp,
	})
	if errors.Is(err, domain.ErrConflict) {
		slog.Debug("transaction NEW redelivery dropped, prior row authoritative", slog.String("transaction_id", txnID))
		return nil
	}
	return err
}

// handleFailed runs the job-escalation step (setting the owning FULL
// SyncJob to FAILED_PROCESSING, and escalating the full-sync cycle), then
// falls through to the default upsert-if-present behavior.
func (p *Processor) handleFailed(ctx context.Context, tx pgx.Tx, env domain.Envelope, txnID string) error {
	if env.JobID != nil && *env.JobID != "" {
		jobs := postgres.NewSyncJobRepo(tx)
		job, err := jobs.FindByJobID(ctx, *env.JobID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// No owning job observed yet; nothing to escalate.
		case err != nil:
			return fmt.Errorf("op=txnstate.Processor.handleFailed transaction_id=%s job_id=%s: %w", txnID, *env.JobID, err)
		case job.JobType == domain.JobTypeFull:
			if err := jobs.UpdateState(ctx, *env.JobID, domain.JobFailedProcessing, env.Timestamp); err == nil {
				observability.SyncJobStateTransitionsTotal.WithLabelValues(string(domain.JobFailedProcessing)).Inc()
			} else if !errors.Is(err, domain.ErrIllegalFullSyncMove) {
				return fmt.Errorf("op=txnstate.Processor.handleFailed transaction_id=%s job_id=%s: %w", txnID, *env.JobID, err)
			}
			if p.escalator != nil {
				if err := p.escalator.Escalate(ctx); err != nil {
					slog.Debug("full-sync escalation not applicable", slog.String("job_id", *env.JobID), slog.Any("error", err))
				}
			}
		}
	}
	return p.handleOther(ctx, tx, env, txnID)
}

// handleOther upserts state=hdr.state for an existing Transaction, dropping
// the event silently if the transaction is unknown (its NEW event was lost
// or has not yet arrived).
func (p *Processor) handleOther(ctx context.Context, tx pgx.Tx, env domain.Envelope, txnID string) error {
	txns := postgres.NewTransactionRepo(tx)
	err := txns.UpdateState(ctx, txnID, env.TransactionState, env.Timestamp)
	if errors.Is(err, domain.ErrNotFound) {
		observability.TxnStateDroppedUnknownTotal.Inc()
		slog.Debug("transaction state event dropped, unknown transaction",
			slog.String("transaction_id", txnID), slog.String("state", string(env.TransactionState)))
		return nil
	}
	return err
}

// ensureSyncJob guarantees a SyncJob row exists for env.JobID, consulting
// the process-local cache first. The cache is populated only on observed
// reads, never on creation, so a second process sees the persisted row.
func (p *Processor) ensureSyncJob(ctx context.Context, tx pgx.Tx, env domain.Envelope) error {
	jobID := *env.JobID
	if _, ok := p.cache.Get(jobID); ok {
		return nil
	}

	jobs := postgres.NewSyncJobRepo(tx)
	job, err := jobs.FindByJobID(ctx, jobID)
	if err == nil {
		p.cache.Add(jobID, job)
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=txnstate.Processor.ensureSyncJob job_id=%s: %w", jobID, err)
	}

	created := domain.SyncJob{
		JobID:     jobID,
		JobType:   env.JobType,
		JobState:  domain.JobNew,
		CreatedAt: env.Timestamp,
		UpdatedAt: env.Timestamp,
	}
	if err := jobs.Create(ctx, created); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("op=txnstate.Processor.ensureSyncJob job_id=%s: %w", jobID, err)
	}
	return nil
}
