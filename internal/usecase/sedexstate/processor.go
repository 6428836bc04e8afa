// Package sedexstate implements the Sedex Message State Processor: it
// consumes sedex-message-state events and decides whether the owning
// SyncJob transitions to COMPLETED or FAILED.
package sedexstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/repo/postgres"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// Escalator is the subset of fullsync.Manager the processor needs to
// escalate the singleton full-sync cycle to FAILED when a job it owns
// transitions to FAILED.
type Escalator interface {
	Escalate(ctx context.Context) error
}

// Processor consumes sedex-state events. It mirrors the Transaction State
// Processor's structure (own consumer, own transaction boundary) but keeps
// no cache: every message reloads the SyncJob and its SedexMessages fresh,
// since this is the sole authority on job completion.
type Processor struct {
	pool      *pgxpool.Pool
	escalator Escalator
}

// NewProcessor constructs a Processor.
func NewProcessor(pool *pgxpool.Pool, escalator Escalator) *Processor {
	return &Processor{pool: pool, escalator: escalator}
}

// Process loads the SyncJob named by env.JobID, reloads every SedexMessage
// it owns, and deterministically decides the job's next state: COMPLETED
// when the (non-empty) set is all SUCCESSFUL, FAILED when any is FAILED,
// otherwise unchanged. A SyncJob already in a terminal state is never
// regressed; the attempt is logged and counted instead.
func (p *Processor) Process(ctx context.Context, env domain.Envelope) error {
	if env.MessageCategory != domain.CategorySedexEvent {
		return nil
	}
	if env.JobID == nil || *env.JobID == "" {
		return nil
	}
	jobID := *env.JobID

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=sedexstate.Processor.Process job_id=%s begin: %w", jobID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs := postgres.NewSyncJobRepo(tx)
	job, err := jobs.FindByJobID(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=sedexstate.Processor.Process job_id=%s: %w", jobID, domain.ErrSyncJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("op=sedexstate.Processor.Process job_id=%s: %w", jobID, err)
	}

	messages := postgres.NewSedexMessageRepo(tx)
	msgs, err := messages.FindAllByJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("op=sedexstate.Processor.Process job_id=%s: %w", jobID, err)
	}

	next, changed := decideNextState(msgs)
	if !changed {
		return tx.Commit(ctx)
	}

	if job.JobState.IsTerminal() {
		observability.SyncJobTerminalRejectionsTotal.Inc()
		slog.Warn("rejected state change on terminal sync job",
			slog.String("job_id", jobID), slog.String("current_state", string(job.JobState)), slog.String("attempted_state", string(next)))
		return tx.Commit(ctx)
	}

	if err := jobs.UpdateState(ctx, jobID, next, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrIllegalFullSyncMove) {
			observability.SyncJobTerminalRejectionsTotal.Inc()
			slog.Warn("rejected state change, job became terminal concurrently", slog.String("job_id", jobID))
			return tx.Commit(ctx)
		}
		return fmt.Errorf("op=sedexstate.Processor.Process job_id=%s: %w", jobID, err)
	}
	observability.SyncJobStateTransitionsTotal.WithLabelValues(string(next)).Inc()

	if next == domain.JobFailed && p.escalator != nil {
		if err := p.escalator.Escalate(ctx); err != nil {
			slog.Debug("full-sync escalation not applicable", slog.String("job_id", jobID), slog.Any("error", err))
		}
	}

	return tx.Commit(ctx)
}

// decideNextState is a pure function of the current persisted SedexMessage
// set, safe under reordering and redelivery: COMPLETED requires a non-empty
// set all SUCCESSFUL; FAILED requires only one FAILED.
func decideNextState(msgs []domain.SedexMessage) (next domain.JobState, changed bool) {
	if len(msgs) == 0 {
		return "", false
	}
	anyFailed := false
	allSuccessful := true
	for _, m := range msgs {
		if m.State == domain.SedexFailed {
			anyFailed = true
		}
		if m.State != domain.SedexSuccessful {
			allSuccessful = false
		}
	}
	switch {
	case allSuccessful:
		return domain.JobCompleted, true
	case anyFailed:
		return domain.JobFailed, true
	default:
		return "", false
	}
}
