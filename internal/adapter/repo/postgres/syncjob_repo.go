package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// SyncJobRepo persists SyncJob rows.
type SyncJobRepo struct {
	pool Querier
}

// NewSyncJobRepo constructs a SyncJobRepo over an existing pool.
func NewSyncJobRepo(pool Querier) *SyncJobRepo {
	return &SyncJobRepo{pool: pool}
}

var _ domain.SyncJobRepository = (*SyncJobRepo)(nil)

// Create inserts a new SyncJob. Returns domain.ErrConflict on a duplicate
// jobId.
func (r *SyncJobRepo) Create(ctx context.Context, j domain.SyncJob) error {
	tracer := otel.Tracer("repo.sync_jobs")
	ctx, span := tracer.Start(ctx, "SyncJobRepo.Create")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", j.JobID))

	const q = `
		INSERT INTO sync_jobs (job_id, job_type, job_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, j.JobID, string(j.JobType), string(j.JobState), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("op=SyncJobRepo.Create job_id=%s: %w", j.JobID, domain.ErrConflict)
		}
		span.RecordError(err)
		slog.Error("sync job create failed", slog.String("job_id", j.JobID), slog.Any("error", err))
		return fmt.Errorf("op=SyncJobRepo.Create job_id=%s: %w", j.JobID, err)
	}
	return nil
}

// FindByJobID returns domain.ErrNotFound when absent.
func (r *SyncJobRepo) FindByJobID(ctx context.Context, jobID string) (domain.SyncJob, error) {
	tracer := otel.Tracer("repo.sync_jobs")
	ctx, span := tracer.Start(ctx, "SyncJobRepo.FindByJobID")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	const q = `SELECT job_id, job_type, job_state, created_at, updated_at FROM sync_jobs WHERE job_id = $1`
	var j domain.SyncJob
	err := r.pool.QueryRow(ctx, q, jobID).Scan(&j.JobID, &j.JobType, &j.JobState, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SyncJob{}, fmt.Errorf("op=SyncJobRepo.FindByJobID job_id=%s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("sync job lookup failed", slog.String("job_id", jobID), slog.Any("error", err))
		return domain.SyncJob{}, fmt.Errorf("op=SyncJobRepo.FindByJobID job_id=%s: %w", jobID, err)
	}
	return j, nil
}

// UpdateState writes a new job state, refusing to leave a terminal state
// (COMPLETED, FAILED) already recorded for the job.
func (r *SyncJobRepo) UpdateState(ctx context.Context, jobID string, state domain.JobState, updatedAt time.Time) error {
	tracer := otel.Tracer("repo.sync_jobs")
	ctx, span := tracer.Start(ctx, "SyncJobRepo.UpdateState")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID), attribute.String("job.state", string(state)))

	const q = `
		UPDATE sync_jobs SET job_state = $2, updated_at = $3
		WHERE job_id = $1 AND job_state NOT IN ($4, $5)`
	tag, err := r.pool.Exec(ctx, q, jobID, string(state), updatedAt, string(domain.JobCompleted), string(domain.JobFailed))
	if err != nil {
		span.RecordError(err)
		slog.Error("sync job state update failed", slog.String("job_id", jobID), slog.Any("error", err))
		return fmt.Errorf("op=SyncJobRepo.UpdateState job_id=%s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		current, lookupErr := r.FindByJobID(ctx, jobID)
		if lookupErr != nil {
			return lookupErr
		}
		if current.JobState.IsTerminal() {
			return fmt.Errorf("op=SyncJobRepo.UpdateState job_id=%s current=%s attempted=%s: %w", jobID, current.JobState, state, domain.ErrIllegalFullSyncMove)
		}
		return fmt.Errorf("op=SyncJobRepo.UpdateState job_id=%s: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

// FindStuck returns every SyncJob in state with updated_at older than
// olderThan, for the reconciliation sweep.
func (r *SyncJobRepo) FindStuck(ctx context.Context, state domain.JobState, olderThan time.Time) ([]domain.SyncJob, error) {
	tracer := otel.Tracer("repo.sync_jobs")
	ctx, span := tracer.Start(ctx, "SyncJobRepo.FindStuck")
	defer span.End()
	span.SetAttributes(attribute.String("job.state", string(state)))

	const q = `SELECT job_id, job_type, job_state, created_at, updated_at FROM sync_jobs WHERE job_state = $1 AND updated_at < $2`
	rows, err := r.pool.Query(ctx, q, string(state), olderThan)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=SyncJobRepo.FindStuck state=%s: %w", state, err)
	}
	defer rows.Close()

	var out []domain.SyncJob
	for rows.Next() {
		var j domain.SyncJob
		if err := rows.Scan(&j.JobID, &j.JobType, &j.JobState, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=SyncJobRepo.FindStuck state=%s scan: %w", state, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
