package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// SedexMessageRepo is a read-only view over SedexMessage rows, written
// exclusively by the external batcher.
type SedexMessageRepo struct {
	pool Querier
}

// NewSedexMessageRepo constructs a SedexMessageRepo over an existing pool.
func NewSedexMessageRepo(pool Querier) *SedexMessageRepo {
	return &SedexMessageRepo{pool: pool}
}

var _ domain.SedexMessageRepository = (*SedexMessageRepo)(nil)

// FindAllByJobID returns every SedexMessage row owned by jobID, possibly
// empty.
func (r *SedexMessageRepo) FindAllByJobID(ctx context.Context, jobID string) ([]domain.SedexMessage, error) {
	tracer := otel.Tracer("repo.sedex_messages")
	ctx, span := tracer.Start(ctx, "SedexMessageRepo.FindAllByJobID")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	const q = `SELECT message_id, job_id, state, created_at, updated_at FROM sedex_messages WHERE job_id = $1`
	rows, err := r.pool.Query(ctx, q, jobID)
	if err != nil {
		span.RecordError(err)
		slog.Error("sedex messages lookup failed", slog.String("job_id", jobID), slog.Any("error", err))
		return nil, fmt.Errorf("op=SedexMessageRepo.FindAllByJobID job_id=%s: %w", jobID, err)
	}
	defer rows.Close()

	var out []domain.SedexMessage
	for rows.Next() {
		var m domain.SedexMessage
		if err := rows.Scan(&m.MessageID, &m.JobID, &m.State, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=SedexMessageRepo.FindAllByJobID job_id=%s scan: %w", jobID, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=SedexMessageRepo.FindAllByJobID job_id=%s: %w", jobID, err)
	}
	return out, nil
}
