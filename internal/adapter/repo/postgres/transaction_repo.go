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

// TransactionRepo persists Transaction rows.
type TransactionRepo struct {
	pool Querier
}

// NewTransactionRepo constructs a TransactionRepo over an existing pool.
func NewTransactionRepo(pool Querier) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

var _ domain.TransactionRepository = (*TransactionRepo)(nil)

// Create inserts a new Transaction. Returns domain.ErrConflict on a
// duplicate transactionId.
func (r *TransactionRepo) Create(ctx context.Context, t domain.Transaction) error {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "TransactionRepo.Create")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", t.TransactionID))

	const q = `
		INSERT INTO transactions (transaction_id, state, job_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, t.TransactionID, string(t.State), t.JobID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("op=TransactionRepo.Create transaction_id=%s: %w", t.TransactionID, domain.ErrConflict)
		}
		span.RecordError(err)
		slog.Error("transaction create failed", slog.String("transaction_id", t.TransactionID), slog.Any("error", err))
		return fmt.Errorf("op=TransactionRepo.Create transaction_id=%s: %w", t.TransactionID, err)
	}
	return nil
}

// FindByTransactionID returns domain.ErrNotFound when absent.
func (r *TransactionRepo) FindByTransactionID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "TransactionRepo.FindByTransactionID")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	const q = `SELECT transaction_id, state, job_id, created_at, updated_at FROM transactions WHERE transaction_id = $1`
	var t domain.Transaction
	err := r.pool.QueryRow(ctx, q, transactionID).Scan(&t.TransactionID, &t.State, &t.JobID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, fmt.Errorf("op=TransactionRepo.FindByTransactionID transaction_id=%s: %w", transactionID, domain.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("transaction lookup failed", slog.String("transaction_id", transactionID), slog.Any("error", err))
		return domain.Transaction{}, fmt.Errorf("op=TransactionRepo.FindByTransactionID transaction_id=%s: %w", transactionID, err)
	}
	return t, nil
}

// UpdateState advances state/updatedAt for an existing transaction.
func (r *TransactionRepo) UpdateState(ctx context.Context, transactionID string, state domain.TransactionState, updatedAt time.Time) error {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "TransactionRepo.UpdateState")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID), attribute.String("transaction.state", string(state)))

	const q = `UPDATE transactions SET state = $2, updated_at = $3 WHERE transaction_id = $1`
	tag, err := r.pool.Exec(ctx, q, transactionID, string(state), updatedAt)
	if err != nil {
		span.RecordError(err)
		slog.Error("transaction state update failed", slog.String("transaction_id", transactionID), slog.Any("error", err))
		return fmt.Errorf("op=TransactionRepo.UpdateState transaction_id=%s: %w", transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=TransactionRepo.UpdateState transaction_id=%s: %w", transactionID, domain.ErrNotFound)
	}
	return nil
}

// SetJobID attaches a jobId to a transaction exactly once.
func (r *TransactionRepo) SetJobID(ctx context.Context, transactionID string, jobID string) error {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "TransactionRepo.SetJobID")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID), attribute.String("job.id", jobID))

	const q = `UPDATE transactions SET job_id = $2 WHERE transaction_id = $1 AND job_id IS NULL`
	if _, err := r.pool.Exec(ctx, q, transactionID, jobID); err != nil {
		span.RecordError(err)
		slog.Error("transaction set job id failed", slog.String("transaction_id", transactionID), slog.Any("error", err))
		return fmt.Errorf("op=TransactionRepo.SetJobID transaction_id=%s: %w", transactionID, err)
	}
	return nil
}

// FindStuck returns every Transaction in state with updated_at older than
// olderThan, for the reconciliation sweep.
func (r *TransactionRepo) FindStuck(ctx context.Context, state domain.TransactionState, olderThan time.Time) ([]domain.Transaction, error) {
	tracer := otel.Tracer("repo.transactions")
	ctx, span := tracer.Start(ctx, "TransactionRepo.FindStuck")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.state", string(state)))

	const q = `SELECT transaction_id, state, job_id, created_at, updated_at FROM transactions WHERE state = $1 AND updated_at < $2`
	rows, err := r.pool.Query(ctx, q, string(state), olderThan)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=TransactionRepo.FindStuck state=%s: %w", state, err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.TransactionID, &t.State, &t.JobID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=TransactionRepo.FindStuck state=%s scan: %w", state, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
