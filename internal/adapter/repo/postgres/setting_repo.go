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

// SettingRepo persists the Setting key/value table.
type SettingRepo struct {
	pool Querier
}

// NewSettingRepo constructs a SettingRepo over an existing pool.
func NewSettingRepo(pool Querier) *SettingRepo {
	return &SettingRepo{pool: pool}
}

var _ domain.SettingRepository = (*SettingRepo)(nil)

// Get returns domain.ErrNotFound when the key is absent.
func (r *SettingRepo) Get(ctx context.Context, key string) (domain.Setting, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "SettingRepo.Get")
	defer span.End()
	span.SetAttributes(attribute.String("setting.key", key))

	const q = `SELECT key, value, created_at, updated_at FROM settings WHERE key = $1`
	var s domain.Setting
	err := r.pool.QueryRow(ctx, q, key).Scan(&s.Key, &s.Value, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Setting{}, fmt.Errorf("op=SettingRepo.Get key=%s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("setting get failed", slog.String("key", key), slog.Any("error", err))
		return domain.Setting{}, fmt.Errorf("op=SettingRepo.Get key=%s: %w", key, err)
	}
	return s, nil
}

// Upsert creates or overwrites the value for key.
func (r *SettingRepo) Upsert(ctx context.Context, key, value string) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "SettingRepo.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("setting.key", key))

	const q = `
		INSERT INTO settings (key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	if _, err := r.pool.Exec(ctx, q, key, value, now); err != nil {
		span.RecordError(err)
		slog.Error("setting upsert failed", slog.String("key", key), slog.Any("error", err))
		return fmt.Errorf("op=SettingRepo.Upsert key=%s: %w", key, err)
	}
	return nil
}
