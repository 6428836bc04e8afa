// Package fullsync implements the process-wide state machine for the
// singleton full-synchronization lifecycle.
package fullsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

const (
	redisKeyState       = "fullsync:state"
	redisKeyJobID       = "fullsync:job_id"
	redisKeySeededCount = "fullsync:seeded_count"

	settingKeyState       = "fullsync.state"
	settingKeyJobID       = "fullsync.job_id"
	settingKeySeededCount = "fullsync.seeded_count"
)

// Manager owns the singleton full-sync cycle. It is created once in the
// service's wiring and handed to every component that needs it; there is
// no ambient global.
type Manager struct {
	mu          sync.Mutex
	state       domain.FullSyncState
	jobID       string
	seededCount int64

	redis    *redis.Client
	settings domain.SettingRepository
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithRedis enables counter/state persistence to Redis. When set, it takes
// priority over WithSettingRepository.
func WithRedis(client *redis.Client) Option {
	return func(m *Manager) { m.redis = client }
}

// WithSettingRepository enables counter/state persistence to the durable
// Setting table, used as the slower fallback when Redis is unset.
func WithSettingRepository(repo domain.SettingRepository) Option {
	return func(m *Manager) { m.settings = repo }
}

// NewManager constructs a Manager in the READY state.
func NewManager(opts ...Option) *Manager {
	m := &Manager{state: domain.FullSyncReady}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartSeeding transitions READY -> SEEDING, generating a fresh jobId and
// resetting counters. Returns domain.ErrIllegalFullSyncMove from any other
// state.
func (m *Manager) StartSeeding(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state != domain.FullSyncReady {
		cur := m.state
		m.mu.Unlock()
		return "", fmt.Errorf("op=Manager.StartSeeding state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	jobID := uuid.NewString()
	m.state = domain.FullSyncSeeding
	m.jobID = jobID
	m.seededCount = 0
	m.mu.Unlock()

	m.persist(ctx)
	return jobID, nil
}

// SubmitSeeding transitions SEEDING -> SEEDED, closing admission.
func (m *Manager) SubmitSeeding(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.FullSyncSeeding {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("op=Manager.SubmitSeeding state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	m.state = domain.FullSyncSeeded
	m.mu.Unlock()

	m.persist(ctx)
	return nil
}

// StartSending transitions SEEDED -> SENDING, triggered by the external
// batcher signaling the first outgoing Sedex message for the job.
func (m *Manager) StartSending(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.FullSyncSeeded {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("op=Manager.StartSending state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	m.state = domain.FullSyncSending
	m.mu.Unlock()

	m.persist(ctx)
	return nil
}

// CompleteSending transitions SENDING -> SENT, triggered by the external
// batcher signaling every outgoing Sedex message for the job dispatched.
func (m *Manager) CompleteSending(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.FullSyncSending {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("op=Manager.CompleteSending state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	m.state = domain.FullSyncSent
	m.mu.Unlock()

	m.persist(ctx)
	return nil
}

// FailSeeding transitions SEEDING -> FAILED.
func (m *Manager) FailSeeding(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.FullSyncSeeding {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("op=Manager.FailSeeding state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	m.state = domain.FullSyncFailed
	m.mu.Unlock()

	m.persist(ctx)
	return nil
}

// Escalate transitions SEEDED|SENDING -> FAILED, driven by a transaction or
// sedex-message state processor observing a failure for the current job.
func (m *Manager) Escalate(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.FullSyncSeeded && m.state != domain.FullSyncSending {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("op=Manager.Escalate state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	m.state = domain.FullSyncFailed
	m.mu.Unlock()

	m.persist(ctx)
	return nil
}

// Reset transitions SENT|FAILED -> READY, clearing counters and jobId.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	if m.state != domain.FullSyncSent && m.state != domain.FullSyncFailed {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("op=Manager.Reset state=%s: %w", cur, domain.ErrIllegalFullSyncMove)
	}
	m.state = domain.FullSyncReady
	m.jobID = ""
	m.seededCount = 0
	m.mu.Unlock()

	m.persist(ctx)
	return nil
}

// IsInStateSeeding reports whether the manager currently admits full-sync
// records.
func (m *Manager) IsInStateSeeding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.FullSyncSeeding
}

// State returns the current lifecycle phase.
func (m *Manager) State() domain.FullSyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetCurrentFullSyncJobID returns the jobId of the in-flight cycle, or "" if
// none.
func (m *Manager) GetCurrentFullSyncJobID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobID
}

// IncFullSeedMessageCounter increments the seeded-message counter by one and
// returns its new value. Safe under concurrent seeders.
func (m *Manager) IncFullSeedMessageCounter(ctx context.Context) int64 {
	m.mu.Lock()
	m.seededCount++
	n := m.seededCount
	m.mu.Unlock()

	m.persist(ctx)
	return n
}

// SeededCount returns the current seeded-message counter.
func (m *Manager) SeededCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seededCount
}

// persist mirrors (state, jobId, seededCount) to Redis, or to the Setting
// table as a slower fallback when Redis is unset. It runs outside the
// manager's lock hold and is best-effort: persistence failures are logged,
// never propagated, since the in-memory tuple already committed.
func (m *Manager) persist(ctx context.Context) {
	m.mu.Lock()
	state, jobID, count := m.state, m.jobID, m.seededCount
	m.mu.Unlock()

	switch {
	case m.redis != nil:
		m.persistToRedis(ctx, state, jobID, count)
	case m.settings != nil:
		m.persistToSettings(ctx, state, jobID, count)
	}
}

func (m *Manager) persistToRedis(ctx context.Context, state domain.FullSyncState, jobID string, count int64) {
	pipe := m.redis.Pipeline()
	pipe.Set(ctx, redisKeyState, string(state), 0)
	pipe.Set(ctx, redisKeyJobID, jobID, 0)
	pipe.Set(ctx, redisKeySeededCount, count, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("full-sync state redis persistence failed", slog.Any("error", err))
	}
}

func (m *Manager) persistToSettings(ctx context.Context, state domain.FullSyncState, jobID string, count int64) {
	if err := m.settings.Upsert(ctx, settingKeyState, string(state)); err != nil {
		slog.Error("full-sync state setting persistence failed", slog.String("key", settingKeyState), slog.Any("error", err))
	}
	if err := m.settings.Upsert(ctx, settingKeyJobID, jobID); err != nil {
		slog.Error("full-sync state setting persistence failed", slog.String("key", settingKeyJobID), slog.Any("error", err))
	}
	if err := m.settings.Upsert(ctx, settingKeySeededCount, strconv.FormatInt(count, 10)); err != nil {
		slog.Error("full-sync state setting persistence failed", slog.String("key", settingKeySeededCount), slog.Any("error", err))
	}
}

// Restore loads a previously persisted (state, jobId, seededCount) tuple at
// startup, preferring Redis over the Setting table. A cold start with no
// persisted tuple leaves the manager in its zero-value READY state.
func (m *Manager) Restore(ctx context.Context) error {
	switch {
	case m.redis != nil:
		return m.restoreFromRedis(ctx)
	case m.settings != nil:
		return m.restoreFromSettings(ctx)
	}
	return nil
}

func (m *Manager) restoreFromRedis(ctx context.Context) error {
	state, err := m.redis.Get(ctx, redisKeyState).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("op=Manager.Restore source=redis: %w", err)
	}
	jobID, _ := m.redis.Get(ctx, redisKeyJobID).Result()
	countStr, _ := m.redis.Get(ctx, redisKeySeededCount).Result()
	count, _ := strconv.ParseInt(countStr, 10, 64)

	m.mu.Lock()
	m.state = domain.FullSyncState(state)
	m.jobID = jobID
	m.seededCount = count
	m.mu.Unlock()
	return nil
}

func (m *Manager) restoreFromSettings(ctx context.Context) error {
	state, err := m.settings.Get(ctx, settingKeyState)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("op=Manager.Restore source=settings: %w", err)
	}
	jobID, _ := m.settings.Get(ctx, settingKeyJobID)
	countSetting, _ := m.settings.Get(ctx, settingKeySeededCount)
	count, _ := strconv.ParseInt(countSetting.Value, 10, 64)

	m.mu.Lock()
	m.state = domain.FullSyncState(state.Value)
	m.jobID = jobID.Value
	m.seededCount = count
	m.mu.Unlock()
	return nil
}
