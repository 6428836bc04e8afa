package fullsync

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

func TestManager_HappyPathCycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	assert.Equal(t, domain.FullSyncReady, m.State())
	assert.False(t, m.IsInStateSeeding())

	jobID, err := m.StartSeeding(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	assert.True(t, m.IsInStateSeeding())
	assert.Equal(t, jobID, m.GetCurrentFullSyncJobID())

	assert.Equal(t, int64(1), m.IncFullSeedMessageCounter(ctx))
	assert.Equal(t, int64(2), m.IncFullSeedMessageCounter(ctx))
	assert.Equal(t, int64(2), m.SeededCount())

	require.NoError(t, m.SubmitSeeding(ctx))
	assert.Equal(t, domain.FullSyncSeeded, m.State())
	assert.False(t, m.IsInStateSeeding())

	require.NoError(t, m.StartSending(ctx))
	assert.Equal(t, domain.FullSyncSending, m.State())

	require.NoError(t, m.CompleteSending(ctx))
	assert.Equal(t, domain.FullSyncSent, m.State())

	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, domain.FullSyncReady, m.State())
	assert.Empty(t, m.GetCurrentFullSyncJobID())
	assert.Equal(t, int64(0), m.SeededCount())
}

func TestManager_RejectsOutOfOrderTriggers(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	_, err := m.StartSeeding(ctx)
	require.NoError(t, err)

	err = m.SubmitSeeding(ctx)
	require.NoError(t, err)

	err = m.SubmitSeeding(ctx)
	require.ErrorIs(t, err, domain.ErrIllegalFullSyncMove)

	err = m.StartSending(ctx)
	require.NoError(t, err)

	err = m.StartSending(ctx)
	require.ErrorIs(t, err, domain.ErrIllegalFullSyncMove)

	err = m.Reset(ctx)
	require.ErrorIs(t, err, domain.ErrIllegalFullSyncMove)
}

func TestManager_FailSeedingAndEscalate(t *testing.T) {
	ctx := context.Background()

	m := NewManager()
	_, err := m.StartSeeding(ctx)
	require.NoError(t, err)
	require.NoError(t, m.FailSeeding(ctx))
	assert.Equal(t, domain.FullSyncFailed, m.State())
	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, domain.FullSyncReady, m.State())

	m2 := NewManager()
	_, err = m2.StartSeeding(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.SubmitSeeding(ctx))
	require.NoError(t, m2.Escalate(ctx))
	assert.Equal(t, domain.FullSyncFailed, m2.State())

	m3 := NewManager()
	_, err = m3.StartSeeding(ctx)
	require.NoError(t, err)
	require.NoError(t, m3.SubmitSeeding(ctx))
	require.NoError(t, m3.StartSending(ctx))
	require.NoError(t, m3.Escalate(ctx))
	assert.Equal(t, domain.FullSyncFailed, m3.State())
}

func TestManager_PersistsAndRestoresFromRedis(t *testing.T) {
	ctx := context.Background()

	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	m := NewManager(WithRedis(rdb))
	jobID, err := m.StartSeeding(ctx)
	require.NoError(t, err)
	m.IncFullSeedMessageCounter(ctx)

	restored := NewManager(WithRedis(rdb))
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, domain.FullSyncSeeding, restored.State())
	assert.Equal(t, jobID, restored.GetCurrentFullSyncJobID())
	assert.Equal(t, int64(1), restored.SeededCount())
}

func TestManager_RestoreNoopsOnColdStart(t *testing.T) {
	ctx := context.Background()
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	m := NewManager(WithRedis(rdb))
	require.NoError(t, m.Restore(ctx))
	assert.Equal(t, domain.FullSyncReady, m.State())
}
