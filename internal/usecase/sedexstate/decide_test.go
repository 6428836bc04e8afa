package sedexstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

func TestDecideNextState_EmptySetNoChange(t *testing.T) {
	next, changed := decideNextState(nil)
	assert.False(t, changed)
	assert.Empty(t, next)
}

func TestDecideNextState_AllSuccessfulCompletes(t *testing.T) {
	next, changed := decideNextState([]domain.SedexMessage{
		{State: domain.SedexSuccessful},
		{State: domain.SedexSuccessful},
	})
	assert.True(t, changed)
	assert.Equal(t, domain.JobCompleted, next)
}

func TestDecideNextState_AnyFailedFails(t *testing.T) {
	next, changed := decideNextState([]domain.SedexMessage{
		{State: domain.SedexSuccessful},
		{State: domain.SedexFailed},
		{State: domain.SedexSuccessful},
	})
	assert.True(t, changed)
	assert.Equal(t, domain.JobFailed, next)
}

func TestDecideNextState_MixedPendingNoChange(t *testing.T) {
	next, changed := decideNextState([]domain.SedexMessage{
		{State: domain.SedexSuccessful},
		{State: domain.SedexSent},
	})
	assert.False(t, changed)
	assert.Empty(t, next)
}
