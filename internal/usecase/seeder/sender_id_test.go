package seeder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

func strp(s string) *string { return &s }

func TestValidateSenderID_SingleSender(t *testing.T) {
	cfg := SenderConfig{SingleSenderID: "S1"}

	id, err := ValidateSenderID(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "S1", id)

	id, err = ValidateSenderID(cfg, strp("S1"))
	require.NoError(t, err)
	assert.Equal(t, "S1", id)

	_, err = ValidateSenderID(cfg, strp("other"))
	require.ErrorIs(t, err, domain.ErrSenderIDValidation)
}

func TestValidateSenderID_MultiSender(t *testing.T) {
	cfg := SenderConfig{MultiSender: true, AllowedSenderIDs: []string{"A", "B"}}

	id, err := ValidateSenderID(cfg, strp("A"))
	require.NoError(t, err)
	assert.Equal(t, "A", id)

	_, err = ValidateSenderID(cfg, strp("C"))
	require.ErrorIs(t, err, domain.ErrSenderIDValidation)

	_, err = ValidateSenderID(cfg, nil)
	require.ErrorIs(t, err, domain.ErrSenderIDValidation)
}
