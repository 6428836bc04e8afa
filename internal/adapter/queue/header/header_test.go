package header

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

func TestApply_CorrelationIDPrefersTransactionID(t *testing.T) {
	env := New(
		WithSenderID("S1"),
		WithJobType(domain.JobTypeFull),
		WithJobID("job-1"),
		WithMessageCategory(domain.CategoryTransactionEvent),
		WithTransactionState(domain.TxNew),
		WithTransactionID("txn-1"),
	)
	msg := &amqp.Publishing{}
	Apply(env, msg)

	assert.Equal(t, "txn-1", msg.CorrelationId)
	assert.Equal(t, "S1", msg.Headers[KeySenderID])
	assert.Equal(t, "FULL", msg.Headers[KeyJobType])
	assert.Equal(t, "job-1", msg.Headers[KeyJobID])
	assert.Equal(t, "TRANSACTION_EVENT", msg.Headers[KeyMessageCategory])
	assert.Equal(t, "NEW", msg.Headers[KeyTransactionState])
}

func TestApply_CorrelationIDFallsBackToJobID(t *testing.T) {
	env := New(WithJobID("job-1"))
	msg := &amqp.Publishing{}
	Apply(env, msg)
	assert.Equal(t, "job-1", msg.CorrelationId)
}

func TestParse_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Round(time.Millisecond)
	env := New(
		WithSenderID("S1"),
		WithJobType(domain.JobTypePartial),
		WithMessageCategory(domain.CategoryTransactionEvent),
		WithTransactionState(domain.TxSent),
		WithTransactionID("txn-2"),
		WithTimestamp(now),
	)
	msg := &amqp.Publishing{}
	Apply(env, msg)

	parsed, err := Parse(msg.Headers)
	require.NoError(t, err)
	assert.Equal(t, "S1", parsed.SenderID)
	assert.Equal(t, domain.JobTypePartial, parsed.JobType)
	assert.Equal(t, domain.CategoryTransactionEvent, parsed.MessageCategory)
	assert.Equal(t, domain.TxSent, parsed.TransactionState)
	require.NotNil(t, parsed.TransactionID)
	assert.Equal(t, "txn-2", *parsed.TransactionID)
	assert.Nil(t, parsed.JobID)
	assert.True(t, parsed.Timestamp.Equal(now))
}

func TestParse_UnknownCategoryDegrades(t *testing.T) {
	table := amqp.Table{KeySenderID: "S1", KeyMessageCategory: "SOMETHING_ELSE"}
	parsed, err := Parse(table)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryUnknown, parsed.MessageCategory)
}

func TestParse_MissingOptionalFieldsIsLegal(t *testing.T) {
	parsed, err := Parse(amqp.Table{KeySenderID: "S1"})
	require.NoError(t, err)
	assert.Nil(t, parsed.JobID)
	assert.Nil(t, parsed.TransactionID)
}

func TestParse_MissingSenderIDIsInvalid(t *testing.T) {
	_, err := Parse(amqp.Table{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
