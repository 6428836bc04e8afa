// Package header implements the canonical (de)serialization of the
// cross-component header block attached to every broker message.
package header

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// Header key names on the wire. Case is preserved exactly as written here.
const (
	KeySenderID         = "senderId"
	KeyJobType          = "jobType"
	KeyJobID            = "jobId"
	KeyMessageCategory  = "messageCategory"
	KeyTransactionState = "transactionState"
	KeyTransactionID    = "transactionId"
	KeyTimestamp        = "timestamp"
)

// Option mutates an in-progress Envelope during New.
type Option func(*domain.Envelope)

// WithSenderID sets the sender id.
func WithSenderID(id string) Option {
	return func(e *domain.Envelope) { e.SenderID = id }
}

// WithJobType sets the job type.
func WithJobType(jt domain.JobType) Option {
	return func(e *domain.Envelope) { e.JobType = jt }
}

// WithJobID sets the job id.
func WithJobID(id string) Option {
	return func(e *domain.Envelope) {
		if id != "" {
			v := id
			e.JobID = &v
		}
	}
}

// WithMessageCategory sets the message category.
func WithMessageCategory(c domain.MessageCategory) Option {
	return func(e *domain.Envelope) { e.MessageCategory = c }
}

// WithTransactionState sets the transaction state.
func WithTransactionState(s domain.TransactionState) Option {
	return func(e *domain.Envelope) { e.TransactionState = s }
}

// WithTransactionID sets the transaction id.
func WithTransactionID(id string) Option {
	return func(e *domain.Envelope) {
		if id != "" {
			v := id
			e.TransactionID = &v
		}
	}
}

// WithTimestamp overrides the default (current wall clock) timestamp.
func WithTimestamp(t time.Time) Option {
	return func(e *domain.Envelope) { e.Timestamp = t }
}

// New builds an Envelope from the given options. Timestamp defaults to the
// current wall clock unless overridden by WithTimestamp.
func New(opts ...Option) domain.Envelope {
	e := domain.Envelope{Timestamp: time.Now().UTC()}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Apply writes the envelope's fields onto an outbound AMQP publishing as
// headers, and sets the correlation id to transactionId if present, else
// jobId if present, else leaves it unset.
func Apply(env domain.Envelope, msg *amqp.Publishing) {
	if msg.Headers == nil {
		msg.Headers = amqp.Table{}
	}
	msg.Headers[KeySenderID] = env.SenderID
	msg.Headers[KeyJobType] = string(env.JobType)
	msg.Headers[KeyMessageCategory] = string(env.MessageCategory)
	if env.JobID != nil {
		msg.Headers[KeyJobID] = *env.JobID
	}
	if env.TransactionState != "" {
		msg.Headers[KeyTransactionState] = string(env.TransactionState)
	}
	if env.TransactionID != nil {
		msg.Headers[KeyTransactionID] = *env.TransactionID
	}
	msg.Headers[KeyTimestamp] = env.Timestamp.UnixMilli()
	msg.Timestamp = env.Timestamp

	if cid := env.CorrelationID(); cid != "" {
		msg.CorrelationId = cid
	}
}

// Parse converts an AMQP header table into an Envelope, then validates the
// required fields (senderId, messageCategory, timestamp). An unrecognized
// messageCategory value degrades to domain.CategoryUnknown rather than
// erroring, leaving the decision of what to do with an unknown category to
// the caller.
func Parse(table amqp.Table) (domain.Envelope, error) {
	var env domain.Envelope

	if v, ok := table[KeySenderID].(string); ok {
		env.SenderID = v
	}
	if v, ok := table[KeyJobType].(string); ok {
		env.JobType = domain.JobType(v)
	}
	if v, ok := table[KeyJobID].(string); ok && v != "" {
		vv := v
		env.JobID = &vv
	}
	switch v, _ := table[KeyMessageCategory].(string); domain.MessageCategory(v) {
	case domain.CategoryTransactionEvent:
		env.MessageCategory = domain.CategoryTransactionEvent
	case domain.CategorySedexEvent:
		env.MessageCategory = domain.CategorySedexEvent
	default:
		env.MessageCategory = domain.CategoryUnknown
	}
	if v, ok := table[KeyTransactionState].(string); ok {
		env.TransactionState = domain.TransactionState(v)
	}
	if v, ok := table[KeyTransactionID].(string); ok && v != "" {
		vv := v
		env.TransactionID = &vv
	}
	env.Timestamp = parseTimestamp(table[KeyTimestamp])

	if err := getValidator().Struct(env); err != nil {
		return domain.Envelope{}, fmt.Errorf("op=header.Parse: %w: %w", domain.ErrInvalidArgument, err)
	}
	return env, nil
}

func parseTimestamp(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.UnixMilli(t).UTC()
	case int32:
		return time.UnixMilli(int64(t)).UTC()
	case int:
		return time.UnixMilli(int64(t)).UTC()
	default:
		return time.Now().UTC()
	}
}
