// Package domain defines the core entities, ports, and domain-specific
// errors shared by every processor in the ingestion/sync pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels), matched against with errors.Is.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrSenderIDValidation  = errors.New("sender id validation failed")
	ErrSyncJobNotFound     = errors.New("sync job not found")
	ErrFullSyncNotSeeding  = errors.New("full sync is not seeding")
	ErrIllegalFullSyncMove = errors.New("illegal full-sync state transition")
	ErrInternal            = errors.New("internal error")
)

// Context is a type alias to stdlib context.Context so domain ports read
// naturally without every file importing "context" directly for this alone.
type Context = context.Context

// JobType discriminates the two admission modes.
type JobType string

// Job types.
const (
	JobTypePartial JobType = "PARTIAL"
	JobTypeFull    JobType = "FULL"
)

// MessageCategory discriminates broker message dispatch.
type MessageCategory string

// Message categories.
const (
	CategoryTransactionEvent MessageCategory = "TRANSACTION_EVENT"
	CategorySedexEvent       MessageCategory = "SEDEX_EVENT"
	CategoryUnknown          MessageCategory = "UNKNOWN"
)

// TransactionState enumerates the lifecycle of a Transaction.
type TransactionState string

// Transaction states.
const (
	TxNew       TransactionState = "NEW"
	TxProcessed TransactionState = "PROCESSED"
	TxSent      TransactionState = "SENT"
	TxFailed    TransactionState = "FAILED"
)

// JobState enumerates the lifecycle of a SyncJob.
type JobState string

// Sync job states.
const (
	JobNew              JobState = "NEW"
	JobSending          JobState = "SENDING"
	JobSent             JobState = "SENT"
	JobCompleted        JobState = "COMPLETED"
	JobFailed           JobState = "FAILED"
	JobFailedProcessing JobState = "FAILED_PROCESSING"
)

// IsTerminal reports whether a job state accepts no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SedexMessageState enumerates the lifecycle of an outbound SedexMessage.
type SedexMessageState string

// Sedex message states.
const (
	SedexCreated    SedexMessageState = "CREATED"
	SedexSent       SedexMessageState = "SENT"
	SedexSuccessful SedexMessageState = "SUCCESSFUL"
	SedexFailed     SedexMessageState = "FAILED"
)

// FullSyncState enumerates the lifecycle of the process-wide Full-Sync
// State Manager singleton. It is distinct from JobState: this is the
// manager's own seeding-cycle phase, not any one SyncJob's persisted state.
type FullSyncState string

// Full-sync manager states.
const (
	FullSyncReady   FullSyncState = "READY"
	FullSyncSeeding FullSyncState = "SEEDING"
	FullSyncSeeded  FullSyncState = "SEEDED"
	FullSyncSending FullSyncState = "SENDING"
	FullSyncSent    FullSyncState = "SENT"
	FullSyncFailed  FullSyncState = "FAILED"
)

// Setting is a durable key/value configuration pair.
type Setting struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is one per admitted person-data record.
type Transaction struct {
	TransactionID string
	State         TransactionState
	JobID         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SyncJob is one per full-sync cycle.
type SyncJob struct {
	JobID     string
	JobType   JobType
	JobState  JobState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SedexMessage is one per outbound transport message produced by the
// external batcher; this service only reads it.
type SedexMessage struct {
	MessageID string
	JobID     *string
	State     SedexMessageState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Envelope is the ephemeral cross-component header block attached to every
// broker message. It lives only on in-flight messages; it is never
// persisted as-is.
type Envelope struct {
	SenderID         string           `validate:"required"`
	JobType          JobType          `validate:"omitempty"`
	JobID            *string          `validate:"omitempty"`
	MessageCategory  MessageCategory  `validate:"required,oneof=TRANSACTION_EVENT SEDEX_EVENT UNKNOWN"`
	TransactionState TransactionState `validate:"omitempty"`
	TransactionID    *string          `validate:"omitempty"`
	Timestamp        time.Time        `validate:"required"`
}

// CorrelationID returns TransactionID if present, else JobID, else "".
func (e Envelope) CorrelationID() string {
	if e.TransactionID != nil && *e.TransactionID != "" {
		return *e.TransactionID
	}
	if e.JobID != nil && *e.JobID != "" {
		return *e.JobID
	}
	return ""
}

// Record is the opaque payload carried on the lwgs exchange.
type Record struct {
	TransactionID string
	Payload       string
}

// Repositories (ports)

//go:generate mockery --name=SettingRepository --with-expecter --filename=setting_repository_mock.go
//go:generate mockery --name=TransactionRepository --with-expecter --filename=transaction_repository_mock.go
//go:generate mockery --name=SyncJobRepository --with-expecter --filename=syncjob_repository_mock.go
//go:generate mockery --name=SedexMessageRepository --with-expecter --filename=sedexmessage_repository_mock.go

// SettingRepository manages the Setting key/value table.
type SettingRepository interface {
	Get(ctx Context, key string) (Setting, error)
	Upsert(ctx Context, key, value string) error
}

// TransactionRepository manages Transaction rows.
type TransactionRepository interface {
	// Create inserts a new Transaction. Returns ErrConflict on a duplicate
	// transactionId (the prior row is authoritative).
	Create(ctx Context, t Transaction) error
	// FindByTransactionID returns ErrNotFound when absent.
	FindByTransactionID(ctx Context, transactionID string) (Transaction, error)
	// UpdateState advances state/updatedAt for an existing transaction.
	UpdateState(ctx Context, transactionID string, state TransactionState, updatedAt time.Time) error
	// SetJobID attaches a jobId to a transaction exactly once.
	SetJobID(ctx Context, transactionID string, jobID string) error
	// FindStuck returns every Transaction in state older than olderThan,
	// for diagnostic reconciliation sweeps; non-authoritative.
	FindStuck(ctx Context, state TransactionState, olderThan time.Time) ([]Transaction, error)
}

// SyncJobRepository manages SyncJob rows.
type SyncJobRepository interface {
	// Create inserts a new SyncJob. Returns ErrConflict on a duplicate jobId.
	Create(ctx Context, j SyncJob) error
	// FindByJobID returns ErrNotFound when absent.
	FindByJobID(ctx Context, jobID string) (SyncJob, error)
	// UpdateState writes a new job state, refusing to leave a terminal state.
	// Implementations must reject (ErrIllegalFullSyncMove) attempts to
	// transition a SyncJob already in COMPLETED or FAILED.
	UpdateState(ctx Context, jobID string, state JobState, updatedAt time.Time) error
	// FindStuck returns every SyncJob in state older than olderThan, for
	// diagnostic reconciliation sweeps; non-authoritative.
	FindStuck(ctx Context, state JobState, olderThan time.Time) ([]SyncJob, error)
}

// SedexMessageRepository is a read-only view for this service; rows are
// written exclusively by the external batcher.
type SedexMessageRepository interface {
	FindAllByJobID(ctx Context, jobID string) ([]SedexMessage, error)
}

// Queue (port)

// Queue is the outbound publishing surface used by the Job Seeder.
type Queue interface {
	// PublishRecord publishes the opaque person-data record to the
	// partial/full incoming topic implied by env.JobType.
	PublishRecord(ctx Context, env Envelope, rec Record) error
	// PublishStateShadow publishes an empty-payload message carrying only
	// headers to the transaction-state topic.
	PublishStateShadow(ctx Context, env Envelope) error
}

// QueueStats (port) backs the Queue Statistics Probe.
type QueueStats interface {
	// QueueCount returns the current depth of the named queue.
	QueueCount(ctx Context, queueName string) (int, error)
}
