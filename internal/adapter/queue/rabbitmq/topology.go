// Package rabbitmq implements the broker transport: topology declaration,
// publishing, and consumption against an AMQP 0-9-1 broker.
package rabbitmq

// Exchange names (contractual).
const (
	ExchangeRecords = "lwgs"
	ExchangeState   = "lwgs-state"
)

// Queue names (contractual, per spec.md §6).
const (
	QueuePartialIncoming = "persondata-partial-incoming"
	QueuePartialOutgoing = "persondata-partial-outgoing"
	QueuePartialFailed   = "persondata-partial-failed"
	QueueFullIncoming    = "persondata-full-incoming"
	QueueFullOutgoing    = "persondata-full-outgoing"
	QueueFullFailed      = "persondata-full-failed"
	QueueTransactionState = "transaction-state"
	QueueSedexState       = "sedex-state"
	QueueSedexOutgoing    = "sedex-outgoing"
)

// recordQueues bind to ExchangeRecords; they carry the opaque record
// payload (or are populated by the external batcher/transport, out of
// scope for this service beyond their existence in the topology).
var recordQueues = []string{
	QueuePartialIncoming,
	QueuePartialOutgoing,
	QueuePartialFailed,
	QueueFullIncoming,
	QueueFullOutgoing,
	QueueFullFailed,
	QueueSedexOutgoing,
}

// stateQueues bind to ExchangeState; they carry empty-payload state
// shadows keyed only by header.
var stateQueues = []string{
	QueueTransactionState,
	QueueSedexState,
}
