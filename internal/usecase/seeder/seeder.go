// Package seeder implements the admission component: validates sender
// identity, assigns a transaction id, and publishes a record plus its
// state-shadow onto the broker.
package seeder

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/header"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

// FullSyncManager is the subset of fullsync.Manager the Seeder depends on.
type FullSyncManager interface {
	IsInStateSeeding() bool
	GetCurrentFullSyncJobID() string
	IncFullSeedMessageCounter(ctx domain.Context) int64
}

// Seeder admits person-data records into the pipeline.
type Seeder struct {
	queue     domain.Queue
	fullSync  FullSyncManager
	senderCfg SenderConfig
}

// New constructs a Seeder.
func New(queue domain.Queue, fullSync FullSyncManager, senderCfg SenderConfig) *Seeder {
	return &Seeder{queue: queue, fullSync: fullSync, senderCfg: senderCfg}
}

// SeedToPartial validates senderID, generates a fresh transactionId, and
// publishes a record message plus a matching empty state-shadow message,
// both carrying transactionId as their correlation id. The two publishes are
// not atomic: the state-shadow publish is idempotent downstream because the
// Transaction State Processor upserts on NEW.
func (s *Seeder) SeedToPartial(ctx domain.Context, payload string, senderID *string) (string, error) {
	resolvedSender, err := ValidateSenderID(s.senderCfg, senderID)
	if err != nil {
		return "", err
	}

	txnID := uuid.NewString()
	env := header.New(
		header.WithSenderID(resolvedSender),
		header.WithJobType(domain.JobTypePartial),
		header.WithMessageCategory(domain.CategoryTransactionEvent),
		header.WithTransactionState(domain.TxNew),
		header.WithTransactionID(txnID),
	)

	if err := s.queue.PublishRecord(ctx, env, domain.Record{TransactionID: txnID, Payload: payload}); err != nil {
		return "", fmt.Errorf("op=Seeder.SeedToPartial transaction_id=%s: %w", txnID, err)
	}
	if err := s.queue.PublishStateShadow(ctx, env); err != nil {
		slog.Error("state shadow publish failed", slog.String("transaction_id", txnID), slog.Any("error", err))
	}
	observability.RecordsSeededTotal.WithLabelValues(string(domain.JobTypePartial)).Inc()

	return txnID, nil
}

// SeedToFull behaves like SeedToPartial but is gated on the Full-Sync State
// Manager being in SEEDING: if it is not, SeedToFull publishes nothing and
// returns a nil transactionId. Otherwise jobType=FULL and the header carries
// the manager's current jobId; on successful publish, the manager's
// seeded-message counter is incremented.
func (s *Seeder) SeedToFull(ctx domain.Context, payload string, senderID *string) (*string, error) {
	if !s.fullSync.IsInStateSeeding() {
		return nil, nil
	}

	resolvedSender, err := ValidateSenderID(s.senderCfg, senderID)
	if err != nil {
		return nil, err
	}

	txnID := uuid.NewString()
	jobID := s.fullSync.GetCurrentFullSyncJobID()
	env := header.New(
		header.WithSenderID(resolvedSender),
		header.WithJobType(domain.JobTypeFull),
		header.WithJobID(jobID),
		header.WithMessageCategory(domain.CategoryTransactionEvent),
		header.WithTransactionState(domain.TxNew),
		header.WithTransactionID(txnID),
	)

	if err := s.queue.PublishRecord(ctx, env, domain.Record{TransactionID: txnID, Payload: payload}); err != nil {
		return nil, fmt.Errorf("op=Seeder.SeedToFull transaction_id=%s job_id=%s: %w", txnID, jobID, err)
	}
	if err := s.queue.PublishStateShadow(ctx, env); err != nil {
		slog.Error("state shadow publish failed", slog.String("transaction_id", txnID), slog.Any("error", err))
	}

	s.fullSync.IncFullSeedMessageCounter(ctx)
	observability.RecordsSeededTotal.WithLabelValues(string(domain.JobTypeFull)).Inc()

	return &txnID, nil
}
