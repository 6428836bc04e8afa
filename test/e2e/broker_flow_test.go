//go:build integration

// Package e2e exercises the admission-to-completion flow against a real
// broker and a real database, stood up with testcontainers-go. It covers
// scenarios S1, S2, S3 and S5, routing every message through the actual
// AMQP transport instead of calling processors directly, so header
// (de)serialization and queue routing are exercised too.
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/header"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/rabbitmq"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/repo/postgres"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/fullsync"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/sedexstate"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/seeder"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/txnstate"
	"github.com/jackc/pgx/v5/pgxpool"
)

// env bundles the live dependencies a scenario needs: a real AMQP
// connection with topology declared, and a real Postgres pool with the
// schema applied.
type env struct {
	conn *amqp.Connection
	pool *pgxpool.Pool
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lgs"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../internal/adapter/repo/postgres/schema.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	req := tc.ContainerRequest{
		Image:        "rabbitmq:3.13-management-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}
	rmqContainer, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(ctx) })

	host, err := rmqContainer.Host(ctx)
	require.NoError(t, err)
	port, err := rmqContainer.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	url := "amqp://guest:guest@" + host + ":" + port.Port() + "/"

	var conn *amqp.Connection
	require.Eventually(t, func() bool {
		conn, err = amqp.Dial(url)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)
	t.Cleanup(func() { _ = conn.Close() })

	topoCh, err := conn.Channel()
	require.NoError(t, err)
	require.NoError(t, rabbitmq.DeclareTopology(topoCh))
	require.NoError(t, topoCh.Close())

	return &env{conn: conn, pool: pool}
}

// drainOne consumes a single delivery off queue and passes it through
// handle, acking it on success; on a handler error it nacks without requeue
// and fails the test. It returns once one message has been processed or the
// timeout elapses.
func drainOne(t *testing.T, conn *amqp.Connection, queue string, handle func(context.Context, amqp.Delivery) error) {
	t.Helper()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		ctx := context.Background()
		if err := handle(ctx, d); err != nil {
			_ = d.Nack(false, false)
			t.Fatalf("handler failed for queue %s: %v", queue, err)
			return
		}
		require.NoError(t, d.Ack(false))
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for a message on %s", queue)
	}
}

func deliveryHandler(process func(ctx context.Context, e domain.Envelope) error) func(context.Context, amqp.Delivery) error {
	return func(ctx context.Context, d amqp.Delivery) error {
		e, err := header.Parse(d.Headers)
		if err != nil {
			return err
		}
		return process(ctx, e)
	}
}

func publishSedexEvent(t *testing.T, conn *amqp.Connection, jobID string) {
	t.Helper()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	e := header.New(
		header.WithSenderID("S1"),
		header.WithMessageCategory(domain.CategorySedexEvent),
		header.WithJobID(jobID),
	)
	msg := amqp.Publishing{}
	header.Apply(e, &msg)
	require.NoError(t, ch.PublishWithContext(context.Background(), rabbitmq.ExchangeState, rabbitmq.QueueSedexState, false, false, msg))
}

// TestPartialAdmissionPublishesRecordAndShadow covers S1: admitting a
// single-sender partial record yields a record message and a matching
// empty state-shadow message, both correlated on the fresh transaction id.
func TestPartialAdmissionPublishesRecordAndShadow(t *testing.T) {
	e := setup(t)

	producerCh, err := e.conn.Channel()
	require.NoError(t, err)
	defer producerCh.Close()
	producer := rabbitmq.NewProducer(producerCh)

	manager := fullsync.NewManager()
	s := seeder.New(producer, manager, seeder.SenderConfig{SingleSenderID: "S1"})

	txnID, err := s.SeedToPartial(context.Background(), "hello", nil)
	require.NoError(t, err)
	require.NotEmpty(t, txnID)

	recCh, err := e.conn.Channel()
	require.NoError(t, err)
	defer recCh.Close()
	recDeliveries, err := recCh.Consume(rabbitmq.QueuePartialIncoming, "", true, false, false, false, nil)
	require.NoError(t, err)
	select {
	case d := <-recDeliveries:
		require.Equal(t, "S1", d.Headers[header.KeySenderID])
		require.Equal(t, txnID, d.Headers[header.KeyTransactionID])
	case <-time.After(10 * time.Second):
		t.Fatal("no record message received")
	}

	stateCh, err := e.conn.Channel()
	require.NoError(t, err)
	defer stateCh.Close()
	stateDeliveries, err := stateCh.Consume(rabbitmq.QueueTransactionState, "", true, false, false, false, nil)
	require.NoError(t, err)
	select {
	case d := <-stateDeliveries:
		require.Equal(t, txnID, d.Headers[header.KeyTransactionID])
		require.Equal(t, string(domain.TxNew), d.Headers[header.KeyTransactionState])
	case <-time.After(10 * time.Second):
		t.Fatal("no state-shadow message received")
	}
}

// TestFullAdmissionGatedWhenNotSeeding covers S2: a full-sync admission
// attempt while the singleton manager is READY is rejected before anything
// is published.
func TestFullAdmissionGatedWhenNotSeeding(t *testing.T) {
	e := setup(t)

	producerCh, err := e.conn.Channel()
	require.NoError(t, err)
	defer producerCh.Close()
	producer := rabbitmq.NewProducer(producerCh)

	manager := fullsync.NewManager()
	s := seeder.New(producer, manager, seeder.SenderConfig{SingleSenderID: "S1"})

	sender := "S1"
	txnID, err := s.SeedToFull(context.Background(), "x", &sender)
	require.NoError(t, err)
	require.Nil(t, txnID)
}

// TestFullAdmissionLazyJobCreationThenCompletion covers S3 and S5 in one
// end-to-end run: starting a full-sync cycle, admitting a record that
// lazily creates its SyncJob on the first NEW transaction-state event, then
// driving the job to completion via sedex-state events.
func TestFullAdmissionLazyJobCreationThenCompletion(t *testing.T) {
	e := setup(t)

	producerCh, err := e.conn.Channel()
	require.NoError(t, err)
	defer producerCh.Close()
	producer := rabbitmq.NewProducer(producerCh)

	manager := fullsync.NewManager()
	_, err = manager.StartSeeding(context.Background())
	require.NoError(t, err)

	s := seeder.New(producer, manager, seeder.SenderConfig{SingleSenderID: "S1"})
	sender := "S1"
	txnIDPtr, err := s.SeedToFull(context.Background(), "x", &sender)
	require.NoError(t, err)
	require.NotNil(t, txnIDPtr)
	txnID := *txnIDPtr

	jobID := manager.GetCurrentFullSyncJobID()
	require.NotEmpty(t, jobID)

	cache, err := lru.New[string, domain.SyncJob](64)
	require.NoError(t, err)
	txnProcessor := txnstate.NewProcessor(e.pool, cache, manager)

	drainOne(t, e.conn, rabbitmq.QueueTransactionState, deliveryHandler(txnProcessor.Process))

	syncJobs := postgres.NewSyncJobRepo(e.pool)
	job, err := syncJobs.FindByJobID(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobNew, job.JobState)
	require.Equal(t, domain.JobTypeFull, job.JobType)

	transactions := postgres.NewTransactionRepo(e.pool)
	txn, err := transactions.FindByTransactionID(context.Background(), txnID)
	require.NoError(t, err)
	require.NotNil(t, txn.JobID)
	require.Equal(t, jobID, *txn.JobID)
	require.Equal(t, domain.TxNew, txn.State)

	require.NoError(t, syncJobs.UpdateState(context.Background(), jobID, domain.JobSending, time.Now().UTC()))

	ctx := context.Background()

	seedSedexMessage(t, e.pool, jobID, "m1", domain.SedexSuccessful)
	seedSedexMessage(t, e.pool, jobID, "m2", domain.SedexSuccessful)
	seedSedexMessage(t, e.pool, jobID, "m3", domain.SedexSuccessful)

	sedexProcessor := sedexstate.NewProcessor(e.pool, manager)
	publishSedexEvent(t, e.conn, jobID)
	drainOne(t, e.conn, rabbitmq.QueueSedexState, deliveryHandler(sedexProcessor.Process))

	job, err = syncJobs.FindByJobID(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.JobState)
}

func seedSedexMessage(t *testing.T, pool *pgxpool.Pool, jobID, messageID string, state domain.SedexMessageState) {
	t.Helper()
	now := time.Now().UTC()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO sedex_messages (message_id, job_id, state, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		messageID, jobID, string(state), now)
	require.NoError(t, err)
}
