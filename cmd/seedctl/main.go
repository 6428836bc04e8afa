// Command seedctl admits a single person-data record into the pipeline
// against a running broker, exercising the Job Seeder outside the test
// suite. It stands in for the out-of-scope HTTP admission surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/rabbitmq"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/config"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/fullsync"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/seeder"
)

func main() {
	var (
		full     = flag.Bool("full", false, "seed as a FULL job instead of PARTIAL")
		senderID = flag.String("sender-id", "", "sender id; empty defaults to the single configured sender")
		payload  string
	)
	flag.StringVar(&payload, "payload", "", "opaque record payload (required)")
	flag.Parse()

	if payload == "" {
		fmt.Fprintln(os.Stderr, "seedctl: -payload is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedctl: config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	maxElapsed, initialInterval, maxInterval := cfg.BrokerBackoffConfig()
	conn, err := rabbitmq.Dial(ctx, cfg.AMQPURL, maxElapsed, initialInterval, maxInterval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedctl: broker dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedctl: channel: %v\n", err)
		os.Exit(1)
	}
	defer ch.Close()
	if err := rabbitmq.DeclareTopology(ch); err != nil {
		fmt.Fprintf(os.Stderr, "seedctl: topology: %v\n", err)
		os.Exit(1)
	}

	producer := rabbitmq.NewProducer(ch)

	allowed, err := cfg.ResolveSenderIDs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedctl: sender ids: %v\n", err)
		os.Exit(1)
	}
	senderCfg := seeder.SenderConfig{SingleSenderID: cfg.SenderID, MultiSender: cfg.MultiSender, AllowedSenderIDs: allowed}

	// seedctl never drives the Full-Sync State Manager's SEEDING lifecycle
	// (that is an operator/admin decision). The manager below is a fresh,
	// process-local instance that stays in READY, so with -full SeedToFull
	// publishes nothing and seedctl exits with an error.
	manager := fullsync.NewManager()
	s := seeder.New(producer, manager, senderCfg)

	var sid *string
	if *senderID != "" {
		sid = senderID
	}

	if *full {
		txnID, err := s.SeedToFull(ctx, payload, sid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seedctl: seed full: %v\n", err)
			os.Exit(1)
		}
		if txnID == nil {
			fmt.Fprintln(os.Stderr, "seedctl: full-sync manager is not in SEEDING; nothing published")
			os.Exit(1)
		}
		slog.Info("seeded full record", slog.String("transaction_id", *txnID))
		return
	}

	txnID, err := s.SeedToPartial(ctx, payload, sid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seedctl: seed partial: %v\n", err)
		os.Exit(1)
	}
	slog.Info("seeded partial record", slog.String("transaction_id", txnID))
}
