// Command service hosts the state processors, the Full-Sync State Manager,
// the reconciliation sweep, and a small operator-facing HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	httpserver "github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/httpserver"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/observability"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/header"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/queue/rabbitmq"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/adapter/repo/postgres"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/app"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/config"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/reconcile"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/fullsync"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/queuestats"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/sedexstate"
	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/usecase/txnstate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	maxElapsed, initialInterval, maxInterval := cfg.BrokerBackoffConfig()
	conn, err := rabbitmq.Dial(ctx, cfg.AMQPURL, maxElapsed, initialInterval, maxInterval)
	if err != nil {
		slog.Error("broker connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	topologyCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open topology channel", slog.Any("error", err))
		os.Exit(1)
	}
	if err := rabbitmq.DeclareTopology(topologyCh); err != nil {
		slog.Error("failed to declare topology", slog.Any("error", err))
		os.Exit(1)
	}
	_ = topologyCh.Close()

	statsCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open stats channel", slog.Any("error", err))
		os.Exit(1)
	}
	stats := rabbitmq.NewStats(statsCh)
	probe := queuestats.New(stats)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", slog.Any("error", err))
			os.Exit(1)
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
	}

	settingRepo := postgres.NewSettingRepo(pool)
	manager := fullsync.NewManager(fullsync.WithRedis(redisClient), fullsync.WithSettingRepository(settingRepo))
	if err := manager.Restore(ctx); err != nil {
		slog.Warn("full-sync state restore failed, starting from READY", slog.Any("error", err))
	}

	cache, err := lru.New[string, domain.SyncJob](cfg.SyncJobCacheSize)
	if err != nil {
		slog.Error("failed to construct sync job cache", slog.Any("error", err))
		os.Exit(1)
	}

	txnProcessor := txnstate.NewProcessor(pool, cache, manager)
	sedexProcessor := sedexstate.NewProcessor(pool, manager)

	var wg sync.WaitGroup

	txnCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open transaction-state channel", slog.Any("error", err))
		os.Exit(1)
	}
	txnConsumer := rabbitmq.NewConsumer(txnCh, rabbitmq.QueueTransactionState, cfg.TransactionStateWorkers, cfg.TransactionStatePrefetch)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := txnConsumer.Run(ctx, deliveryHandler(txnProcessor.Process)); err != nil {
			slog.Error("transaction-state consumer stopped", slog.Any("error", err))
		}
	}()

	sedexCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open sedex-state channel", slog.Any("error", err))
		os.Exit(1)
	}
	sedexConsumer := rabbitmq.NewConsumer(sedexCh, rabbitmq.QueueSedexState, cfg.SedexStateWorkers, cfg.SedexStatePrefetch)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sedexConsumer.Run(ctx, deliveryHandler(sedexProcessor.Process)); err != nil {
			slog.Error("sedex-state consumer stopped", slog.Any("error", err))
		}
	}()

	sweeper := reconcile.New(postgres.NewSyncJobRepo(pool), postgres.NewTransactionRepo(pool), cfg.ReconcileStuckJobAge, cfg.ReconcileStuckTxnAge)
	cronJob, err := sweeper.Start(ctx, cfg.ReconcileSchedule)
	if err != nil {
		slog.Error("failed to start reconciliation sweep", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { <-cronJob.Stop().Done() }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		probe.RunRefresher(ctx, []string{
			rabbitmq.QueuePartialIncoming, rabbitmq.QueuePartialOutgoing, rabbitmq.QueuePartialFailed,
			rabbitmq.QueueFullIncoming, rabbitmq.QueueFullOutgoing, rabbitmq.QueueFullFailed,
			rabbitmq.QueueTransactionState, rabbitmq.QueueSedexState, rabbitmq.QueueSedexOutgoing,
		}, cfg.QueueStatsRefreshInterval)
	}()

	dbCheck, brokerCheck, redisCheck := app.BuildReadinessChecks(pool, conn, redisClient)
	srv := httpserver.NewServer(dbCheck, brokerCheck, redisCheck, probe)
	handler := app.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	stop()
	wg.Wait()
}

// deliveryHandler adapts a domain.Envelope-based usecase function to the
// broker transport's Handler signature, keeping header.Parse out of the
// usecase layer.
func deliveryHandler(process func(ctx context.Context, env domain.Envelope) error) rabbitmq.Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		env, err := header.Parse(d.Headers)
		if err != nil {
			return err
		}
		return process(ctx, env)
	}
}
