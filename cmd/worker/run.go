package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"frame-worker/internal/config"
	"frame-worker/internal/infra/codec"
	pg "frame-worker/internal/infra/db/postgres"
	httpapi "frame-worker/internal/infra/http"
	"frame-worker/internal/infra/metrics"
	"frame-worker/internal/infra/rabbitmq"
	red "frame-worker/internal/infra/redis"
	"frame-worker/internal/infra/sched"
	"frame-worker/internal/infra/storage"
	"frame-worker/internal/usecase"
)

const poolStatsInterval = 15 * time.Second

func runCmd(flags *rootFlags) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start consumers, the retry relay, the expiry worker and the admin server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrateFirst {
				v, err := pg.Migrate(cfg.Database.URL)
				if err != nil {
					return err
				}
				logger.Info().Uint("version", v).Msg("database migrated")
			}
			return runWorker(ctx, cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- RabbitMQ ----
	conn, err := rabbitmq.Dial(cfg.AMQP.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer conn.Close()
	publisher, err := rabbitmq.NewPublisher(conn)
	if err != nil {
		return fmt.Errorf("rabbitmq publisher: %w", err)
	}
	defer publisher.Close()

	// ---- Object storage ----
	s3Client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return err
	}
	objects := storage.NewObjectStore(s3Client, cfg.Storage.Bucket, logger)
	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Worker.ScratchDir, 0o750); err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}

	// ---- Use cases ----
	jobRepo := pg.NewJobRepo(pool)
	stateMachine := usecase.NewJobStateMachine(jobRepo, pg.NewTxManager(pool), logger)
	notifier := usecase.NewNotificationDispatcher(publisher, logger)
	delayQueue := red.NewDelayQueue(redisClient)
	policy := usecase.RetryPolicy{
		MaxAttempts: cfg.Worker.MaxAttempts,
		BaseDelay:   cfg.Worker.BaseDelay,
		MaxDelay:    cfg.Worker.MaxDelay,
	}
	retry := usecase.NewRetryController(policy, stateMachine, delayQueue, notifier, logger)
	pipeline := usecase.NewPipeline(jobRepo, stateMachine, objects,
		codec.NewFFmpeg(cfg.Codec, logger), codec.NewZipPackager(), cfg.Worker.ScratchDir, logger)
	handler := usecase.NewJobHandler(
		red.NewDedupGate(redisClient, cfg.Worker.DedupTTL),
		red.NewLocker(redisClient, logger),
		pipeline, retry, notifier, policy, cfg.Worker.LockTTL, logger,
	)
	retention := usecase.NewRetentionUseCase(jobRepo, stateMachine, objects,
		cfg.Worker.Retention, cfg.Worker.ExpiryBatch, logger)

	// ---- Background loops ----
	g, gctx := errgroup.WithContext(ctx)

	host, _ := os.Hostname()
	for i := range cfg.Worker.Consumers {
		consumer, err := rabbitmq.NewConsumer(conn, fmt.Sprintf("%s-%d", host, i), handler, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Start(gctx) })
	}

	relay := sched.NewRetryRelay(cfg.Worker.RelayInterval, int64(cfg.Worker.RelayBatch), delayQueue, publisher, logger)
	g.Go(func() error { return relay.Run(gctx) })

	expiry := sched.NewExpiryWorker(cfg.Worker.ExpiryInterval, retention, logger)
	g.Go(func() error { return expiry.Run(gctx) })

	g.Go(func() error { return pg.ReportPoolStats(gctx, pool, poolStatsInterval, logger) })

	admin := httpapi.NewServer(cfg.Admin.Port, map[string]httpapi.Pinger{
		"postgres": pool,
		"redis":    redisClient,
		"storage":  objects,
	}, logger)
	g.Go(func() error { return admin.Run(gctx) })

	logger.Info().
		Str("version", version).
		Int("consumers", cfg.Worker.Consumers).
		Int("max_attempts", policy.MaxAttempts).
		Msg("frame worker started")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("frame worker stopped with error")
		return err
	}
	logger.Info().Msg("frame worker stopped")
	return nil
}
