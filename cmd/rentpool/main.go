package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rentpool/internal/app/bootstrap"
	"rentpool/internal/domain/assignment"
	"rentpool/internal/infra/broker/kafka"
	"rentpool/internal/infra/config"
	ginserver "rentpool/internal/infra/http/gin"
	"rentpool/internal/infra/inbox"
	"rentpool/internal/infra/obs"
	infraoutbox "rentpool/internal/infra/outbox"
	"rentpool/internal/infra/schedule"
	"rentpool/internal/infra/storage/s3"
	"rentpool/internal/infra/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("prod", "").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rentpool stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("rentpool stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	health := obs.NewHealth(2*time.Second, logger)

	st, err := openStore(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer st.close(logger)

	producer, closeProducer, err := openProducer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProducer()

	relay := &infraoutbox.Relay{
		Store:       st.outbox,
		Producer:    producer,
		Logger:      logger.With("component", "outbox"),
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
	}

	var images *s3.ImageStore
	if cfg.S3Endpoint != "" {
		images, err = s3.NewImageStore(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return err
		}
		health.Register("s3", images.Ping)
	}

	seed := cfg.AssignmentSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	deps := bootstrap.Deps{
		UoWFactory:  st.factory,
		Idempotency: st.idempotency,
		Validator:   validation.New(),
		Flusher:     relay,
		Logger:      logger,
		Random:      assignment.NewSource(seed),
		MaxAttempts: cfg.BookMaxAttempts,
		BookTimeout: cfg.BookTimeout,
		BookBackoff: cfg.BookRetryBackoff,
	}
	if images != nil {
		deps.Images = images
	}
	buses := bootstrap.Build(deps)

	if cfg.SeedDemo {
		if err := seedDemo(ctx, buses.Commands, logger); err != nil {
			logger.Warn("demo fleet seed failed", "error", err)
		}
	}

	runner := schedule.NewRunner(logger, time.Minute)
	jobs := []schedule.Job{
		{Name: "fleet-audit", Spec: cfg.AuditSchedule, Run: schedule.FleetAudit(buses.Queries, logger)},
		{Name: "health-refresh", Spec: "@every 15s", Run: schedule.HealthRefresh(health)},
	}
	if st.purger != nil {
		jobs = append(jobs, schedule.Job{Name: "idempotency-purge", Spec: "@hourly", Run: schedule.IdempotencyPurge(st.purger, logger)})
	}
	for _, job := range jobs {
		if err := runner.Add(job); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background task failed", "task", name, "error", err)
				stop()
			}
		}()
	}
	background("outbox-relay", relay.Run)
	background("cron", runner.Run)
	if cfg.GRPCAddr != "" {
		background("grpc-health", func(ctx context.Context) error { return health.ServeGRPC(ctx, cfg.GRPCAddr) })
	}
	if cfg.Broker == config.BrokerKafka {
		var box inbox.Store = inbox.NewMemory(cfg.IdempotencyTTL)
		if st.inbox != nil {
			box = st.inbox
		}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, &kafka.StatusHandler{
			Bus:    buses.Commands,
			Inbox:  box,
			Logger: logger.With("component", "status-consumer"),
		}, kafka.ConsumerOptions{Backoff: cfg.RetryBackoff, Logger: logger})
		if err != nil {
			return err
		}
		defer consumer.Close()
		background("status-consumer", func(ctx context.Context) error {
			return consumer.Run(ctx, []string{cfg.KafkaStatusTopic})
		})
	}
	if err := health.Refresh(ctx); err != nil {
		logger.Warn("initial readiness check failed", "error", err)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, health, ginserver.Handlers{
		Availability: ginserver.NewAvailabilityHandler(buses.Queries, logger),
		Booking:      ginserver.NewBookingHandler(buses.Commands, buses.Queries, logger),
		Fleet:        ginserver.NewFleetHandler(buses.Commands, buses.Queries, logger),
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "broker", cfg.Broker)
	err = server.ListenAndServe()
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
