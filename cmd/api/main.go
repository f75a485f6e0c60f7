package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sale-service/config"
	"sale-service/internal/events"
	"sale-service/internal/handler"
	"sale-service/internal/middleware"
	"sale-service/internal/outbox"
	"sale-service/internal/rabbitmq"
	"sale-service/internal/redis"
	"sale-service/internal/repository"
	"sale-service/internal/saga"
	"sale-service/internal/server"
	"sale-service/internal/services"
	"sale-service/pkg/database"
	"sale-service/pkg/logger"
	"sale-service/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const consumerTag = "sale-service"

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(log)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("service stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing.SetupPropagation()

	if cfg.JWTSecret == "" {
		return middleware.ErrMissingSecret
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	uow := repository.NewUnitOfWorkFactory(pool)

	var ledger repository.IdempotencyLedger = repository.NewIdempotencyRepository(pool)
	if cfg.RedisAddr() != "" {
		client, err := redis.Connect(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Warn("redis unavailable, idempotency cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			ledger = redis.NewCachedLedger(ledger, client, cfg.Consumer.IdempotencyTTL, log)
		}
	}

	conn := rabbitmq.NewConnection(cfg.RabbitMQ.URL)
	defer conn.Close()
	publisher := rabbitmq.NewPublisher(cfg.RabbitMQ.Exchange, conn.PublisherChannel, 0, log)
	defer publisher.Close()

	scope := repository.NewPooledOutboxScope(pool, repository.WithMaxAttempts(cfg.Outbox.MaxAttempts))
	runner := outbox.NewRunner(outbox.DefaultProcessor(cfg.Outbox, scope, publisher, log))

	consumer := rabbitmq.NewConsumer(conn.ConsumerChannel, rabbitmq.ConsumerConfig{
		Topology: rabbitmq.Topology{
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
			Bindings: events.BindingKeys(),
		},
		Prefetch:         cfg.RabbitMQ.Prefetch,
		HandlerTimeout:   cfg.Consumer.HandlerTimeout,
		ReconnectBackoff: cfg.Consumer.ReconnectBackoff,
		Tag:              consumerTag,
	}, log)
	sagaHandler := saga.NewConsumer(uow, ledger, publisher, log)

	srv := server.New(cfg, log)
	srv.SetupRoutes(&server.Handlers{
		Sale: handler.NewSaleHandler(services.NewSaleService(uow, log)),
	}, pool)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		runner.Start(gctx)
		runner.Wait()
		return nil
	})
	g.Go(func() error {
		consumer.Run(gctx, sagaHandler)
		return nil
	})

	log.Info("service started",
		zap.String("exchange", cfg.RabbitMQ.Exchange),
		zap.String("queue", cfg.RabbitMQ.Queue),
		zap.Int("outbox_batch", cfg.Outbox.BatchSize),
	)
	return g.Wait()
}
