package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-mq-relay/internal/adapters/batch"
	"golang-mq-relay/internal/adapters/queue/rabbitmq"
	"golang-mq-relay/internal/app"
	cfg "golang-mq-relay/internal/config"
	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/middleware"
	"golang-mq-relay/internal/ports"
	"golang-mq-relay/internal/transport"
	"golang-mq-relay/internal/workerpool"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	conf, err := cfg.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true, Level: conf.SlogLevel()}))
	if err := run(conf, log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(conf cfg.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cm := rabbitmq.NewConnectionManager(
		rabbitmq.WithLogger(log),
		rabbitmq.WithSessionCacheSize(conf.SessionCacheSize),
		rabbitmq.WithConnectRetries(conf.ConnectRetries),
		rabbitmq.WithConnectionName("mq-writer"),
	)
	defer cm.Close()

	handle, err := cm.Connect(ctx, conf.BrokerURL, rabbitmq.Credentials{
		Username: conf.BrokerUsername,
		Password: conf.BrokerPassword,
	})
	if err != nil {
		return err
	}

	topic := domain.Topic(conf.TopicName)
	queue := domain.Queue(conf.QueueName)
	if err := rabbitmq.Declare(ctx, handle, topic, queue); err != nil {
		return err
	}

	producer := rabbitmq.NewProducer(handle,
		rabbitmq.WithPublishTimeout(conf.PublishTimeout),
		rabbitmq.WithProducerLogger(log),
	)

	overflow, err := workerpool.ParseOverflow(conf.BulkOverflow)
	if err != nil {
		return err
	}
	pool, err := workerpool.New(workerpool.Config{
		CoreWorkers: conf.BulkCoreWorkers,
		MaxWorkers:  conf.BulkMaxWorkers,
		QueueSize:   conf.BulkQueueSize,
		KeepAlive:   time.Minute,
		Overflow:    overflow,
	}, log)
	if err != nil {
		return err
	}

	svc := app.NewSendService(producer, topic, queue, log)
	dispatcher := app.NewBulkDispatcher(producer, queue, pool, log, app.WithRatePerSec(conf.BulkRatePerSec))

	var source ports.BatchSource = batch.EmbeddedSource()
	if conf.MessagesFile != "" {
		source = batch.FileSource{Path: conf.MessagesFile}
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:               "mq-writer",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          conf.PublishTimeout + 5*time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		BodyLimit:             1 * 1024 * 1024,
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency} ${locals:request_id}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig(conf.AllowedOrigins))

	rateLimiter := middleware.NewRateLimiter(conf.RatePerIP)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go rateLimiter.RunCleanup(5*time.Minute, stopCleanup)
	fiberApp.Use(rateLimiter.Middleware())
	fiberApp.Use(middleware.GlobalLimit(conf.RateGlobal))

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		if handle.IsClosed() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "broker disconnected"})
		}
		ps, ss := pool.Stats(), handle.Stats()
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"workers":  ps.Workers,
			"queued":   ps.Queued,
			"capacity": ps.Capacity,
			"sessions": fiber.Map{"capacity": ss.Capacity, "in_use": ss.InUse, "idle": ss.Idle},
		})
	})

	transport.NewHandler(svc, dispatcher, source, log).Register(fiberApp)

	errChan := make(chan error, 1)
	go func() {
		log.Info("mq-writer started",
			"addr", conf.HTTPAddr,
			"broker", rabbitmq.SanitizeURL(conf.BrokerURL),
			"topic", topic.String(),
			"queue", queue.String(),
			"bulk_source", source.Name(),
		)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("drain bulk jobs: %w", err)
	}

	log.Info("mq-writer stopped gracefully")
	return nil
}
