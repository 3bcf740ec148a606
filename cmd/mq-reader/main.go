package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-mq-relay/internal/adapters/db/postgres"
	"golang-mq-relay/internal/adapters/queue/rabbitmq"
	"golang-mq-relay/internal/app"
	cfg "golang-mq-relay/internal/config"
	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/middleware"
	"golang-mq-relay/internal/ports"
	"golang-mq-relay/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	conf, err := cfg.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: conf.SlogLevel()}))
	if err := run(conf, log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(conf cfg.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Adapters ─────────────────────────────────────────────────────────────
	var journal ports.ObservationJournal
	if conf.JournalDatabaseURL != "" {
		j, err := postgres.NewJournal(conf.JournalDatabaseURL)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		journal = j
	}

	cm := rabbitmq.NewConnectionManager(
		rabbitmq.WithLogger(log),
		rabbitmq.WithSessionCacheSize(conf.SessionCacheSize),
		rabbitmq.WithConnectRetries(conf.ConnectRetries),
		rabbitmq.WithConnectionName("mq-reader"),
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

	// ── Routes ───────────────────────────────────────────────────────────────
	relay := app.NewRelayHandler(producer, topic, log)
	observer := app.NewObserver(topic, journal, log)

	registry := app.NewRegistry(log)
	if err := registry.Route(queue, relay.Handle); err != nil {
		return err
	}
	if err := registry.Route(topic, observer.Handle); err != nil {
		return err
	}
	if err := registry.StartAll(ctx, rabbitmq.Factory(handle, rabbitmq.WithContainerLogger(log))); err != nil {
		return err
	}

	// ── Status HTTP ──────────────────────────────────────────────────────────
	fiberApp := fiber.New(fiber.Config{
		AppName:               "mq-reader",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	fiberApp.Use(recover.New())
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.NewRateLimiter(conf.RatePerIP).Middleware())
	transport.NewReaderHandler(registry.Listeners, journal, log).Register(fiberApp)

	errChan := make(chan error, 1)
	go func() {
		if err := fiberApp.Listen(conf.ReaderHTTPAddr); err != nil {
			errChan <- err
		}
	}()

	log.Info("mq-reader started",
		"addr", conf.ReaderHTTPAddr,
		"broker", rabbitmq.SanitizeURL(conf.BrokerURL),
		"journal", journal != nil,
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	case <-handle.Lost():
		log.Error("broker connection lost")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	// HTTP first so /health stops reading listeners before they go away.
	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if err := registry.StopAll(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop listeners: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.Info("mq-reader stopped")
	if handle.IsClosed() {
		return domain.ErrNotConnected
	}
	return nil
}
