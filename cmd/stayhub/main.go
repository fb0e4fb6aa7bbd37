package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"stayhub/internal/app/commands"
	availabilityapp "stayhub/internal/app/handlers/availability"
	bookingapp "stayhub/internal/app/handlers/booking"
	paymentsapp "stayhub/internal/app/handlers/payments"
	"stayhub/internal/app/middleware"
	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/queries"
	"stayhub/internal/infra/broker/kafka"
	"stayhub/internal/infra/config"
	"stayhub/internal/infra/gateway"
	ginserver "stayhub/internal/infra/http/gin"
	redislock "stayhub/internal/infra/lock/redis"
	"stayhub/internal/infra/obs"
	"stayhub/internal/infra/outbox"
	"stayhub/internal/infra/security"
	"stayhub/internal/infra/storage/memory"
	"stayhub/internal/infra/validation"
)

const devJWTSecret = "stayhub-dev-secret"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg = config.Fallback()
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer store.close()

	locker, closeLocker := buildLocker(cfg, store.checks, logger)
	defer closeLocker()

	producer, closeProducer := buildProducer(cfg, logger)
	defer closeProducer()
	relay := &outbox.Worker{
		Store:       store.relay,
		Producer:    producer,
		Logger:      logger,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
	}

	app, err := buildApplication(cfg, store, locker, relay, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}

	if err := loadPropertyFixtures(ctx, store.factory, fixturesPath(cfg), logger); err != nil {
		logger.Warn("property fixtures load failed", "error", err)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: store.checks}, app.handlers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		return nil
	})

	g.Go(func() error { return relay.Run(gctx) })

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaGatewayTopic != "" {
		handler := &kafka.GatewayResultHandler{Bus: app.commands, Inbox: store.inbox, Logger: logger}
		consumer, err := kafka.NewConsumer(kafka.ConsumerOptions{
			Brokers: cfg.KafkaBrokers,
			Group:   cfg.KafkaConsumerGroup,
			Topics:  []string{cfg.KafkaGatewayTopic},
			Logger:  logger,
		}, handler)
		if err != nil {
			logger.Error("kafka consumer init failed", "error", err)
		} else {
			defer consumer.Close()
			g.Go(func() error { return consumer.Run(gctx) })
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

type application struct {
	handlers ginserver.Handlers
	commands commands.Bus
}

func buildApplication(cfg config.Config, store *storage, locker policies.Locker, relay appoutbox.Notifier, logger *slog.Logger) (application, error) {
	encoder := appoutbox.JSONEventEncoder{Headers: obs.CorrelationHeaders}

	gateways := gateway.Build(cfg, &http.Client{Timeout: cfg.GatewayTimeout}, gateway.Deps{Logger: logger})
	logger.Info("payment gateways enabled", "methods", gateways.Methods())

	commandBus := commands.NewInMemoryBus()
	createHandler := &bookingapp.CreateBookingHandler{
		UoWFactory: store.factory,
		Outbox:     store.outbox,
		Encoder:    encoder,
		Logger:     logger,
	}
	commands.Register(commandBus, createHandler.Handle)
	lifecycle := &bookingapp.LifecycleHandler{
		UoWFactory: store.factory,
		Outbox:     store.outbox,
		Encoder:    encoder,
		Logger:     logger,
	}
	commands.Register(commandBus, lifecycle.Cancel)
	commands.Register(commandBus, lifecycle.Confirm)
	commands.Register(commandBus, lifecycle.MarkPaymentFailed)
	processHandler := &paymentsapp.ProcessPaymentHandler{
		UoWFactory:     store.factory,
		Locker:         locker,
		Gateways:       gateways,
		Outbox:         store.outbox,
		Encoder:        encoder,
		Logger:         logger,
		PendingTimeout: cfg.PaymentPendingTimeout,
		GatewayTimeout: cfg.GatewayTimeout,
	}
	commands.Register(commandBus, processHandler.Handle)
	reconcileHandler := &paymentsapp.ReconcilePaymentHandler{
		UoWFactory: store.factory,
		Locker:     locker,
		Outbox:     store.outbox,
		Encoder:    encoder,
		Logger:     logger,
	}
	commands.Register(commandBus, reconcileHandler.Handle)

	queryBus := queries.NewInMemoryBus()
	bookingQueries := &bookingapp.QueryHandler{UoWFactory: store.factory, Logger: logger}
	queries.Register(queryBus, bookingQueries.Get)
	queries.Register(queryBus, bookingQueries.ListGuest)
	queries.Register(queryBus, bookingQueries.ListHost)
	queries.Register(queryBus, bookingQueries.ListByState)
	queries.Register(queryBus, bookingQueries.ListAwaitingPayment)
	queries.Register(queryBus, bookingQueries.Quote)
	calendar := &availabilityapp.GetCalendarHandler{UoWFactory: store.factory}
	queries.Register(queryBus, calendar.Handle)
	paymentQueries := &paymentsapp.QueryHandler{UoWFactory: store.factory, Logger: logger}
	queries.Register(queryBus, paymentQueries.Get)
	queries.Register(queryBus, paymentQueries.ListPaidForGuest)
	queries.Register(queryBus, paymentQueries.ListPaidGuestsForHost)
	queries.Register(queryBus, paymentQueries.ListPaid)

	validator := validation.New()
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Validation(validator),
		middleware.Authorization(middleware.RoleAuthorizer{}),
		middleware.Locking(locker),
		middleware.Idempotency(store.idempotency, nil),
		middleware.RelayNudge(relay),
		middleware.Transaction(store.factory, nil),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryValidation(validator),
		middleware.QueryAuthorization(middleware.RoleAuthorizer{}),
	)

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}
	tokens, err := security.NewJWTService(secret, "")
	if err != nil {
		return application{}, err
	}

	return application{
		commands: commandBusWithMiddleware,
		handlers: ginserver.Handlers{
			Booking:        ginserver.BookingHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
			Availability:   ginserver.AvailabilityHandler{Queries: queryBusWithMiddleware, Logger: logger},
			Me:             ginserver.MeHandler{Queries: queryBusWithMiddleware, Logger: logger},
			HostBooking:    ginserver.HostBookingHandler{Queries: queryBusWithMiddleware, Logger: logger},
			Admin:          ginserver.AdminHandler{Queries: queryBusWithMiddleware, Logger: logger},
			Payment:        ginserver.PaymentHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
			Webhook:        ginserver.WebhookHandler{Commands: commandBusWithMiddleware, Callbacks: gateways, Logger: logger},
			AuthMiddleware: ginserver.AuthMiddleware{Verifier: tokens, Logger: logger}.Handle,
		},
	}, nil
}

// buildLocker prefers Redis so locks hold across replicas.
func buildLocker(cfg config.Config, checks map[string]obs.Check, logger *slog.Logger) (policies.Locker, func()) {
	if cfg.RedisAddr == "" {
		return memory.NewKeyedLocker(cfg.LockTimeout), func() {}
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	locker := redislock.New(client, cfg.LockTimeout)
	locker.Logger = logger
	return locker, func() { _ = client.Close() }
}

func buildProducer(cfg config.Config, logger *slog.Logger) (outbox.Producer, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, outbox events are logged only")
		return outbox.LogProducer{Logger: logger}, func() {}
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, sarama.NewConfig())
	if err != nil {
		logger.Error("kafka producer init failed, falling back to log producer", "error", err)
		return outbox.LogProducer{Logger: logger}, func() {}
	}
	return producer, func() { _ = producer.Close() }
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
