package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stayhub/internal/app/middleware"
	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	"stayhub/internal/infra/broker/kafka"
	"stayhub/internal/infra/config"
	"stayhub/internal/infra/db/mongo"
	"stayhub/internal/infra/db/postgres"
	"stayhub/internal/infra/obs"
	"stayhub/internal/infra/outbox"
	"stayhub/internal/infra/storage/memory"
)

const gatewayResultsConsumer = "gateway-results"

// storage groups everything the selected driver provides. The outbox writer
// and the relay share one backing store.
type storage struct {
	factory     uow.UoWFactory
	outbox      appoutbox.Outbox
	relay       outbox.Store
	idempotency middleware.IdempotencyStore
	inbox       kafka.Inbox
	checks      map[string]obs.Check
	close       func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		return openMongo(ctx, cfg)
	case config.DriverPostgres:
		return openPostgres(ctx, cfg)
	case config.DriverMemory, "":
		logger.Warn("using in-memory storage, data is lost on restart")
		return openMemory(cfg), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func openMemory(cfg config.Config) *storage {
	store := memory.NewStore()
	box := memory.NewOutbox(store)
	return &storage{
		factory:     memory.Factory{Store: store},
		outbox:      box,
		relay:       box,
		idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
		inbox:       memory.NewInbox(),
		checks:      map[string]obs.Check{},
		close:       func() {},
	}
}

func openMongo(ctx context.Context, cfg config.Config) (*storage, error) {
	client, err := mongo.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	closeClient := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Close(shutdownCtx)
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		closeClient()
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	idem, err := mongo.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("mongo idempotency store: %w", err)
	}
	box := mongo.NewOutboxStore(client.DB)
	return &storage{
		factory:     mongo.Factory{DB: client.DB},
		outbox:      box,
		relay:       box,
		idempotency: idem,
		inbox:       mongo.NewInboxStore(client.DB, gatewayResultsConsumer),
		checks:      map[string]obs.Check{"mongo": client.Ping},
		close:       closeClient,
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*storage, error) {
	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.InitialiseDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	box := postgres.NewOutboxStore(db)
	return &storage{
		factory:     postgres.Factory{DB: db},
		outbox:      box,
		relay:       box,
		idempotency: postgres.NewIdempotencyStore(db, cfg.IdempotencyTTL),
		inbox:       postgres.NewInboxStore(db, gatewayResultsConsumer),
		checks:      map[string]obs.Check{"postgres": db.PingContext},
		close:       func() { _ = db.Close() },
	}, nil
}
