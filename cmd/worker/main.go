package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/internal/customers"
	"github.com/angelmondragon/groceryhub-backend/internal/documents"
	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/internal/whatsapp"
	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/instance"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
	"github.com/angelmondragon/groceryhub-backend/pkg/migrate"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/groceryhub-backend/pkg/phone"
	"github.com/angelmondragon/groceryhub-backend/pkg/pubsub"
	"github.com/angelmondragon/groceryhub-backend/pkg/redis"
	"github.com/angelmondragon/groceryhub-backend/pkg/storage/gcs"
	"github.com/angelmondragon/groceryhub-backend/pkg/twilio"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.ApplyOnStartup(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs client", err)
		}
	}()

	sender, err := twilio.New(cfg.Twilio, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create whatsapp sender", err)
		os.Exit(1)
	}

	orderConsumer, dispatchConsumer, err := buildConsumers(cfg, logg, dbClient, redisClient, pubsubClient, gcsClient, sender)
	if err != nil {
		logg.Error(context.Background(), "failed to wire consumers", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		Dependencies: map[string]pinger{
			"database": dbClient.Ping,
			"redis":    redisClient.Ping,
			"pubsub":   pubsubClient.Ping,
			"gcs":      gcsClient.Ping,
		},
		Consumers: map[string]consumer{
			"order-notifications": orderConsumer,
			"whatsapp-dispatch":   dispatchConsumer,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func buildConsumers(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	pubsubClient *pubsub.Client,
	gcsClient *gcs.Client,
	sender twilio.Sender,
) (*whatsapp.OrderConsumer, *whatsapp.DispatchConsumer, error) {
	gormDB := dbClient.DB()
	phones := phone.NewNormalizer(cfg.App.PhoneRegion)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	whatsAppMetrics := metrics.NewWhatsAppMetrics(prometheus.DefaultRegisterer)

	categorySvc, err := categories.NewService(categories.NewRepository(gormDB), dbClient, redisClient, cfg.Catalog.TreeCacheTTL, logg)
	if err != nil {
		return nil, nil, err
	}
	orderSvc, err := orders.NewService(orders.NewRepository(gormDB), dbClient, outboxSvc, redisClient, phones, logg)
	if err != nil {
		return nil, nil, err
	}
	documentSvc, err := documents.NewService(documents.ServiceParams{
		Catalog:    product.NewRepository(gormDB),
		Categories: categorySvc,
		Orders:     orderSvc,
		StoreName:  cfg.App.StoreName,
		Logger:     logg,
	})
	if err != nil {
		return nil, nil, err
	}

	messageRepo := whatsapp.NewRepository(gormDB)
	whatsAppSvc, err := whatsapp.NewService(whatsapp.ServiceParams{
		Repo:       messageRepo,
		DB:         dbClient,
		Outbox:     outboxSvc,
		Recipients: customers.NewRepository(gormDB),
		Phones:     phones,
		PriceLists: documentSvc,
		Media:      gcsClient,
		Metrics:    whatsAppMetrics,
		StoreName:  cfg.App.StoreName,
		ChunkSize:  cfg.WhatsApp.ChunkSize,
		Logger:     logg,
	})
	if err != nil {
		return nil, nil, err
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return nil, nil, err
	}
	orderConsumer, err := whatsapp.NewOrderConsumer(whatsAppSvc, pubsubClient.OrdersSubscription(), manager, logg)
	if err != nil {
		return nil, nil, err
	}

	dispatcher, err := whatsapp.NewDispatcher(whatsapp.DispatcherParams{
		Repo:    messageRepo,
		Sender:  sender,
		Config:  cfg.WhatsApp,
		Metrics: whatsAppMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, nil, err
	}
	dispatchConsumer, err := whatsapp.NewDispatchConsumer(dispatcher, pubsubClient.WhatsAppSubscription(), logg)
	if err != nil {
		return nil, nil, err
	}
	return orderConsumer, dispatchConsumer, nil
}
