package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/internal/cron"
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
	"github.com/angelmondragon/groceryhub-backend/pkg/phone"
	"github.com/angelmondragon/groceryhub-backend/pkg/redis"
	"github.com/angelmondragon/groceryhub-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	services, err := buildSchedules(cfg, logg, dbClient, redisClient, gcsClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron schedules", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		group.Go(func() error { return svc.Run(groupCtx) })
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildSchedules returns the frequent schedule (retry sweep) and the daily
// schedule (retention), each guarded by its own lock.
func buildSchedules(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, gcsClient *gcs.Client) ([]*cron.Service, error) {
	gormDB := dbClient.DB()
	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	messageRepo := whatsapp.NewRepository(gormDB)
	outboxRepo := outbox.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	phones := phone.NewNormalizer(cfg.App.PhoneRegion)

	categorySvc, err := categories.NewService(categories.NewRepository(gormDB), dbClient, redisClient, cfg.Catalog.TreeCacheTTL, logg)
	if err != nil {
		return nil, err
	}
	orderSvc, err := orders.NewService(orders.NewRepository(gormDB), dbClient, outboxSvc, redisClient, phones, logg)
	if err != nil {
		return nil, err
	}
	documentSvc, err := documents.NewService(documents.ServiceParams{
		Catalog:    product.NewRepository(gormDB),
		Categories: categorySvc,
		Orders:     orderSvc,
		StoreName:  cfg.App.StoreName,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}
	requeuer, err := whatsapp.NewService(whatsapp.ServiceParams{
		Repo:        messageRepo,
		DB:          dbClient,
		Outbox:      outboxSvc,
		Recipients:  customers.NewRepository(gormDB),
		Phones:      phones,
		PriceLists:  documentSvc,
		Media:       gcsClient,
		StoreName:   cfg.App.StoreName,
		ChunkSize:   cfg.WhatsApp.ChunkSize,
		MaxAttempts: cfg.WhatsApp.MaxAttempts,
		StaleAfter:  cfg.WhatsApp.StaleSendingAfter(),
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}
	retryJob, err := cron.NewWhatsAppRetryJob(cron.WhatsAppRetryJobParams{
		Logger:   logg,
		Messages: requeuer,
		Metrics:  jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	cleanupJob, err := cron.NewWhatsAppCleanupJob(cron.WhatsAppCleanupJobParams{
		Logger:     logg,
		Repository: messageRepo,
		Metrics:    jobMetrics,
		Retention:  cfg.WhatsApp.Retention,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:  logg,
		Outbox:  outboxRepo,
		DLQ:     outbox.NewDLQRepository(gormDB),
		Metrics: jobMetrics,
	})
	if err != nil {
		return nil, err
	}

	schedules := []struct {
		name     string
		interval time.Duration
		jobs     []cron.Job
	}{
		{name: "frequent", interval: cfg.Cron.FrequentInterval, jobs: []cron.Job{retryJob}},
		{name: "daily", interval: cfg.Cron.DailyInterval, jobs: []cron.Job{cleanupJob, retentionJob}},
	}

	var out []*cron.Service
	for _, schedule := range schedules {
		lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+schedule.name), cfg.Cron.LockTTL)
		if err != nil {
			return nil, err
		}
		registry, err := cron.NewRegistry(schedule.jobs...)
		if err != nil {
			return nil, err
		}
		svc, err := cron.NewService(cron.ServiceParams{
			Schedule: schedule.name,
			Logger:   logg,
			Registry: registry,
			Lock:     lock,
			Metrics:  jobMetrics,
			Interval: schedule.interval,
			// a job must finish before its lock can expire under it
			JobTimeout: cfg.Cron.LockTTL,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}
