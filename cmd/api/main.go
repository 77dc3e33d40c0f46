package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/groceryhub-backend/api/routes"
	"github.com/angelmondragon/groceryhub-backend/api/web"
	"github.com/angelmondragon/groceryhub-backend/internal/auth"
	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/internal/customers"
	"github.com/angelmondragon/groceryhub-backend/internal/documents"
	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/internal/users"
	"github.com/angelmondragon/groceryhub-backend/internal/whatsapp"
	"github.com/angelmondragon/groceryhub-backend/pkg/auth/session"
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

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, gcsClient, sessionManager)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	router, err := routes.NewRouter(*deps)
	if err != nil {
		logg.Error(context.Background(), "failed to build router", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("local"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gcsClient *gcs.Client,
	sessions *session.Manager,
) (*routes.Dependencies, error) {
	gormDB := dbClient.DB()
	phones := phone.NewNormalizer(cfg.App.PhoneRegion)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(gormDB),
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		Password:       &cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	categorySvc, err := categories.NewService(categories.NewRepository(gormDB), dbClient, redisClient, cfg.Catalog.TreeCacheTTL, logg)
	if err != nil {
		return nil, err
	}

	priceSvc, err := priceupdates.NewService(priceupdates.NewRepository(gormDB), dbClient, categorySvc)
	if err != nil {
		return nil, err
	}

	productRepo := product.NewRepository(gormDB)
	productSvc, err := product.NewService(productRepo, dbClient, categorySvc, priceSvc, gcsClient, cfg.Media.MaxUploadBytes(), logg)
	if err != nil {
		return nil, err
	}

	customerRepo := customers.NewRepository(gormDB)
	customerSvc, err := customers.NewService(customerRepo, dbClient, phones, logg)
	if err != nil {
		return nil, err
	}

	orderSvc, err := orders.NewService(orders.NewRepository(gormDB), dbClient, outboxSvc, redisClient, phones, logg)
	if err != nil {
		return nil, err
	}

	documentSvc, err := documents.NewService(documents.ServiceParams{
		Catalog:    productRepo,
		Categories: categorySvc,
		Orders:     orderSvc,
		StoreName:  cfg.App.StoreName,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	whatsAppSvc, err := whatsapp.NewService(whatsapp.ServiceParams{
		Repo:       whatsapp.NewRepository(gormDB),
		DB:         dbClient,
		Outbox:     outboxSvc,
		Recipients: customerRepo,
		Phones:     phones,
		PriceLists: documentSvc,
		Media:      gcsClient,
		Metrics:    metrics.NewWhatsAppMetrics(prometheus.DefaultRegisterer),
		StoreName:  cfg.App.StoreName,
		ChunkSize:  cfg.WhatsApp.ChunkSize,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	webHandler, err := web.NewHandler(productSvc, orderSvc, cfg.App.StoreName, logg)
	if err != nil {
		return nil, err
	}

	return &routes.Dependencies{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Sessions:       sessions,
		HTTPMetrics:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		MetricsHandler: promhttp.Handler(),
		Auth:           authSvc,
		Categories:     categorySvc,
		Products:       productSvc,
		Customers:      customerSvc,
		Orders:         orderSvc,
		PriceUpdates:   priceSvc,
		WhatsApp:       whatsAppSvc,
		Documents:      documentSvc,
		Web:            webHandler,
	}, nil
}
