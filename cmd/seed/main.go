package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/internal/customers"
	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/internal/seed"
	"github.com/angelmondragon/groceryhub-backend/internal/users"
	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/migrate"
	"github.com/angelmondragon/groceryhub-backend/pkg/phone"
	"github.com/angelmondragon/groceryhub-backend/pkg/redis"
	"github.com/angelmondragon/groceryhub-backend/pkg/storage/gcs"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	path := flag.String("file", "seed.yaml", "seed file to apply")
	dryRun := flag.Bool("dry-run", false, "validate the file without writing")
	flag.Parse()

	file, err := seed.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid seed file: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("seed file ok: %d categories, %d products, %d customers\n", len(file.Categories), len(file.Products), len(file.Customers))
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "file": *path})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "dev migrations", migrate.ApplyOnStartup(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer gcsClient.Close()

	gormDB := dbClient.DB()
	phones := phone.NewNormalizer(cfg.App.PhoneRegion)

	categoryRepo := categories.NewRepository(gormDB)
	categorySvc, err := categories.NewService(categoryRepo, dbClient, redisClient, cfg.Catalog.TreeCacheTTL, logg)
	requireResource(ctx, logg, "category service", err)

	priceSvc, err := priceupdates.NewService(priceupdates.NewRepository(gormDB), dbClient, categorySvc)
	requireResource(ctx, logg, "price update service", err)

	productRepo := product.NewRepository(gormDB)
	productSvc, err := product.NewService(productRepo, dbClient, categorySvc, priceSvc, gcsClient, cfg.Media.MaxUploadBytes(), logg)
	requireResource(ctx, logg, "product service", err)

	customerRepo := customers.NewRepository(gormDB)
	customerSvc, err := customers.NewService(customerRepo, dbClient, phones, logg)
	requireResource(ctx, logg, "customer service", err)

	userSvc, err := users.NewService(users.NewRepository(gormDB), cfg.Password)
	requireResource(ctx, logg, "user service", err)

	seeder, err := seed.NewSeeder(seed.SeederParams{
		CategoryStore: categoryRepo,
		Categories:    categorySvc,
		ProductStore:  productRepo,
		Products:      productSvc,
		CustomerStore: customerRepo,
		Customers:     customerSvc,
		Users:         userSvc,
		Phones:        phones,
		Logger:        logg,
	})
	requireResource(ctx, logg, "seeder", err)

	report, err := seeder.Apply(ctx, file)
	if err != nil {
		logg.Error(ctx, "seed failed", err)
		os.Exit(1)
	}
	fmt.Printf("categories: %d created, %d skipped\n", report.CategoriesCreated, report.CategoriesSkipped)
	fmt.Printf("products:   %d created, %d skipped\n", report.ProductsCreated, report.ProductsSkipped)
	fmt.Printf("customers:  %d created, %d skipped\n", report.CustomersCreated, report.CustomersSkipped)
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to initialize %s", name), err)
	os.Exit(1)
}
