// Package main provides a CLI tool for seeding the database with demo
// locations, items and opening stock.
package main

import (
	"context"
	"fmt"
	"os"

	"stockledger/internal/app"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/auth"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("STOCKLEDGER_DOTENV"))
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}
	if cfg.DB.InMemory() {
		log.Fatal("seeding needs PostgreSQL, db.driver is memory")
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.ConnectionString()))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txm := postgres.NewTxManager(pool)
	if err := postgres.Migrate(ctx, txm); err != nil {
		log.Fatalw("failed to apply migrations", "error", err)
	}

	codec, err := postgres.NewPayloadCodec(postgres.DefaultCompressThreshold)
	if err != nil {
		log.Fatalw("failed to create audit payload codec", "error", err)
	}
	defer codec.Close()

	locations, items, err := seedCatalog(ctx, catalog_repo.NewCatalogRepo(txm))
	if err != nil {
		log.Fatalw("failed to seed catalog", "error", err)
	}
	log.Infow("catalog seeded", "locations", len(locations), "items", len(items))

	if os.Getenv("SEED_DEMO_STOCK") == "true" {
		inv, err := app.Build(ctx, app.PostgresBackend(txm, codec), app.Options{})
		if err != nil {
			log.Fatalw("failed to build inventory core", "error", err)
		}
		if err := seedStock(ctx, inv.Service, locations, items); err != nil {
			log.Fatalw("failed to seed opening stock", "error", err)
		}
		log.Info("opening stock recorded")
	}

	if cfg.JWT.Secret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
		jwtCfg.Issuer = cfg.JWT.Issuer
		token, expiresAt, err := auth.NewJWTService(jwtCfg).GenerateAccessToken("seed-admin", "admin@stockledger.local", []string{"rules:admin"})
		if err != nil {
			log.Fatalw("failed to issue development token", "error", err)
		}
		log.Infow("development token issued", "token", token, "expires_at", expiresAt)
	}

	log.Info("seeding completed successfully")
}

func seedCatalog(ctx context.Context, repo *catalog_repo.CatalogRepo) ([]catalog.Location, []catalog.Item, error) {
	warehouse := catalog.Location{ID: id.New(), Name: "Main warehouse"}
	shelfCap := int64(500)
	locations := []catalog.Location{
		warehouse,
		{ID: id.New(), Name: "Shelf A", ParentID: &warehouse.ID, Capacity: &shelfCap},
		{ID: id.New(), Name: "Shelf B", ParentID: &warehouse.ID, Capacity: &shelfCap},
	}
	items := []catalog.Item{
		{ID: id.New(), Name: "Laptop", Category: "electronics", Status: catalog.ItemStatusActive, Value: types.MustMoney("1450.00")},
		{ID: id.New(), Name: "Office chair", Category: "furniture", Status: catalog.ItemStatusActive, Value: types.MustMoney("120.50")},
		{ID: id.New(), Name: "Printer paper", Category: "supplies", Status: catalog.ItemStatusActive, Value: types.MustMoney("4.99")},
	}

	for i := range locations {
		if err := repo.SaveLocation(ctx, &locations[i]); err != nil {
			return nil, nil, fmt.Errorf("save location %s: %w", locations[i].Name, err)
		}
	}
	for i := range items {
		if err := repo.SaveItem(ctx, &items[i]); err != nil {
			return nil, nil, fmt.Errorf("save item %s: %w", items[i].Name, err)
		}
	}
	return locations, items, nil
}

func seedStock(ctx context.Context, svc *inventory.Service, locations []catalog.Location, items []catalog.Item) error {
	for i, item := range items {
		loc := locations[1+i%2]
		_, err := svc.RecordItemCreation(ctx, inventory.CreationRequest{
			ItemID:     item.ID,
			LocationID: loc.ID,
			Quantity:   int64(10 * (i + 1)),
			Reason:     "opening stock",
		})
		if err != nil {
			return fmt.Errorf("create %s at %s: %w", item.Name, loc.Name, err)
		}
	}
	return nil
}
