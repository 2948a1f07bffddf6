package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/imkonsowa/catalog-recommender/config"
	"github.com/imkonsowa/catalog-recommender/ingest"
	"github.com/imkonsowa/catalog-recommender/models"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.LoadConfig()

	dataPath := flag.String("data", cfg.Ingest.DataPath, "path of the catalog JSON file")
	migrate := flag.Bool("migrate", cfg.Ingest.Migrate, "create the products table before loading")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	if *dataPath == "" {
		log.Fatal("no catalog file given, set ingest.dataPath, DATA_PATH or -data")
	}

	if err := run(cfg, *dataPath, *migrate); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, dataPath string, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Postgres.ConnStr())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if migrate {
		gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
		if err != nil {
			return err
		}
		if err := gormDB.WithContext(ctx).Table(cfg.Catalog.Table).AutoMigrate(&models.Product{}); err != nil {
			return err
		}
		slog.Info("products table migrated")
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return err
	}
	defer file.Close()

	stats, err := ingest.NewLoader(db, cfg.Catalog.Table, cfg.Ingest.BatchSize).Load(ctx, file)
	if err != nil {
		slog.Error("ingestion aborted", "read", stats.Read, "committed", stats.Committed, "batches", stats.Batches)
		return err
	}

	slog.Info("ingestion complete", "rows", stats.Committed, "batches", stats.Batches, "path", dataPath)

	return nil
}
