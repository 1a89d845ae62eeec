package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"harvest/internal/cleaner"
	"harvest/internal/config"
	"harvest/internal/database"
	"harvest/internal/dataset"
	"harvest/internal/notify"
	"harvest/internal/processor"
)

const (
	consumerGroup = "harvest_store"
	consumerName  = "store-1"
)

// storeAll cleans every raw batch in dataDir and upserts the result.
func storeAll(ctx context.Context, dataDir string, sink processor.Sink) error {
	rawProducts, haveProducts, err := dataset.LoadProducts(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load product batches: %w", err)
	}
	rawWeather, haveWeather, err := dataset.LoadWeather(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load weather batches: %w", err)
	}

	if haveProducts {
		products, _ := cleaner.CleanProducts(rawProducts)
		if err := sink.UpsertProducts(ctx, products); err != nil {
			return err
		}
	}
	if haveWeather {
		readings, _ := cleaner.CleanWeather(rawWeather)
		if err := sink.UpsertWeather(ctx, readings); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	follow := flag.Bool("follow", false, "re-store after every run announced on the Redis stream")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Storage.Enabled() {
		log.Fatalf("No storage driver configured (set STORAGE_DRIVER)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := storeAll(context.WithoutCancel(ctx), cfg.Pipeline.DataDir, db); err != nil {
		log.Fatalf("Failed to store raw batches: %v", err)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		log.Fatalf("Failed to count rows: %v", err)
	}
	for _, table := range database.Tables {
		log.Printf("  %s: %d rows", table, counts[table])
	}

	if !*follow {
		return
	}
	if !cfg.Redis.Enabled() {
		log.Fatalf("-follow needs a Redis address (set REDIS_ADDR)")
	}

	client := notify.NewClient(cfg.Redis)
	defer client.Close()

	log.Printf("Following run stream %s. Press Ctrl+C to stop...", cfg.Redis.Stream)
	consumer := notify.NewConsumer(client, cfg.Redis.Stream, consumerGroup, consumerName)
	err = consumer.Follow(ctx, func(ctx context.Context, notice *notify.RunNotice) error {
		log.Printf("Run %s announced, storing", notice.RunID)
		return storeAll(context.WithoutCancel(ctx), cfg.Pipeline.DataDir, db)
	})
	if err != nil {
		log.Fatalf("Failed to follow run stream: %v", err)
	}
	log.Println("Store service stopped")
}
