package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"harvest/internal/config"
	"harvest/internal/database"
	"harvest/internal/notify"
	"harvest/internal/processor"
	"harvest/internal/server"
	"harvest/internal/watcher"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := processor.NewStatusTracker()
	opts := []processor.Option{processor.WithStatus(status)}

	if cfg.Storage.Enabled() {
		db, err := database.NewDB(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		opts = append(opts, processor.WithSink(db))
	}

	if cfg.Redis.Enabled() {
		client := notify.NewClient(cfg.Redis)
		defer client.Close()
		opts = append(opts, processor.WithNotifier(notify.NewPublisher(client, cfg.Redis.Stream)))
	}

	if cfg.Server.Addr != "" {
		srv := server.NewServer(status)
		go func() {
			if err := srv.Start(ctx, cfg.Server.Addr); err != nil {
				log.Printf("Warning: status server stopped: %v", err)
			}
		}()
	}

	w := watcher.New(cfg.Pipeline, processor.New(cfg.Pipeline, opts...))
	if err := w.Run(ctx); err != nil {
		log.Fatalf("Watcher failed: %v", err)
	}
}
