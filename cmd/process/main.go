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
)

// pipelineOptions wires the optional SQL store and Redis publisher. The
// returned cleanup closes whatever was opened.
func pipelineOptions(ctx context.Context, cfg *config.Config) ([]processor.Option, func()) {
	var opts []processor.Option
	var closers []func()

	if cfg.Storage.Enabled() {
		db, err := database.NewDB(ctx, cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage unavailable, continuing without it: %v", err)
		} else {
			opts = append(opts, processor.WithSink(db))
			closers = append(closers, func() { db.Close() })
		}
	}

	if cfg.Redis.Enabled() {
		client := notify.NewClient(cfg.Redis)
		opts = append(opts, processor.WithNotifier(notify.NewPublisher(client, cfg.Redis.Stream)))
		closers = append(closers, func() { client.Close() })
	}

	return opts, func() {
		for _, c := range closers {
			c()
		}
	}
}

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	dataDir := flag.String("data-dir", "", "raw batch directory (overrides config)")
	outDir := flag.String("out-dir", "", "output directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.Pipeline.DataDir = *dataDir
	}
	if *outDir != "" {
		cfg.Pipeline.OutDir = *outDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, cleanup := pipelineOptions(ctx, cfg)

	summary, err := processor.New(cfg.Pipeline, opts...).Run(context.WithoutCancel(ctx))
	cleanup()
	if err != nil {
		log.Fatalf("Pipeline run failed: %v", err)
	}

	for _, a := range summary.Artifacts {
		log.Printf("  %s", a)
	}
}
