package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"harvest/internal/config"
	"harvest/internal/dataset"
	"harvest/internal/metrics"
	"harvest/internal/processor"
)

// Fingerprint hashes the name, size and modification time of every file in
// dir matching pattern. Contents are not read.
func Fingerprint(dir, pattern string) (string, error) {
	files, err := dataset.FindFiles(dir, pattern)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", f, err)
		}
		fmt.Fprintf(h, "%s|%d|%d\n", filepath.Base(f), info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Runner performs one full curation pass.
type Runner interface {
	Run(ctx context.Context) (*processor.Summary, error)
}

// Watcher re-runs the pipeline whenever the raw directory fingerprint changes.
type Watcher struct {
	dir      string
	pattern  string
	interval time.Duration
	runner   Runner

	last   string
	primed bool
}

func New(cfg config.PipelineConfig, runner Runner) *Watcher {
	return &Watcher{
		dir:      cfg.DataDir,
		pattern:  cfg.WatchPattern,
		interval: cfg.PollInterval,
		runner:   runner,
	}
}

// Poll runs a pass if this is the first poll or the fingerprint moved since
// the last successful pass. ran reports whether a pass was attempted. A
// failed pass leaves the fingerprint untouched so the next poll retries.
func (w *Watcher) Poll(ctx context.Context) (ran bool, err error) {
	fp, err := Fingerprint(w.dir, w.pattern)
	if err != nil {
		return false, fmt.Errorf("failed to fingerprint %s: %w", w.dir, err)
	}
	if w.primed && fp == w.last {
		return false, nil
	}
	if w.primed {
		metrics.FingerprintChangesTotal.Inc()
		log.Printf("Raw input changed in %s, reprocessing", w.dir)
	}

	// a started pass always completes
	if _, err := w.runner.Run(context.WithoutCancel(ctx)); err != nil {
		return true, err
	}

	w.last = fp
	w.primed = true
	return true, nil
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next tick.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("Watching %s (%s) every %s", w.dir, w.pattern, w.interval)

	if _, err := w.Poll(ctx); err != nil {
		log.Printf("Warning: initial pass failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("✓ Watcher stopped")
			return nil
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				log.Printf("Warning: pass failed: %v", err)
			}
		}
	}
}
