package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"harvest/internal/config"
	"harvest/internal/processor"
)

type countingRunner struct {
	calls int
	errs  []error
	ctxs  []context.Context
}

func (r *countingRunner) Run(ctx context.Context) (*processor.Summary, error) {
	r.calls++
	r.ctxs = append(r.ctxs, ctx)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &processor.Summary{RunID: "run"}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newWatcher(dir string, runner Runner) *Watcher {
	cfg := config.Default().Pipeline
	cfg.DataDir = dir
	cfg.PollInterval = 10 * time.Millisecond
	return New(cfg, runner)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products_2024-05-01.csv")
	writeFile(t, path, "a,b\n")

	first, err := Fingerprint(dir, "*.csv")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	again, _ := Fingerprint(dir, "*.csv")
	if first != again {
		t.Error("Fingerprint() should be stable without changes")
	}

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	ignored, _ := Fingerprint(dir, "*.csv")
	if ignored != first {
		t.Error("Fingerprint() should ignore files outside the pattern")
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	touched, _ := Fingerprint(dir, "*.csv")
	if touched == first {
		t.Error("Fingerprint() should change with the modification time")
	}

	writeFile(t, path, "a,b,c\n")
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	resized, _ := Fingerprint(dir, "*.csv")
	if resized == touched {
		t.Error("Fingerprint() should change with the size")
	}

	writeFile(t, filepath.Join(dir, "weather_hourly_X_2024-05-01.csv"), "x\n")
	added, _ := Fingerprint(dir, "*.csv")
	if added == resized {
		t.Error("Fingerprint() should change when a file is added")
	}
}

func TestFingerprint_MissingDir(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing"), "*.csv"); err == nil {
		t.Error("Fingerprint() expected error for a missing directory")
	}
}

func TestPoll_RunsOncePerChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products_2024-05-01.csv")
	writeFile(t, path, "a\n")

	runner := &countingRunner{}
	w := newWatcher(dir, runner)
	ctx := context.Background()

	steps := []struct {
		name    string
		mutate  func()
		wantRan bool
	}{
		{name: "initial pass", wantRan: true},
		{name: "no change", wantRan: false},
		{name: "modification time", mutate: func() {
			later := time.Now().Add(time.Hour)
			if err := os.Chtimes(path, later, later); err != nil {
				t.Fatal(err)
			}
		}, wantRan: true},
		{name: "still unchanged", wantRan: false},
		{name: "new file", mutate: func() {
			writeFile(t, filepath.Join(dir, "products_2024-05-02.csv"), "b\n")
		}, wantRan: true},
	}

	for _, step := range steps {
		if step.mutate != nil {
			step.mutate()
		}
		ran, err := w.Poll(ctx)
		if err != nil {
			t.Fatalf("%s: Poll() error = %v", step.name, err)
		}
		if ran != step.wantRan {
			t.Errorf("%s: Poll() ran = %v, want %v", step.name, ran, step.wantRan)
		}
	}

	if runner.calls != 3 {
		t.Errorf("Expected 3 passes, got %d", runner.calls)
	}
}

func TestPoll_FailedPassRetries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "products_2024-05-01.csv"), "a\n")

	runner := &countingRunner{errs: []error{errors.New("disk full"), nil}}
	w := newWatcher(dir, runner)
	ctx := context.Background()

	if ran, err := w.Poll(ctx); !ran || err == nil {
		t.Fatalf("first Poll() = %v, %v; want true and an error", ran, err)
	}
	if ran, err := w.Poll(ctx); !ran || err != nil {
		t.Fatalf("second Poll() = %v, %v; want a successful retry", ran, err)
	}
	if ran, _ := w.Poll(ctx); ran {
		t.Error("third Poll() should be a no-op")
	}
	if runner.calls != 2 {
		t.Errorf("Expected 2 passes, got %d", runner.calls)
	}
}

func TestPoll_MissingDirDoesNotRun(t *testing.T) {
	runner := &countingRunner{}
	w := newWatcher(filepath.Join(t.TempDir(), "missing"), runner)

	if _, err := w.Poll(context.Background()); err == nil {
		t.Error("Poll() expected error for a missing directory")
	}
	if runner.calls != 0 {
		t.Errorf("Expected no passes, got %d", runner.calls)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "products_2024-05-01.csv"), "a\n")

	runner := &countingRunner{}
	w := newWatcher(dir, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	if runner.calls != 1 {
		t.Fatalf("Expected the initial pass to run, got %d passes", runner.calls)
	}
	if runner.ctxs[0].Err() != nil {
		t.Error("pass context should not inherit cancellation")
	}
}
