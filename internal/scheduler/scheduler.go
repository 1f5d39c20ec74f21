// Package scheduler runs named background tasks on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskFunc is a single tick of work. Errors are logged, not fatal.
type TaskFunc func(ctx context.Context) error

// Task runs a TaskFunc immediately on start and then once per interval.
// Ticks never overlap: a tick that runs long simply delays the next one.
type Task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	logger   zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

func New(name string, interval time.Duration, fn TaskFunc, logger zerolog.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("component", "scheduler").Str("task", name).Logger(),
	}
}

// Start launches the task loop. It is a no-op if the task is already running.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	t.done = make(chan struct{})

	t.logger.Info().Dur("interval", t.interval).Msg("task started")
	go t.loop(ctx, t.stopChan, t.done)
}

// Stop signals the loop to exit and waits for the in-flight tick, if any,
// to finish. It is a no-op if the task is not running.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	done := t.done
	t.mu.Unlock()

	<-done
	t.logger.Info().Msg("task stopped")
}

func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	t.tick(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Task) tick(ctx context.Context) {
	start := time.Now()
	if err := t.fn(ctx); err != nil {
		t.logger.Error().Err(err).Msg("tick failed")
		return
	}
	t.logger.Debug().Dur("elapsed", time.Since(start)).Msg("tick completed")
}
