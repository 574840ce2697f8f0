// Package loop drives the scheduler engine on a fixed tick. Each tick runs one
// full pass over the active schedules; ticks never overlap because the pass
// runs synchronously on the loop goroutine.
package loop

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Ticker runs one scheduling pass. Implemented by the engine.
type Ticker interface {
	RunOnce(ctx context.Context)
}

// Loop owns the tick goroutine for the scheduler engine.
type Loop struct {
	engine   Ticker
	interval time.Duration
	warmup   time.Duration
	logger   *slog.Logger
}

// New creates a loop that calls engine.RunOnce every interval, after an
// initial warmup delay that lets sync transports populate the local store.
func New(engine Ticker, interval, warmup time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Loop{
		engine:   engine,
		interval: interval,
		warmup:   warmup,
		logger:   logger,
	}
}

// Run starts the tick loop (blocking). It should be run in a goroutine and
// stops when ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("scheduler loop started",
		slog.Duration("interval", l.interval),
		slog.Duration("warmup", l.warmup),
	)

	if l.warmup > 0 {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler loop stopping")
			return
		case <-time.After(l.warmup):
		}
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// Run immediately after warmup to catch the current minute.
	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler loop stopping")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one pass, isolating the loop from engine panics so a single bad
// tick never kills the worker.
func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduler tick panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	start := time.Now()
	l.engine.RunOnce(ctx)

	elapsed := time.Since(start)
	if elapsed > l.interval {
		l.logger.Warn("scheduler tick overran interval",
			slog.Duration("elapsed", elapsed),
			slog.Duration("interval", l.interval),
		)
	}
}

// Shutdown gracefully stops the loop. Context cancellation handles the
// actual stop; this exists for the shutdown coordinator.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.logger.Info("scheduler loop shutdown initiated")
	return nil
}
