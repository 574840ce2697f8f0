// Reporter component.
//
// The reporter sends collected health statistics to the rotation server at
// regular intervals. It runs as its own goroutine, independent of the
// scheduler loop, so health keeps flowing even while a tick is dispatching.
//
// Key features:
//   - 60-second collection interval (configurable)
//   - Non-blocking: failures log warnings but don't stop collection
//   - Graceful shutdown via context cancellation
//   - Publishes via NATS when connected, falls back to HTTP otherwise
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/natssync"
)

// HealthPublisher publishes health messages to the server.
// Satisfied by the natssync publisher.
type HealthPublisher interface {
	PublishHealth(health *natssync.HealthMessage) error
	IsConnected() bool
}

// HTTPSender submits health stats over the HTTP API. Used while the NATS
// publisher is down or not configured. Satisfied by the API client.
type HTTPSender interface {
	SubmitHealth(ctx context.Context, stats *Stats) error
}

// Reporter collects health statistics and publishes them to the server.
type Reporter struct {
	collector  *Collector
	publisher  HealthPublisher
	httpSender HTTPSender
	logger     *slog.Logger
	interval   time.Duration

	firstReport bool

	// Synchronization for graceful shutdown
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReporter creates a new health reporter. publisher and httpSender may
// each be nil; a cycle with neither available is skipped.
func NewReporter(collector *Collector, publisher HealthPublisher, httpSender HTTPSender, logger *slog.Logger, interval time.Duration) *Reporter {
	return &Reporter{
		collector:   collector,
		publisher:   publisher,
		httpSender:  httpSender,
		logger:      logger.With(slog.String("component", "health-reporter")),
		interval:    interval,
		firstReport: true,
	}
}

// Run starts the collection and publishing loop.
// It blocks until the context is cancelled and should be run in a goroutine.
func (r *Reporter) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.logger.Info("health reporter starting",
		slog.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.collectAndSend(internalCtx)

	for {
		select {
		case <-internalCtx.Done():
			r.logger.Info("health reporter stopped")
			return

		case <-ticker.C:
			r.collectAndSend(internalCtx)
		}
	}
}

// collectAndSend performs a single collection and publish cycle.
// Errors are logged but do not stop the reporter - health is not critical.
func (r *Reporter) collectAndSend(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	stats, err := r.collector.Collect(ctx)
	if err != nil {
		r.logger.Warn("failed to collect health stats",
			slog.String("error", err.Error()),
		)
		return
	}

	r.logger.Debug("collected health stats",
		slog.Float64("cpu_pct", stats.CPU),
		slog.Float64("memory_pct", stats.MemoryPct),
		slog.Int("pending_history", stats.PendingHistory),
	)

	if err := r.send(ctx, stats); err != nil {
		r.logger.Warn("failed to send health stats",
			slog.String("error", err.Error()),
		)
		return
	}

	if r.firstReport {
		r.logger.Info("first health report sent")
		r.firstReport = false
	} else {
		r.logger.Debug("health report sent")
	}
}

// send publishes over NATS when connected, otherwise submits over HTTP.
func (r *Reporter) send(ctx context.Context, stats *Stats) error {
	if r.publisher != nil && r.publisher.IsConnected() {
		return r.publisher.PublishHealth(&natssync.HealthMessage{
			Timestamp:      stats.Timestamp.Format(time.RFC3339),
			CPU:            stats.CPU,
			MemoryUsed:     stats.MemoryUsed,
			MemoryTotal:    stats.MemoryTotal,
			MemoryPct:      stats.MemoryPct,
			Load1:          stats.Load1,
			Load5:          stats.Load5,
			Load15:         stats.Load15,
			Uptime:         stats.Uptime,
			PendingHistory: stats.PendingHistory,
		})
	}
	if r.httpSender != nil {
		return r.httpSender.SubmitHealth(ctx, stats)
	}
	r.logger.Debug("no health transport available, skipping report")
	return nil
}

// Shutdown stops the reporter and waits for any in-flight work to complete.
// It respects the shutdown context's deadline/timeout.
func (r *Reporter) Shutdown(ctx context.Context) error {
	r.logger.Info("health reporter shutting down")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("health reporter shutdown complete")
		return nil
	case <-ctx.Done():
		r.logger.Warn("health reporter shutdown timed out")
		return ctx.Err()
	}
}
