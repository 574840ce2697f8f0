// Package uploader syncs locally recorded dispatch history to the rotation
// server. History rows are queued in the local store when dispatches complete
// (including while the server is unreachable) and uploaded in batches when it
// is reachable again.
//
// The uploader runs as a background goroutine, checking the pending queue
// every 30 seconds. Successfully uploaded rows are removed from the queue;
// failures are retried on the next cycle.
//
// Key features:
//   - 30-second upload interval
//   - Batch upload (up to 50 rows at a time)
//   - Non-blocking: failures log warnings but don't stop the uploader
//   - Graceful shutdown via context cancellation
package uploader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const (
	defaultInterval = 30 * time.Second
	batchSize       = 50
)

// HistoryClient uploads history batches to the server.
// This interface allows for easy testing with mock implementations.
type HistoryClient interface {
	SubmitHistory(ctx context.Context, rows []*model.SendHistory) error
}

// PendingQueue is the store-side queue of not-yet-uploaded history.
type PendingQueue interface {
	PendingHistory(limit int) ([]*model.SendHistory, error)
	RemovePending(seqs []uint64) error
}

// Uploader periodically uploads queued dispatch history to the server.
// It runs as a background goroutine and handles retry on failure.
type Uploader struct {
	queue    PendingQueue
	client   HistoryClient
	logger   *slog.Logger
	interval time.Duration

	// Synchronization for graceful shutdown
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a new history uploader.
func New(queue PendingQueue, client HistoryClient, logger *slog.Logger) *Uploader {
	return &Uploader{
		queue:    queue,
		client:   client,
		logger:   logger.With(slog.String("component", "history-uploader")),
		interval: defaultInterval,
	}
}

// Run starts the upload loop. It blocks until the context is cancelled.
//
// The loop:
//  1. Processes immediately on startup (catch any pending rows)
//  2. Reads up to 50 pending rows
//  3. Uploads to server
//  4. Removes successfully uploaded rows from the queue
//  5. Waits for the interval and repeats
//
// Run should be called in a goroutine. To stop the uploader, cancel the
// context.
func (u *Uploader) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel

	u.logger.Info("history uploader started",
		slog.Duration("interval", u.interval),
	)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.processQueue(internalCtx)

	for {
		select {
		case <-internalCtx.Done():
			u.logger.Info("history uploader stopping")
			return

		case <-ticker.C:
			u.processQueue(internalCtx)
		}
	}
}

// processQueue uploads one batch of pending history. Errors are logged but do
// not stop the uploader; the batch is retried on the next cycle.
func (u *Uploader) processQueue(ctx context.Context) {
	u.wg.Add(1)
	defer u.wg.Done()

	select {
	case <-ctx.Done():
		return
	default:
	}

	rows, err := u.queue.PendingHistory(batchSize)
	if err != nil {
		u.logger.Warn("failed to read pending history",
			slog.String("error", err.Error()),
		)
		return
	}

	if len(rows) == 0 {
		u.logger.Debug("no pending history")
		return
	}

	u.logger.Info("uploading history",
		slog.Int("count", len(rows)),
	)

	if err := u.client.SubmitHistory(ctx, rows); err != nil {
		u.logger.Warn("failed to upload history, will retry next cycle",
			slog.String("error", err.Error()),
			slog.Int("count", len(rows)),
		)
		return
	}

	seqs := make([]uint64, len(rows))
	for i, r := range rows {
		seqs[i] = r.UploadSeq
	}

	if err := u.queue.RemovePending(seqs); err != nil {
		u.logger.Warn("failed to remove uploaded history from queue",
			slog.String("error", err.Error()),
			slog.Int("count", len(seqs)),
		)
		// Rows were uploaded, so a re-upload next cycle is the worst case.
		// The server dedups by history ID.
		return
	}

	u.logger.Info("history uploaded",
		slog.Int("count", len(rows)),
	)
}

// Shutdown stops the uploader and waits for any in-flight work to complete.
// It respects the shutdown context's deadline/timeout.
func (u *Uploader) Shutdown(ctx context.Context) error {
	u.logger.Info("uploader shutdown initiated")

	if u.cancel != nil {
		u.cancel()
	}

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		u.logger.Info("uploader shutdown complete")
		return nil
	case <-ctx.Done():
		u.logger.Warn("uploader shutdown timed out")
		return ctx.Err()
	}
}
