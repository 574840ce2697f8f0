// Package health provides worker health statistics for the rotation server.
//
// The collector gathers CPU, memory, load and uptime metrics from the host
// using gopsutil v4, plus the depth of the local pending-history queue so the
// server can see workers falling behind on uploads.
//
// The collector is called periodically by the reporter loop, each call
// returning a snapshot of current metrics.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Stats contains a snapshot of worker health at a point in time.
// Byte values are in bytes, percentages are 0-100, time in seconds.
type Stats struct {
	// Timestamp is when this snapshot was collected.
	Timestamp time.Time `json:"timestamp"`

	// CPU is the current CPU usage percentage (0-100), measured over a
	// short sample interval (100ms).
	CPU float64 `json:"cpu"`

	// Memory metrics
	MemoryUsed  uint64  `json:"memoryUsed"`
	MemoryTotal uint64  `json:"memoryTotal"`
	MemoryPct   float64 `json:"memoryPct"`

	// Load averages
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`

	// Uptime is the system uptime in seconds since boot.
	Uptime uint64 `json:"uptime"`

	// PendingHistory is the number of dispatch records awaiting upload.
	PendingHistory int `json:"pendingHistory"`
}

// PendingCounter reports the depth of the local pending-history queue.
// Implemented by the store.
type PendingCounter interface {
	PendingCount() (int, error)
}

// Collector gathers health statistics from the host and the local store.
type Collector struct {
	pending PendingCounter
	logger  *slog.Logger
}

// NewCollector creates a new health collector.
func NewCollector(pending PendingCounter, logger *slog.Logger) *Collector {
	return &Collector{
		pending: pending,
		logger:  logger,
	}
}

// Collect gathers a snapshot of current health statistics.
//
// If individual metric collection fails, it logs a warning and continues
// with partial data. The returned Stats will have zero values for metrics
// that couldn't be collected.
//
// The context is used for cancellation - if cancelled mid-collection the
// call returns the context error.
func (c *Collector) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Timestamp: time.Now(),
	}

	// CPU usage needs a sample interval to measure accurately.
	cpuPcts, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		c.logger.Warn("failed to collect CPU stats", slog.String("error", err.Error()))
	} else if len(cpuPcts) > 0 {
		stats.CPU = cpuPcts[0]
	}

	// Check context after CPU collection (which takes time due to sampling)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect memory stats", slog.String("error", err.Error()))
	} else {
		stats.MemoryUsed = memInfo.Used
		stats.MemoryTotal = memInfo.Total
		stats.MemoryPct = memInfo.UsedPercent
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	loadInfo, err := load.AvgWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect load stats", slog.String("error", err.Error()))
	} else {
		stats.Load1 = loadInfo.Load1
		stats.Load5 = loadInfo.Load5
		stats.Load15 = loadInfo.Load15
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		c.logger.Warn("failed to collect uptime", slog.String("error", err.Error()))
	} else {
		stats.Uptime = uptime
	}

	if c.pending != nil {
		count, err := c.pending.PendingCount()
		if err != nil {
			c.logger.Warn("failed to count pending history", slog.String("error", err.Error()))
		} else {
			stats.PendingHistory = count
		}
	}

	return stats, nil
}
