// Command rotation-worker is the scheduling and dispatch daemon. It watches
// the local schedule store, fires due schedules against the social platforms,
// and keeps local state in sync with the server over NATS JetStream (with a
// WebSocket fallback).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/client"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/config"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/dispatch"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/engine"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/health"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/logging"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/loop"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/natssync"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/platform"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/resolver"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/shutdown"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/store"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/systemd"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/uploader"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/version"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/wssync"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting rotation worker",
		slog.String("version", version.Version),
		slog.String("server_url", cfg.ServerURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Registration happens before anything else: every other component
	// needs the API key and worker identity.
	if cfg.NeedsRegistration() {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}

		result, err := client.Register(ctx, cfg.ServerURL, cfg.EnrollToken, hostname, logger)
		if err != nil {
			logger.Error("registration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		cfg.APIKey = result.APIKey
		cfg.WorkerID = result.WorkerID
		cfg.TenantID = result.TenantID
		cfg.NATSServers = result.NATSServers
		cfg.NATSNKeySeed = result.NATSNKeySeed
		cfg.EnrollToken = ""

		// Save immediately. Losing these credentials orphans the worker:
		// the enroll token is single use.
		if err := config.Save(*configPath, cfg); err != nil {
			logger.Error("failed to save credentials after registration",
				slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("worker registered",
			slog.String("worker_id", cfg.WorkerID),
			slog.String("tenant_id", cfg.TenantID),
		)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory",
			slog.String("dir", cfg.DataDir), slog.String("error", err.Error()))
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "worker.db"))
	if err != nil {
		logger.Error("failed to open schedule store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiClient := client.NewClient(cfg.ServerURL, logger)
	apiClient.SetAPIKey(cfg.APIKey)
	apiClient.SetWorkerID(cfg.WorkerID)

	// Pull a full snapshot so the first tick works with current state even
	// if the sync transport takes a while to come up. An offline start is
	// fine: the store already holds the last known state.
	if err := apiClient.Bootstrap(ctx, st); err != nil {
		logger.Warn("snapshot bootstrap failed, continuing with local state",
			slog.String("error", err.Error()))
	}

	coordinator := shutdown.NewCoordinator(logger)

	// Platform calls and media downloads go straight to third parties, so
	// they use a plain HTTP client rather than the retrying server client.
	platformHTTP := &http.Client{Timeout: 60 * time.Second}

	registry := platform.NewRegistry(platformHTTP, apiClient, logger)
	media := dispatch.NewMediaPreparer(platformHTTP, cfg.MediaCacheDir, logger)
	users := &userPersister{store: st, api: apiClient, logger: logger}
	dispatcher := dispatch.New(registry, apiClient, media, users, cfg.DispatchTimeout(), logger)

	res := resolver.New(st, apiClient)
	eng := engine.New(st, res, dispatcher, logger)

	schedLoop := loop.New(eng, cfg.TickInterval(), cfg.Warmup(), logger)
	coordinator.Register("scheduler-loop", schedLoop)

	// Sync transport. NATS is preferred; if the server did not hand out
	// NATS credentials, or the initial connect fails, fall back to the
	// WebSocket feed. Both apply messages through the same handler so the
	// local state ends up identical either way.
	applier := natssync.NewHandler(st, logger)

	var natsClient *natssync.Client
	var natsPublisher *natssync.Publisher
	if cfg.NATSEnabled() {
		natsClient = natssync.NewClient(natssync.Config{
			Servers:  cfg.NATSServers,
			NKeySeed: cfg.NATSNKeySeed,
			TenantID: cfg.TenantID,
			WorkerID: cfg.WorkerID,
		}, logger)
		natsClient.SetHandler(applier)

		if err := natsClient.Connect(ctx); err != nil {
			logger.Warn("NATS connect failed, falling back to websocket sync",
				slog.String("error", err.Error()))
			natsClient = nil
		} else {
			natsPublisher = natssync.NewPublisher(natsClient, logger)
			coordinator.Register("nats-sync", natsClient)
		}
	}

	var wsClient *wssync.Client
	if natsClient == nil {
		wsHandler := wssync.NewHandler(applier, logger)
		wsClient = wssync.NewClient(cfg.ServerURL, cfg.APIKey, logger, wsHandler)
		coordinator.Register("websocket-sync", wsClient)
	}

	// History rows leave the worker over NATS when it is up, otherwise over
	// the HTTP batch endpoint. Rows stay queued until one of them succeeds.
	sender := &historySender{api: apiClient, nats: natsPublisher}
	histUploader := uploader.New(st, sender, logger)
	coordinator.Register("history-uploader", histUploader)

	collector := health.NewCollector(st, logger)
	var healthPub health.HealthPublisher
	if natsPublisher != nil {
		healthPub = natsPublisher
	}
	reporter := health.NewReporter(collector, healthPub, apiClient, logger, cfg.HeartbeatInterval())
	coordinator.Register("health-reporter", reporter)

	go schedLoop.Run(ctx)
	go histUploader.Run(ctx)
	go reporter.Run(ctx)
	go heartbeatLoop(ctx, cfg.HeartbeatInterval(), apiClient, natsPublisher, logger)
	if natsClient != nil {
		go natsClient.Run(ctx)
	}
	if wsClient != nil {
		go wsClient.Run(ctx)
	}

	systemd.NotifyReady()
	systemd.StartWatchdog(ctx, func() bool {
		_, err := st.PendingCount()
		return err == nil
	})

	logger.Info("rotation worker ready",
		slog.String("worker_id", cfg.WorkerID),
		slog.Duration("tick_interval", cfg.TickInterval()),
		slog.Bool("nats", natsClient != nil),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	systemd.NotifyStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	coordinator.Shutdown(shutdownCtx)

	if err := st.Close(); err != nil {
		logger.Error("failed to close schedule store", slog.String("error", err.Error()))
	}

	logger.Info("shutdown complete")
}

// heartbeatLoop keeps the server's worker list fresh. It prefers the NATS
// heartbeat subject and uses the HTTP endpoint while NATS is down.
func heartbeatLoop(ctx context.Context, interval time.Duration, api *client.Client, pub *natssync.Publisher, logger *slog.Logger) {
	log := logging.WithComponent(logger, "heartbeat")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	beat := func() {
		if pub != nil && pub.IsConnected() {
			if err := pub.PublishHeartbeat(version.Version, runtime.GOOS); err != nil {
				log.Warn("NATS heartbeat failed", slog.String("error", err.Error()))
			}
			return
		}
		if err := api.SendHeartbeat(ctx); err != nil {
			log.Warn("heartbeat failed", slog.String("error", err.Error()))
		}
	}

	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

// userPersister writes refreshed OAuth tokens to the local store first and
// then pushes them to the server. A failed push is not fatal: the local copy
// is what the next tick posts with, and the server reconciles on the next
// account update.
type userPersister struct {
	store  *store.Store
	api    *client.Client
	logger *slog.Logger
}

func (p *userPersister) SaveUser(u *model.User) error {
	if err := p.store.SaveUser(u); err != nil {
		return err
	}
	if err := p.api.SaveUser(u); err != nil {
		p.logger.Warn("failed to push refreshed accounts to server",
			slog.String("user_id", u.ID), slog.String("error", err.Error()))
	}
	return nil
}

// historySender routes outgoing history batches. NATS gets one message per
// row; the HTTP endpoint takes the whole batch.
type historySender struct {
	api  *client.Client
	nats *natssync.Publisher
}

func (s *historySender) SubmitHistory(ctx context.Context, rows []*model.SendHistory) error {
	if s.nats != nil && s.nats.IsConnected() {
		for _, row := range rows {
			if err := s.nats.PublishHistory(ctx, row); err != nil {
				return err
			}
		}
		return s.nats.Flush()
	}
	return s.api.SubmitHistory(ctx, rows)
}
