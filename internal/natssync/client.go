// Package natssync provides a NATS client for real-time state sync with the
// rotation server.
//
// It replaces WebSocket-based sync with NATS JetStream, providing durable
// delivery of schedule and content changes, automatic reconnection, and
// efficient pub/sub for history and heartbeats.
//
// Features:
//   - NKey authentication (public-key cryptography)
//   - JetStream consumers for durable sync delivery
//   - Automatic reconnection with exponential backoff
//   - Message publishing for history, health, and heartbeats
//
// Usage:
//
//	client := natssync.NewClient(cfg, logger)
//	err := client.Connect(ctx)
//	defer client.Close()
//	go client.Run(ctx)
package natssync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
)

// Config holds NATS connection configuration.
type Config struct {
	Servers  string // Comma-separated list of NATS server URLs
	NKeySeed string // NKey seed for authentication (starts with SU)
	TenantID string // Tenant ID for subject routing
	WorkerID string // Worker ID for subject routing
}

// SyncHandler applies incoming state changes to the local store.
type SyncHandler interface {
	HandleSchedule(msg *ScheduleSyncMessage) error
	HandleUser(msg *UserSyncMessage) error
	HandleCollection(msg *CollectionSyncMessage) error
	HandleContentUnit(msg *ContentUnitSyncMessage) error
}

// Client manages the NATS connection for the rotation worker.
type Client struct {
	config    Config
	nc        *nats.Conn
	js        jetstream.JetStream
	consumer  jetstream.Consumer
	logger    *slog.Logger
	handler   SyncHandler
	mu        sync.RWMutex
	running   bool
	stopChan  chan struct{}
	connected bool
}

// NewClient creates a new NATS client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
	}
}

// SetHandler sets the sync handler for incoming messages.
func (c *Client) SetHandler(handler SyncHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Connect establishes a connection to the NATS server.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kp, err := nkeys.FromSeed([]byte(c.config.NKeySeed))
	if err != nil {
		return fmt.Errorf("invalid nkey seed: %w", err)
	}

	pubKey, err := kp.PublicKey()
	if err != nil {
		return fmt.Errorf("failed to get public key: %w", err)
	}

	opts := []nats.Option{
		nats.Name(fmt.Sprintf("rotation-worker-%s", c.config.WorkerID)),
		nats.Nkey(pubKey, func(nonce []byte) ([]byte, error) {
			return kp.Sign(nonce)
		}),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.PingInterval(30 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			} else {
				c.logger.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			c.logger.Info("NATS reconnected", slog.String("server", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			// sub can be nil for connection-level errors
			if sub != nil {
				c.logger.Error("NATS error",
					slog.String("error", err.Error()),
					slog.String("subject", sub.Subject),
				)
			} else {
				c.logger.Error("NATS error",
					slog.String("error", err.Error()),
				)
			}
		}),
	}

	nc, err := nats.Connect(c.config.Servers, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	c.nc = nc
	c.connected = true

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("jetstream init: %w", err)
	}
	c.js = js

	c.logger.Info("NATS connected",
		slog.String("server", nc.ConnectedUrl()),
		slog.String("worker_id", c.config.WorkerID),
	)

	return nil
}

// Run starts the message processing loop.
// It creates a consumer for sync messages and processes them until stopped.
func (c *Client) Run(ctx context.Context) {
	c.mu.Lock()
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	c.logger.Info("NATS sync starting")

	if err := c.setupConsumer(ctx); err != nil {
		c.logger.Error("Failed to setup consumer", slog.String("error", err.Error()))
		return
	}

	c.consumeMessages(ctx)
}

// setupConsumer creates or retrieves the durable consumer for this worker.
func (c *Client) setupConsumer(ctx context.Context) error {
	consumerName := fmt.Sprintf("worker-%s", c.config.WorkerID)

	// The worker receives its tenant's state changes plus fleet-wide ones.
	filterSubjects := []string{
		fmt.Sprintf("rotation.%s.sync.>", c.config.TenantID),
		"rotation.fleet.sync.>",
	}

	stream, err := c.js.Stream(ctx, "SYNC")
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerCfg := jetstream.ConsumerConfig{
		Durable:        consumerName,
		FilterSubjects: filterSubjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        60 * time.Second,
		MaxDeliver:     3,
		MaxAckPending:  10,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		ReplayPolicy:   jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerCfg)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	c.consumer = consumer

	c.logger.Info("NATS consumer ready",
		slog.String("consumer", consumerName),
		slog.Any("subjects", filterSubjects),
	)

	return nil
}

// consumeMessages processes messages from the consumer.
func (c *Client) consumeMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("NATS consumer stopping: context cancelled")
			return
		case <-c.stopChan:
			c.logger.Info("NATS consumer stopping: stop requested")
			return
		default:
		}

		msgs, err := c.consumer.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if err == context.DeadlineExceeded || err == nats.ErrTimeout {
				// Normal timeout, continue polling
				continue
			}
			c.logger.Warn("Fetch error", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			if err := c.processMessage(msg); err != nil {
				c.logger.Error("Message processing failed",
					slog.String("subject", msg.Subject()),
					slog.String("error", err.Error()),
				)
				// NAK to retry later
				msg.Nak()
			} else {
				msg.Ack()
			}
		}

		if msgs.Error() != nil && msgs.Error() != nats.ErrTimeout {
			c.logger.Warn("Fetch completed with error",
				slog.String("error", msgs.Error().Error()),
			)
		}
	}
}

// processMessage handles a single incoming sync message.
func (c *Client) processMessage(msg jetstream.Msg) error {
	return c.processPayload(msg.Subject(), msg.Data())
}

// processPayload decodes an envelope and routes it to the sync handler.
//
// A payload that cannot be decoded is dropped with a warning, never errored:
// an error here becomes a NAK and the same bytes would come back forever.
// Handler errors are returned so store failures do get redelivered.
func (c *Client) processPayload(subject string, data []byte) error {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("no sync handler set")
	}

	var envelope MessageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.Warn("Dropping malformed sync envelope",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return nil
	}

	c.logger.Debug("Processing sync message",
		slog.String("type", envelope.Type),
		slog.String("subject", subject),
	)

	switch envelope.Type {
	case "schedule_sync":
		var sched ScheduleSyncMessage
		if err := json.Unmarshal(envelope.Payload, &sched); err != nil {
			return c.dropPayload(subject, envelope.Type, err)
		}
		return handler.HandleSchedule(&sched)

	case "user_sync":
		var user UserSyncMessage
		if err := json.Unmarshal(envelope.Payload, &user); err != nil {
			return c.dropPayload(subject, envelope.Type, err)
		}
		return handler.HandleUser(&user)

	case "collection_sync":
		var col CollectionSyncMessage
		if err := json.Unmarshal(envelope.Payload, &col); err != nil {
			return c.dropPayload(subject, envelope.Type, err)
		}
		return handler.HandleCollection(&col)

	case "content_unit_sync":
		var unit ContentUnitSyncMessage
		if err := json.Unmarshal(envelope.Payload, &unit); err != nil {
			return c.dropPayload(subject, envelope.Type, err)
		}
		return handler.HandleContentUnit(&unit)

	default:
		c.logger.Warn("Unknown sync message type", slog.String("type", envelope.Type))
		return nil // Don't error on unknown types, just ignore
	}
}

// dropPayload logs an undecodable inner payload and swallows it.
func (c *Client) dropPayload(subject, msgType string, err error) error {
	c.logger.Warn("Dropping malformed sync payload",
		slog.String("subject", subject),
		slog.String("type", msgType),
		slog.String("error", err.Error()),
	)
	return nil
}

// IsConnected returns whether the client is currently connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.nc != nil && c.nc.IsConnected()
}

// Stop gracefully stops the NATS client.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	close(c.stopChan)
	c.running = false

	c.logger.Info("NATS client stopped")
}

// Close closes the NATS connection.
func (c *Client) Close() error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil {
		c.nc.Drain()
		c.nc = nil
	}

	return nil
}

// Shutdown implements the shutdown.Shutdowner interface.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Close()
}

// Connection returns the underlying NATS connection for publishing.
func (c *Client) Connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc
}

// JetStream returns the JetStream context for publishing.
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// TenantID returns the configured tenant ID.
func (c *Client) TenantID() string {
	return c.config.TenantID
}

// WorkerID returns the configured worker ID.
func (c *Client) WorkerID() string {
	return c.config.WorkerID
}
