// Outgoing messages from the worker to the rotation server.
//
// The publisher sends dispatch history, health statistics, and heartbeat
// messages via NATS subjects. History uses JetStream for durability, while
// health and heartbeats use core NATS for efficiency.
package natssync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// publishTimeout bounds a single JetStream publish, including the wait for
// the server's ack.
const publishTimeout = 10 * time.Second

// Publisher handles publishing messages to NATS.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// PublishHistory publishes a completed dispatch record.
// Uses JetStream so history survives server restarts.
func (p *Publisher) PublishHistory(ctx context.Context, row *model.SendHistory) error {
	subject := fmt.Sprintf("rotation.%s.history.%s", p.client.TenantID(), p.client.WorkerID())

	msg := MessageEnvelope{
		Type:      "history",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	results, err := json.Marshal(row.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	payload := HistoryMessage{
		ID:             row.ID,
		ScheduleID:     row.ScheduleID,
		ContentUnitID:  row.ContentUnitID,
		ScheduleItemID: row.ScheduleItemID,
		Platforms:      row.Platforms.Names(),
		Text:           row.Text,
		Results:        results,
		SentAt:         row.SentAt.UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = payloadBytes

	return p.publishJetStream(ctx, subject, msg)
}

// PublishHealth publishes worker health statistics.
// Uses core NATS (not JetStream) for high-frequency metrics.
func (p *Publisher) PublishHealth(health *HealthMessage) error {
	subject := fmt.Sprintf("rotation.%s.health.%s", p.client.TenantID(), p.client.WorkerID())

	msg := MessageEnvelope{
		Type:      "health",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = payloadBytes

	return p.publish(subject, msg)
}

// PublishHeartbeat publishes a heartbeat for presence detection.
// Uses core NATS (not JetStream) for ephemeral presence.
func (p *Publisher) PublishHeartbeat(version, platform string) error {
	subject := fmt.Sprintf("rotation.%s.status.%s", p.client.TenantID(), p.client.WorkerID())

	msg := MessageEnvelope{
		Type:      "heartbeat",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload := HeartbeatMessage{
		Online:    true,
		Version:   version,
		Platform:  platform,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = payloadBytes

	return p.publish(subject, msg)
}

// publish sends a message via core NATS (fire-and-forget).
func (p *Publisher) publish(subject string, msg MessageEnvelope) error {
	nc := p.client.Connection()
	if nc == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.logger.Debug("Published message",
		slog.String("subject", subject),
		slog.String("type", msg.Type),
	)

	return nil
}

// publishJetStream sends a message via JetStream for durability. The publish
// waits for the stream's ack, bounded by the caller's context plus
// publishTimeout; jetstream requires a non-nil context here.
func (p *Publisher) publishJetStream(ctx context.Context, subject string, msg MessageEnvelope) error {
	js := p.client.JetStream()
	if js == nil {
		return fmt.Errorf("jetstream not available")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := publishContext(ctx)
	defer cancel()
	ack, err := js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.logger.Debug("Published message to JetStream",
		slog.String("subject", subject),
		slog.String("type", msg.Type),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}

// publishContext derives the bounded context handed to JetStream. A nil
// parent is replaced with context.Background so the deadline lookup inside
// the publish call always has a real context to ask.
func publishContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, publishTimeout)
}

// Flush flushes the NATS connection to ensure all pending messages are sent.
// Useful before exiting so final heartbeats and history are delivered.
func (p *Publisher) Flush() error {
	nc := p.client.Connection()
	if nc == nil {
		return fmt.Errorf("not connected")
	}
	return nc.Flush()
}

// IsConnected returns whether the publisher can send messages.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}
