// handler.go routes WebSocket sync messages to the shared state applier.
//
// The wire envelope and payload types are identical to the NATS transport,
// so the handler decodes the envelope and delegates to the same applier used
// by the JetStream consumer. This guarantees both transports produce the
// same local state.
package wssync

import (
	"encoding/json"
	"log/slog"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/natssync"
)

// Handler processes incoming WebSocket sync messages.
type Handler struct {
	applier natssync.SyncHandler
	logger  *slog.Logger
}

// NewHandler creates a WebSocket message handler delegating to the shared
// sync applier.
func NewHandler(applier natssync.SyncHandler, logger *slog.Logger) *Handler {
	return &Handler{
		applier: applier,
		logger:  logger,
	}
}

// HandleMessage processes a raw WebSocket message.
// Implements the MessageHandler interface.
func (h *Handler) HandleMessage(messageType int, data []byte) {
	var envelope natssync.MessageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.logger.Warn("invalid websocket message",
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Debug("processing websocket message",
		slog.String("type", envelope.Type),
	)

	var err error
	switch envelope.Type {
	case "schedule_sync":
		var msg natssync.ScheduleSyncMessage
		if err = json.Unmarshal(envelope.Payload, &msg); err == nil {
			err = h.applier.HandleSchedule(&msg)
		}

	case "user_sync":
		var msg natssync.UserSyncMessage
		if err = json.Unmarshal(envelope.Payload, &msg); err == nil {
			err = h.applier.HandleUser(&msg)
		}

	case "collection_sync":
		var msg natssync.CollectionSyncMessage
		if err = json.Unmarshal(envelope.Payload, &msg); err == nil {
			err = h.applier.HandleCollection(&msg)
		}

	case "content_unit_sync":
		var msg natssync.ContentUnitSyncMessage
		if err = json.Unmarshal(envelope.Payload, &msg); err == nil {
			err = h.applier.HandleContentUnit(&msg)
		}

	default:
		h.logger.Warn("unknown websocket message type",
			slog.String("type", envelope.Type),
		)
		return
	}

	if err != nil {
		// Unlike JetStream there is no redelivery; the schedule catches up at
		// the next full snapshot.
		h.logger.Error("failed to apply sync message",
			slog.String("type", envelope.Type),
			slog.String("error", err.Error()),
		)
	}
}
