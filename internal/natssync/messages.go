// Message types for NATS communication between the rotation server and
// workers. The server pushes incremental state changes (schedules, users,
// collections, content units); workers publish dispatch history, health and
// heartbeats.
package natssync

import "encoding/json"

// MessageEnvelope wraps all NATS messages with type information.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// ScheduleSyncMessage carries a schedule create/update/delete.
type ScheduleSyncMessage struct {
	ID       string          `json:"id"`
	Action   string          `json:"action"` // "update" or "delete"
	Schedule json.RawMessage `json:"schedule,omitempty"`
}

// UserSyncMessage carries a user create/update/delete, including refreshed
// social account tokens.
type UserSyncMessage struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	User   json.RawMessage `json:"user,omitempty"`
}

// CollectionSyncMessage carries a collection create/update/delete.
type CollectionSyncMessage struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Collection json.RawMessage `json:"collection,omitempty"`
}

// ContentUnitSyncMessage carries a content unit create/update/delete.
type ContentUnitSyncMessage struct {
	ID          string          `json:"id"`
	Action      string          `json:"action"`
	ContentUnit json.RawMessage `json:"content_unit,omitempty"`
}

// HistoryMessage is published when a dispatch completes.
type HistoryMessage struct {
	ID             string          `json:"id"`
	ScheduleID     string          `json:"scheduleId"`
	ContentUnitID  string          `json:"contentUnitId"`
	ScheduleItemID string          `json:"scheduleItemId,omitempty"`
	Platforms      []string        `json:"platforms"`
	Text           string          `json:"text,omitempty"`
	Results        json.RawMessage `json:"results"`
	SentAt         string          `json:"sentAt"`
}

// HealthMessage contains worker health statistics.
type HealthMessage struct {
	Timestamp      string  `json:"timestamp"`
	CPU            float64 `json:"cpu"`
	MemoryUsed     uint64  `json:"memoryUsed"`
	MemoryTotal    uint64  `json:"memoryTotal"`
	MemoryPct      float64 `json:"memoryPct"`
	Load1          float64 `json:"load1"`
	Load5          float64 `json:"load5"`
	Load15         float64 `json:"load15"`
	Uptime         uint64  `json:"uptime"`
	PendingHistory int     `json:"pendingHistory"`
}

// HeartbeatMessage is published for presence detection.
type HeartbeatMessage struct {
	Online    bool   `json:"online"`
	Version   string `json:"version,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Timestamp string `json:"timestamp"`
}
