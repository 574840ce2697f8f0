package natssync

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
)

// routingHandler records which sync messages reach it.
type routingHandler struct {
	schedules   int
	users       int
	collections int
	units       int
	err         error
}

func (h *routingHandler) HandleSchedule(msg *ScheduleSyncMessage) error {
	h.schedules++
	return h.err
}

func (h *routingHandler) HandleUser(msg *UserSyncMessage) error {
	h.users++
	return h.err
}

func (h *routingHandler) HandleCollection(msg *CollectionSyncMessage) error {
	h.collections++
	return h.err
}

func (h *routingHandler) HandleContentUnit(msg *ContentUnitSyncMessage) error {
	h.units++
	return h.err
}

func newRoutingClient(h SyncHandler) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(Config{TenantID: "tenant-1", WorkerID: "worker-1"}, logger)
	if h != nil {
		c.SetHandler(h)
	}
	return c
}

func syncEnvelope(t *testing.T, msgType string, payload any) []byte {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(MessageEnvelope{Type: msgType, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestProcessPayloadRoutesByType(t *testing.T) {
	h := &routingHandler{}
	c := newRoutingClient(h)

	payloads := [][]byte{
		syncEnvelope(t, "schedule_sync", ScheduleSyncMessage{ID: "s1", Action: "delete"}),
		syncEnvelope(t, "user_sync", UserSyncMessage{ID: "u1", Action: "delete"}),
		syncEnvelope(t, "collection_sync", CollectionSyncMessage{ID: "c1", Action: "delete"}),
		syncEnvelope(t, "content_unit_sync", ContentUnitSyncMessage{ID: "cu1", Action: "delete"}),
	}
	for _, data := range payloads {
		if err := c.processPayload("rotation.tenant-1.sync.test", data); err != nil {
			t.Fatalf("processPayload() error = %v", err)
		}
	}

	if h.schedules != 1 || h.users != 1 || h.collections != 1 || h.units != 1 {
		t.Errorf("handler counts = %+v, want one call per type", h)
	}
}

// A payload that cannot be decoded must be dropped, not errored: an error
// turns into a NAK and the same bytes come back on every redelivery.
func TestProcessPayloadDropsMalformedEnvelope(t *testing.T) {
	h := &routingHandler{}
	c := newRoutingClient(h)

	if err := c.processPayload("rotation.tenant-1.sync.test", []byte("not json at all")); err != nil {
		t.Errorf("processPayload() error = %v, want nil for undecodable envelope", err)
	}
	if h.schedules+h.users+h.collections+h.units != 0 {
		t.Error("handler invoked for an undecodable envelope")
	}
}

func TestProcessPayloadDropsMalformedInnerPayload(t *testing.T) {
	h := &routingHandler{}
	c := newRoutingClient(h)

	data := syncEnvelope(t, "schedule_sync", "just a string, not an object")
	if err := c.processPayload("rotation.tenant-1.sync.test", data); err != nil {
		t.Errorf("processPayload() error = %v, want nil for undecodable payload", err)
	}
	if h.schedules != 0 {
		t.Error("handler invoked for an undecodable payload")
	}
}

func TestProcessPayloadIgnoresUnknownType(t *testing.T) {
	c := newRoutingClient(&routingHandler{})

	data := syncEnvelope(t, "something_new", map[string]string{"id": "x"})
	if err := c.processPayload("rotation.tenant-1.sync.test", data); err != nil {
		t.Errorf("processPayload() error = %v, want nil for unknown type", err)
	}
}

// Store failures are a different story: those must error so the message is
// NAKed and redelivered once the store recovers.
func TestProcessPayloadPropagatesHandlerError(t *testing.T) {
	h := &routingHandler{err: errors.New("disk full")}
	c := newRoutingClient(h)

	data := syncEnvelope(t, "schedule_sync", ScheduleSyncMessage{ID: "s1", Action: "delete"})
	if err := c.processPayload("rotation.tenant-1.sync.test", data); err == nil {
		t.Error("processPayload() = nil, want handler error propagated")
	}
}

func TestProcessPayloadWithoutHandler(t *testing.T) {
	c := newRoutingClient(nil)

	data := syncEnvelope(t, "schedule_sync", ScheduleSyncMessage{ID: "s1", Action: "delete"})
	if err := c.processPayload("rotation.tenant-1.sync.test", data); err == nil {
		t.Error("processPayload() = nil, want error when no handler is set")
	}
}
