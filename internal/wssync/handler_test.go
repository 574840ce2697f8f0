package wssync

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/natssync"
	"github.com/gorilla/websocket"
)

type recordingApplier struct {
	schedules []*natssync.ScheduleSyncMessage
	users     []*natssync.UserSyncMessage
	cols      []*natssync.CollectionSyncMessage
	units     []*natssync.ContentUnitSyncMessage
}

func (r *recordingApplier) HandleSchedule(m *natssync.ScheduleSyncMessage) error {
	r.schedules = append(r.schedules, m)
	return nil
}
func (r *recordingApplier) HandleUser(m *natssync.UserSyncMessage) error {
	r.users = append(r.users, m)
	return nil
}
func (r *recordingApplier) HandleCollection(m *natssync.CollectionSyncMessage) error {
	r.cols = append(r.cols, m)
	return nil
}
func (r *recordingApplier) HandleContentUnit(m *natssync.ContentUnitSyncMessage) error {
	r.units = append(r.units, m)
	return nil
}

func envelope(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(natssync.MessageEnvelope{Type: msgType, Payload: raw})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestHandler() (*Handler, *recordingApplier) {
	applier := &recordingApplier{}
	return NewHandler(applier, slog.New(slog.NewTextHandler(io.Discard, nil))), applier
}

func TestHandleMessageRoutesByType(t *testing.T) {
	h, applier := newTestHandler()

	h.HandleMessage(websocket.TextMessage, envelope(t, "schedule_sync", natssync.ScheduleSyncMessage{ID: "s1", Action: "update"}))
	h.HandleMessage(websocket.TextMessage, envelope(t, "user_sync", natssync.UserSyncMessage{ID: "u1", Action: "update"}))
	h.HandleMessage(websocket.TextMessage, envelope(t, "collection_sync", natssync.CollectionSyncMessage{ID: "c1", Action: "delete"}))
	h.HandleMessage(websocket.TextMessage, envelope(t, "content_unit_sync", natssync.ContentUnitSyncMessage{ID: "cu1", Action: "update"}))

	if len(applier.schedules) != 1 || applier.schedules[0].ID != "s1" {
		t.Errorf("schedule not routed: %+v", applier.schedules)
	}
	if len(applier.users) != 1 || applier.users[0].ID != "u1" {
		t.Errorf("user not routed: %+v", applier.users)
	}
	if len(applier.cols) != 1 || applier.cols[0].Action != "delete" {
		t.Errorf("collection not routed: %+v", applier.cols)
	}
	if len(applier.units) != 1 || applier.units[0].ID != "cu1" {
		t.Errorf("content unit not routed: %+v", applier.units)
	}
}

func TestHandleMessageIgnoresGarbage(t *testing.T) {
	h, applier := newTestHandler()

	h.HandleMessage(websocket.TextMessage, []byte("{not json"))
	h.HandleMessage(websocket.TextMessage, envelope(t, "reboot", struct{}{}))

	if len(applier.schedules)+len(applier.users)+len(applier.cols)+len(applier.units) != 0 {
		t.Error("garbage messages should not reach the applier")
	}
}
