package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func row(scheduleID, unitID, itemID string, sentAt time.Time) *model.SendHistory {
	return &model.SendHistory{
		ScheduleID:     scheduleID,
		ContentUnitID:  unitID,
		ScheduleItemID: itemID,
		Platforms:      model.PlatformFacebook,
		Text:           "hello",
		SentAt:         sentAt,
	}
}

func TestActiveSchedulesSkipsPaused(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSchedule(&model.Schedule{ID: "s1", UserID: "u1"}); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}
	if err := s.SaveSchedule(&model.Schedule{ID: "s2", UserID: "u1", Paused: true}); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}

	schedules, err := s.ActiveSchedules()
	if err != nil {
		t.Fatalf("ActiveSchedules() error = %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("ActiveSchedules() returned %d schedules, want 1", len(schedules))
	}
	if schedules[0].ID != "s1" {
		t.Errorf("ActiveSchedules()[0].ID = %q, want s1", schedules[0].ID)
	}
}

func TestActiveSchedulesOrdersItemsByPosition(t *testing.T) {
	s := openTestStore(t)

	sched := &model.Schedule{
		ID:     "s1",
		UserID: "u1",
		Items: []model.ScheduleItem{
			{ID: "i3", Position: 3},
			{ID: "i1", Position: 1},
			{ID: "i2", Position: 2},
		},
	}
	if err := s.SaveSchedule(sched); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}

	schedules, err := s.ActiveSchedules()
	if err != nil {
		t.Fatalf("ActiveSchedules() error = %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("ActiveSchedules() returned %d schedules, want 1", len(schedules))
	}
	for i, want := range []string{"i1", "i2", "i3"} {
		if got := schedules[0].Items[i].ID; got != want {
			t.Errorf("Items[%d].ID = %q, want %q", i, got, want)
		}
	}
}

func TestIncrementTimesSent(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSchedule(&model.Schedule{ID: "s1"}); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementTimesSent("s1"); err != nil {
			t.Fatalf("IncrementTimesSent() error = %v", err)
		}
	}

	sched, err := s.GetSchedule("s1")
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if sched.TimesSent != 3 {
		t.Errorf("TimesSent = %d, want 3", sched.TimesSent)
	}
}

func TestIncrementTimesSentMissingSchedule(t *testing.T) {
	s := openTestStore(t)

	if err := s.IncrementTimesSent("nope"); err == nil {
		t.Error("IncrementTimesSent() expected error for missing schedule")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)

	sched, err := s.GetSchedule("nope")
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if sched != nil {
		t.Errorf("GetSchedule() = %+v, want nil", sched)
	}

	u, err := s.GetContentUnit("nope")
	if err != nil {
		t.Fatalf("GetContentUnit() error = %v", err)
	}
	if u != nil {
		t.Errorf("GetContentUnit() = %+v, want nil", u)
	}
}

func TestRecordHistoryAssignsIDAndQueues(t *testing.T) {
	s := openTestStore(t)

	entry := row("s1", "u1", "", time.Now().UTC())
	if err := s.RecordHistory(entry); err != nil {
		t.Fatalf("RecordHistory() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("RecordHistory() did not assign an ID")
	}
	if entry.UploadSeq == 0 {
		t.Error("RecordHistory() did not assign an upload sequence")
	}

	count, err := s.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}

	rows, err := s.HistoryForSchedule("s1")
	if err != nil {
		t.Fatalf("HistoryForSchedule() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("HistoryForSchedule() returned %d rows, want 1", len(rows))
	}
	if rows[0].ID != entry.ID {
		t.Errorf("history row ID = %q, want %q", rows[0].ID, entry.ID)
	}
}

func TestAlreadySent(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordHistory(row("s1", "u1", "", time.Now().UTC())); err != nil {
		t.Fatalf("RecordHistory() error = %v", err)
	}

	tests := []struct {
		name       string
		scheduleID string
		unitID     string
		itemID     string
		want       bool
	}{
		{"exact match", "s1", "u1", "", true},
		{"different unit", "s1", "u2", "", false},
		{"different schedule", "s2", "u1", "", false},
		{"item row not matched by legacy query", "s1", "u1", "i1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AlreadySent(tt.scheduleID, tt.unitID, tt.itemID)
			if err != nil {
				t.Fatalf("AlreadySent() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AlreadySent(%q, %q, %q) = %v, want %v",
					tt.scheduleID, tt.unitID, tt.itemID, got, tt.want)
			}
		})
	}
}

func TestAlreadySentItemRowsAreIndependent(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordHistory(row("s1", "u1", "i1", time.Now().UTC())); err != nil {
		t.Fatalf("RecordHistory() error = %v", err)
	}

	got, err := s.AlreadySent("s1", "u1", "i1")
	if err != nil {
		t.Fatalf("AlreadySent() error = %v", err)
	}
	if !got {
		t.Error("AlreadySent() = false for the recorded item, want true")
	}

	got, err = s.AlreadySent("s1", "u1", "i2")
	if err != nil {
		t.Fatalf("AlreadySent() error = %v", err)
	}
	if got {
		t.Error("AlreadySent() = true for a different item, want false")
	}

	got, err = s.AlreadySent("s1", "u1", "")
	if err != nil {
		t.Fatalf("AlreadySent() error = %v", err)
	}
	if got {
		t.Error("item row leaked into the legacy-path query")
	}
}

func TestAlreadySentThisYear(t *testing.T) {
	s := openTestStore(t)

	lastYear := time.Date(2025, time.December, 31, 23, 59, 0, 0, time.UTC)
	if err := s.RecordHistory(row("s1", "u1", "", lastYear)); err != nil {
		t.Fatalf("RecordHistory() error = %v", err)
	}

	// One minute later but a new calendar year: the gate must open.
	newYear := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	got, err := s.AlreadySentThisYear("s1", newYear)
	if err != nil {
		t.Fatalf("AlreadySentThisYear() error = %v", err)
	}
	if got {
		t.Error("AlreadySentThisYear() = true across the year boundary, want false")
	}

	got, err = s.AlreadySentThisYear("s1", lastYear.Add(-time.Hour))
	if err != nil {
		t.Fatalf("AlreadySentThisYear() error = %v", err)
	}
	if !got {
		t.Error("AlreadySentThisYear() = false within the same year, want true")
	}
}

func TestAlreadySentInMinute(t *testing.T) {
	s := openTestStore(t)

	sentAt := time.Date(2026, time.March, 5, 9, 0, 12, 0, time.UTC)
	if err := s.RecordHistory(row("s1", "u1", "", sentAt)); err != nil {
		t.Fatalf("RecordHistory() error = %v", err)
	}

	sameMinute := sentAt.Add(40 * time.Second)
	got, err := s.AlreadySentInMinute("s1", "u1", "", sameMinute)
	if err != nil {
		t.Fatalf("AlreadySentInMinute() error = %v", err)
	}
	if !got {
		t.Error("AlreadySentInMinute() = false within the minute, want true")
	}

	nextMinute := sentAt.Add(time.Minute)
	got, err = s.AlreadySentInMinute("s1", "u1", "", nextMinute)
	if err != nil {
		t.Fatalf("AlreadySentInMinute() error = %v", err)
	}
	if got {
		t.Error("AlreadySentInMinute() = true in the next minute, want false")
	}

	got, err = s.AlreadySentInMinute("s1", "u2", "", sameMinute)
	if err != nil {
		t.Fatalf("AlreadySentInMinute() error = %v", err)
	}
	if got {
		t.Error("AlreadySentInMinute() = true for a different unit, want false")
	}
}

func TestPendingQueueDrain(t *testing.T) {
	s := openTestStore(t)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		entry := row("s1", "u1", "", time.Now().UTC())
		if err := s.RecordHistory(entry); err != nil {
			t.Fatalf("RecordHistory() error = %v", err)
		}
		seqs = append(seqs, entry.UploadSeq)
	}

	rows, err := s.PendingHistory(2)
	if err != nil {
		t.Fatalf("PendingHistory() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("PendingHistory(2) returned %d rows, want 2", len(rows))
	}
	// Oldest first.
	if rows[0].UploadSeq != seqs[0] || rows[1].UploadSeq != seqs[1] {
		t.Errorf("PendingHistory order = [%d %d], want [%d %d]",
			rows[0].UploadSeq, rows[1].UploadSeq, seqs[0], seqs[1])
	}

	if err := s.RemovePending(seqs[:2]); err != nil {
		t.Fatalf("RemovePending() error = %v", err)
	}

	count, err := s.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() after drain = %d, want 1", count)
	}

	rows, err = s.PendingHistory(10)
	if err != nil {
		t.Fatalf("PendingHistory() error = %v", err)
	}
	if len(rows) != 1 || rows[0].UploadSeq != seqs[2] {
		t.Errorf("remaining pending row = %+v, want seq %d", rows, seqs[2])
	}

	// Removing a row keeps the history record intact.
	hist, err := s.HistoryForSchedule("s1")
	if err != nil {
		t.Fatalf("HistoryForSchedule() error = %v", err)
	}
	if len(hist) != 3 {
		t.Errorf("HistoryForSchedule() returned %d rows after drain, want 3", len(hist))
	}
}

func TestDeleteScheduleKeepsHistory(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSchedule(&model.Schedule{ID: "s1"}); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}
	if err := s.RecordHistory(row("s1", "u1", "", time.Now().UTC())); err != nil {
		t.Fatalf("RecordHistory() error = %v", err)
	}

	if err := s.DeleteSchedule("s1"); err != nil {
		t.Fatalf("DeleteSchedule() error = %v", err)
	}

	sched, err := s.GetSchedule("s1")
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if sched != nil {
		t.Error("schedule still present after delete")
	}

	rows, err := s.HistoryForSchedule("s1")
	if err != nil {
		t.Fatalf("HistoryForSchedule() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("history rows = %d after schedule delete, want 1", len(rows))
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)

	u := &model.User{
		ID:    "u1",
		Email: "owner@example.com",
		Accounts: map[string]model.SocialAccount{
			"facebook": {AccessToken: "tok", AccountID: "p1"},
		},
	}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}

	got, err := s.GetUser("u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetUser() = nil, want user")
	}
	acct, ok := got.Account("facebook")
	if !ok || acct.AccessToken != "tok" {
		t.Errorf("facebook account = %+v, ok=%v", acct, ok)
	}

	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	got, err = s.GetUser("u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got != nil {
		t.Error("user still present after delete")
	}
}
